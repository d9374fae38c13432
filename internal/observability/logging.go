// Package observability provides the logger and Prometheus metrics of the match client.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/matchlink/internal/config"
)

// ServiceName tags every log line written by the match client.
const ServiceName = "matchlink"

// Loggers are the process loggers. Transport receives frame traffic from
// every peer and runs at its own level so it can be silenced or opened up
// without touching the workflow logs.
type Loggers struct {
	Root      *zap.Logger
	Transport *zap.Logger
}

// Sync flushes both loggers.
func (l *Loggers) Sync() {
	_ = l.Root.Sync()
	_ = l.Transport.Sync()
}

// NewLoggers builds the root and transport loggers, both scoped with the
// service name and the application identity from the client section.
//
// Precondition: cfg.Level and a non-empty cfg.TransportLevel must be one of
// "debug", "info", "warn", "error"; cfg.Format must be "json" or "console".
// Postcondition: Returns both loggers or a non-nil error.
func NewLoggers(cfg config.LoggingConfig, app config.ClientConfig) (*Loggers, error) {
	return newLoggers(cfg, app)
}

func newLoggers(cfg config.LoggingConfig, app config.ClientConfig, opts ...zap.Option) (*Loggers, error) {
	level, err := parseLevel("log level", cfg.Level)
	if err != nil {
		return nil, err
	}
	wireLevel := level
	if cfg.TransportLevel != "" {
		if wireLevel, err = parseLevel("transport log level", cfg.TransportLevel); err != nil {
			return nil, err
		}
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	// The shared core opens at the more verbose of the two levels; each
	// logger then raises its own floor.
	zapCfg.Level = zap.NewAtomicLevelAt(min(level, wireLevel))
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	base = base.With(
		zap.String("service", ServiceName),
		zap.String("app_id", app.AppID),
		zap.String("app_version", app.AppVersion),
	)
	return &Loggers{
		Root:      base.WithOptions(zap.IncreaseLevel(level)),
		Transport: base.Named("transport").WithOptions(zap.IncreaseLevel(wireLevel)),
	}, nil
}

func parseLevel(what, s string) (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return level, fmt.Errorf("parsing %s %q: %w", what, s, err)
	}
	return level, nil
}
