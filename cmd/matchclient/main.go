// Package main runs a headless match client: it connects through the
// directory or straight to a matchmaker, joins the lobby, enters the
// configured room, and serves its status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/client"
	"github.com/cory-johannsen/matchlink/internal/config"
	"github.com/cory-johannsen/matchlink/internal/observability"
	"github.com/cory-johannsen/matchlink/internal/presets"
	"github.com/cory-johannsen/matchlink/internal/server"
	"github.com/cory-johannsen/matchlink/internal/statusapi"
	"github.com/cory-johannsen/matchlink/internal/storage/postgres"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file")
	envPath := flag.String("env", ".env", "path to a .env file with MATCHLINK_ overrides")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	loggers, err := observability.NewLoggers(cfg.Logging, cfg.Client)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer loggers.Sync()
	logger := loggers.Root

	roomOptions := client.DefaultRoomOptions()
	if cfg.Client.Preset != "" {
		reg, err := presets.Load(cfg.Presets.Path)
		if err != nil {
			logger.Fatal("loading presets", zap.Error(err))
		}
		roomOptions, err = reg.Options(cfg.Client.Preset)
		if err != nil {
			logger.Fatal("resolving preset", zap.Error(err))
		}
		logger.Info("preset loaded", zap.String("preset", cfg.Client.Preset), zap.Strings("available", reg.Names()))
	}

	ctx := context.Background()
	metrics := observability.NewMetrics()
	lc := server.NewLifecycle(logger)

	var tokens client.TokenStore = client.NewMemoryTokenStore()
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		tokens = postgres.NewTokenRepository(pool.DB())
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}

	r := newRunner(logger, cfg.Client, roomOptions)
	cl, err := client.New(clientOptions(cfg),
		client.WithLogger(logger),
		client.WithTransportLogger(loggers.Transport),
		client.WithMetrics(metrics),
		client.WithTokenStore(tokens),
		client.WithHandler(r.handler()),
		client.WithDialer(transport.WebsocketDialer{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			ReadLimit:        cfg.Transport.ReadLimit,
		}),
	)
	if err != nil {
		logger.Fatal("creating client", zap.Error(err))
	}
	r.cl = cl
	lc.Add("client", r)

	if cfg.Status.Enabled {
		api := statusapi.NewHandler(cl, logger, metrics)
		status := server.NewHTTPService(cfg.Status.Addr(), api.Router())
		if err := status.Listen(); err != nil {
			logger.Fatal("binding status listener", zap.Error(err))
		}
		logger.Info("status api listening", zap.String("addr", status.Addr()))
		lc.Add("status", status)
	}

	logger.Info("match client starting",
		zap.String("user_id", cl.UserID()),
		zap.String("region", cfg.Client.Region),
		zap.String("room", cfg.Client.Room),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lc.Run(ctx); err != nil {
		logger.Error("match client stopped", zap.Error(err))
		loggers.Sync()
		os.Exit(1)
	}
}
