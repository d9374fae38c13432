package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// StatusHandler receives connection-status changes. err is nil for
// connecting, connect and disconnect.
type StatusHandler func(status Status, err error)

// EventHandler receives one server event.
type EventHandler func(ev protocol.Event)

// ResponseHandler receives one operation response.
type ResponseHandler func(resp protocol.Response)

// listeners holds the three dispatch tables of a Peer. Handlers registered
// for the same code run in registration order.
type listeners struct {
	mu                sync.RWMutex
	status            map[Status][]StatusHandler
	events            map[byte][]EventHandler
	responses         map[byte][]ResponseHandler
	unhandledEvent    EventHandler
	unhandledResponse ResponseHandler
}

func (l *listeners) reset() {
	l.status = make(map[Status][]StatusHandler)
	l.events = make(map[byte][]EventHandler)
	l.responses = make(map[byte][]ResponseHandler)
}

// OnStatus appends h to the handlers for status.
func (p *Peer) OnStatus(status Status, h StatusHandler) {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.status[status] = append(p.listeners.status[status], h)
}

// OnEvent appends h to the handlers for event code.
func (p *Peer) OnEvent(code byte, h EventHandler) {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.events[code] = append(p.listeners.events[code], h)
}

// OnResponse appends h to the handlers for responses to operation code.
func (p *Peer) OnResponse(code byte, h ResponseHandler) {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.responses[code] = append(p.listeners.responses[code], h)
}

// OnUnhandledEvent replaces the hook that fires for events with no handler.
// The default logs the event code.
func (p *Peer) OnUnhandledEvent(h EventHandler) {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.unhandledEvent = h
}

// OnUnhandledResponse replaces the hook that fires for responses with no
// handler. The default logs the operation code.
func (p *Peer) OnUnhandledResponse(h ResponseHandler) {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.unhandledResponse = h
}

// RemoveAll drops every registered handler and restores the default
// unhandled hooks.
func (p *Peer) RemoveAll() {
	p.listeners.mu.Lock()
	defer p.listeners.mu.Unlock()
	p.listeners.reset()
	p.listeners.unhandledEvent = p.logUnhandledEvent
	p.listeners.unhandledResponse = p.logUnhandledResponse
}

func (p *Peer) emitStatus(status Status, err error) {
	p.listeners.mu.RLock()
	hs := append([]StatusHandler(nil), p.listeners.status[status]...)
	p.listeners.mu.RUnlock()

	fields := []zap.Field{zap.String("status", string(status))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status.Failure() {
		p.logger.Error("connection status", fields...)
	} else {
		p.logger.Debug("connection status", fields...)
	}
	for _, h := range hs {
		h(status, err)
	}
}

func (p *Peer) dispatchEvent(ev protocol.Event) {
	p.listeners.mu.RLock()
	hs := append([]EventHandler(nil), p.listeners.events[ev.Code]...)
	fallback := p.listeners.unhandledEvent
	p.listeners.mu.RUnlock()

	if len(hs) == 0 {
		if fallback != nil {
			fallback(ev)
		}
		return
	}
	for _, h := range hs {
		h(ev)
	}
}

func (p *Peer) dispatchResponse(resp protocol.Response) {
	p.listeners.mu.RLock()
	hs := append([]ResponseHandler(nil), p.listeners.responses[resp.Code]...)
	fallback := p.listeners.unhandledResponse
	p.listeners.mu.RUnlock()

	if len(hs) == 0 {
		if fallback != nil {
			fallback(resp)
		}
		return
	}
	for _, h := range hs {
		h(resp)
	}
}

func (p *Peer) logUnhandledEvent(ev protocol.Event) {
	p.logger.Warn("unhandled event", zap.Int("code", int(ev.Code)))
}

func (p *Peer) logUnhandledResponse(resp protocol.Response) {
	p.logger.Warn("unhandled response",
		zap.Int("code", int(resp.Code)),
		zap.Int("err_code", resp.ErrCode),
		zap.String("err_msg", resp.ErrMsg),
	)
}
