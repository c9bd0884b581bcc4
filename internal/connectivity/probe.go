// Package connectivity turns reachability checks into online/offline
// transitions for the offline queue.
//
//	probe := connectivity.NewPollingProbe(connectivity.DialCheck("api.example.com:443", 2*time.Second), 5*time.Second)
//	go connectivity.Watch(ctx, probe, queue, logger)
//
// Probes emit the initial state once, then only transitions.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler receives connectivity states.
type Handler func(ctx context.Context, online bool)

// Probe supplies online/offline transitions. Run blocks until ctx is done.
type Probe interface {
	Run(ctx context.Context, h Handler) error
}

// Check reports whether the remote service is reachable.
type Check func(ctx context.Context) bool

// DialCheck returns a Check that succeeds when a TCP connection to address
// can be opened within timeout.
func DialCheck(address string, timeout time.Duration) Check {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// PollingProbe runs a Check on a fixed interval.
type PollingProbe struct {
	check    Check
	interval time.Duration
	logger   *slog.Logger
}

// ProbeOption configures a PollingProbe.
type ProbeOption func(*PollingProbe)

// WithLogger sets a custom logger for the probe.
func WithLogger(l *slog.Logger) ProbeOption {
	return func(p *PollingProbe) { p.logger = l }
}

// NewPollingProbe creates a probe running check every interval.
func NewPollingProbe(check Check, interval time.Duration, opts ...ProbeOption) *PollingProbe {
	p := &PollingProbe{
		check:    check,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run checks immediately, then on every tick. The handler is called with the
// first result and afterwards only when the result changes.
func (p *PollingProbe) Run(ctx context.Context, h Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := p.check(ctx)
	h(ctx, last)
	p.logger.Info("connectivity probe started", "interval", p.interval, "online", last)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("connectivity probe stopped")
			return ctx.Err()
		case <-ticker.C:
			online := p.check(ctx)
			if ctx.Err() != nil {
				continue
			}
			if online != last {
				p.logger.Info("connectivity: change detected", "online", online)
				h(ctx, online)
				last = online
			}
		}
	}
}

// Manual is a Probe driven by Set. The CLI uses one reporting online when no
// probe address is configured.
type Manual struct {
	mu      sync.Mutex
	current bool
	updates chan bool
}

// NewManual creates a probe reporting initial until Set is called.
func NewManual(initial bool) *Manual {
	return &Manual{current: initial, updates: make(chan bool, 16)}
}

// Set reports online. Repeating the current value emits nothing.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.current {
		return
	}
	m.current = online
	m.updates <- online
}

// Run implements Probe.
func (m *Manual) Run(ctx context.Context, h Handler) error {
	m.mu.Lock()
	initial := m.current
	m.mu.Unlock()
	h(ctx, initial)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online := <-m.updates:
			h(ctx, online)
		}
	}
}
