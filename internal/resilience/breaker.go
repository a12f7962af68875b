// Package resilience provides the Resilience Layer of §4.F: retry with
// backoff, per-adapter circuit breakers, and a bounded offline buffer for
// realtime messages.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig mirrors the defaults of §4.F: consecutive-failure
// threshold and the window/reset timeout the breaker opens for.
type BreakerConfig struct {
	FailureThreshold uint32
	Window           time.Duration
	ResetTimeout     time.Duration
}

// Defaults per channel, per §4.F.
var (
	ExternalMsgDefaults = BreakerConfig{FailureThreshold: 5, Window: 60 * time.Second, ResetTimeout: 60 * time.Second}
	RealtimeDefaults    = BreakerConfig{FailureThreshold: 10, Window: 30 * time.Second, ResetTimeout: 30 * time.Second}
	PushDefaults        = BreakerConfig{FailureThreshold: 5, Window: 60 * time.Second, ResetTimeout: 60 * time.Second}
)

// Breaker wraps gobreaker.CircuitBreaker the way the teacher's
// infra/breakers package wraps it, adapted to the channel-keyed registry
// this module needs instead of a single named instance.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker builds a Breaker per cfg. Two consecutive successes in
// half-open close it, matching §4.F ("two consecutive successes →
// CLOSED") — gobreaker closes a half-open breaker once MaxRequests
// consecutive requests succeed, so MaxRequests=2 below reproduces that rule.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    cfg.Window,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// ErrCircuitOpen is returned by Execute when the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Execute runs fn through the breaker, translating gobreaker's own
// ErrOpenState/ErrTooManyRequests into a single "circuit open" signal the
// caller can check with errors.Is(err, ErrCircuitOpen).
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if err == gobreaker.ErrTooManyRequests {
		err = ErrCircuitOpen
	}
	return res, err
}

// State reports the breaker's current state as a plain string for health
// endpoints and logs.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Manager is a registry of per-channel breakers, the same Manager idiom
// the teacher uses for per-provider rate limiters and breakers.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	configs  map[string]BreakerConfig
}

// NewManager builds a Manager seeded with the three channel defaults.
func NewManager() *Manager {
	m := &Manager{
		breakers: make(map[string]*Breaker),
		configs:  make(map[string]BreakerConfig),
	}
	m.configs["external-msg"] = ExternalMsgDefaults
	m.configs["realtime-bus"] = RealtimeDefaults
	m.configs["web-push"] = PushDefaults
	return m
}

// Configure overrides the BreakerConfig used for a channel on first use.
func (m *Manager) Configure(channel string, cfg BreakerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[channel] = cfg
}

// Get returns (creating if needed) the Breaker for channel.
func (m *Manager) Get(channel string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[channel]; ok {
		return b
	}
	cfg, ok := m.configs[channel]
	if !ok {
		cfg = BreakerConfig{FailureThreshold: 5, Window: 60 * time.Second, ResetTimeout: 60 * time.Second}
	}
	b := NewBreaker(channel, cfg)
	m.breakers[channel] = b
	return b
}

// States returns a snapshot of every known channel's breaker state, for
// the /healthz handler.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.State()
	}
	return out
}

// ExecuteContext runs fn through the named channel's breaker with context
// cancellation honored by fn itself (gobreaker has no native context
// support, so fn is expected to select on ctx.Done()).
func (m *Manager) ExecuteContext(ctx context.Context, channel string, fn func(ctx context.Context) error) error {
	b := m.Get(channel)
	_, err := b.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
