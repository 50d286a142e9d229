// Package connection owns the lifecycle of the single device link: it opens
// the link lazily, closes it after a period without commands and reopens it
// transparently when the next command arrives.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"sous_vide/internal/device"
	"sous_vide/internal/logger"
)

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultHeartbeat   = 20 * time.Second
)

// Reasons passed to Observer.LinkClosed.
const (
	ReasonIdle      = "idle"
	ReasonRequested = "requested"
	ReasonDropped   = "dropped"
)

// ErrInvalidTimeout is returned by SetIdleTimeout for non-positive durations.
var ErrInvalidTimeout = errors.New("connection: idle timeout must be positive")

// Observer is notified about link lifecycle changes and commands.
// Calls happen while the manager holds its lock, so implementations must be quick.
type Observer interface {
	LinkOpened()
	LinkClosed(reason string)
	CommandSent(op string, err error)
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	IdleTimeout time.Duration
	Heartbeat   time.Duration

	// OpenTimeout bounds a single Link.Open call. Zero means no bound.
	OpenTimeout time.Duration

	// BreakerFailures trips the open breaker after that many consecutive
	// failed opens; while tripped, opens fail fast for BreakerCooldown.
	// Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Observer Observer
	Logger   *logger.Logger
}

// Stats is a lock-free snapshot of the manager's counters.
type Stats struct {
	Open          bool          `json:"open"`
	Opens         uint64        `json:"opens"`
	Closes        uint64        `json:"closes"`
	Commands      uint64        `json:"commands"`
	Failures      uint64        `json:"failures"`
	LastCommandAt time.Time     `json:"last_command_at"`
	IdleTimeout   time.Duration `json:"idle_timeout"`
	Heartbeat     time.Duration `json:"heartbeat"`
}

// Manager wraps a device.Link and serializes every operation on it.
//
// Connect, Close, SendCommand, SetIdleTimeout and the watchdog tick all run
// inside one mutual-exclusion domain (sem), so at most one Open/Close/Send is
// in flight at any time.
type Manager struct {
	link    device.Link
	breaker *gobreaker.CircuitBreaker
	obs     Observer
	log     *logger.Logger
	now     func() time.Time

	openTimeout time.Duration
	heartbeat   time.Duration

	// sem is a single-slot semaphore; holding it grants access to the fields
	// below and to the link. A channel rather than a mutex so that waiting
	// callers can give up when their context ends.
	sem chan struct{}

	open          bool
	lastCommandAt time.Time
	idleTimeout   time.Duration
	watchdog      *time.Timer
	generation    uint64

	// lock-free mirrors for Stats and IsOpen
	openFlag    atomic.Bool
	opens       atomic.Uint64
	closes      atomic.Uint64
	commands    atomic.Uint64
	failures    atomic.Uint64
	lastCmdUnix atomic.Int64
	idleNanos   atomic.Int64
}

// NewManager builds a manager around link. The link starts closed.
func NewManager(link device.Link, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	m := &Manager{
		link:        link,
		obs:         opts.Observer,
		log:         logger.OrNop(opts.Logger),
		now:         time.Now,
		openTimeout: opts.OpenTimeout,
		heartbeat:   opts.Heartbeat,
		sem:         make(chan struct{}, 1),
		idleTimeout: opts.IdleTimeout,
	}
	m.idleNanos.Store(int64(opts.IdleTimeout))

	if opts.BreakerFailures > 0 {
		threshold := opts.BreakerFailures
		m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "device-link",
			MaxRequests: 1,
			Timeout:     opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				m.log.Warnw("link_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return m
}

func (m *Manager) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() { <-m.sem }

// Connect opens the link if it is not open yet and (re)starts the idle watchdog.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.lock(ctx); err != nil {
		return fmt.Errorf("%w: %w", device.ErrLinkUnavailable, err)
	}
	defer m.unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	if m.open {
		return nil
	}
	if err := m.openLink(ctx); err != nil {
		m.log.Errorw("link_open_failed", "err", err)
		if errors.Is(err, device.ErrLinkUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", device.ErrLinkUnavailable, err)
	}

	m.open = true
	m.openFlag.Store(true)
	m.opens.Add(1)
	m.touchLocked()
	m.startWatchdogLocked()
	m.obs.LinkOpened()
	m.log.Infow("link_opened", "idle_timeout", m.idleTimeout.String(), "heartbeat", m.heartbeat.String())
	return nil
}

func (m *Manager) openLink(ctx context.Context) error {
	if m.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.openTimeout)
		defer cancel()
	}
	if m.breaker == nil {
		return m.link.Open(ctx)
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		return nil, m.link.Open(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", device.ErrLinkUnavailable, err)
	}
	return err
}

// Close closes the link if it is open and stops the watchdog. Idempotent.
func (m *Manager) Close() error {
	m.sem <- struct{}{}
	defer m.unlock()
	return m.closeLocked(ReasonRequested)
}

func (m *Manager) closeLocked(reason string) error {
	if !m.open {
		return nil
	}
	m.stopWatchdogLocked()
	m.open = false
	m.openFlag.Store(false)
	m.closes.Add(1)
	err := m.link.Close()
	m.obs.LinkClosed(reason)
	if err != nil {
		m.log.Warnw("link_close_failed", "reason", reason, "err", err)
		return fmt.Errorf("close link: %w", err)
	}
	m.log.Infow("link_closed", "reason", reason, "last_command_at", m.lastCommandAt)
	return nil
}

// SendCommand delivers cmd to the device, opening the link first if it is
// closed. The reply is returned verbatim.
func (m *Manager) SendCommand(ctx context.Context, cmd device.Command) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", device.ErrCommandFailed, err)
	}
	defer m.unlock()

	if err := m.connectLocked(ctx); err != nil {
		m.failures.Add(1)
		m.obs.CommandSent(string(cmd.Op), err)
		return "", err
	}

	m.touchLocked()
	m.commands.Add(1)
	reply, err := m.link.Send(ctx, cmd)
	m.obs.CommandSent(string(cmd.Op), err)
	if err == nil {
		return reply, nil
	}

	m.failures.Add(1)
	m.log.Errorw("link_command_failed", "command", cmd.String(), "err", err)
	if errors.Is(err, device.ErrLinkDropped) {
		// the radio went away under us; next command reconnects
		_ = m.closeLocked(ReasonDropped)
	}
	if errors.Is(err, device.ErrCommandFailed) {
		return "", err
	}
	return "", fmt.Errorf("%w: %w", device.ErrCommandFailed, err)
}

// SetIdleTimeout replaces the idle timeout read by subsequent watchdog ticks.
func (m *Manager) SetIdleTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, d)
	}
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	m.idleTimeout = d
	m.idleNanos.Store(int64(d))
	m.log.Infow("link_idle_timeout_set", "idle_timeout", d.String())
	return nil
}

// IsOpen reports whether the link is currently open without waiting for the lock.
func (m *Manager) IsOpen() bool { return m.openFlag.Load() }

// IdleTimeout returns the current idle timeout.
func (m *Manager) IdleTimeout() time.Duration { return time.Duration(m.idleNanos.Load()) }

// Stats returns a snapshot of the counters without waiting for the lock.
func (m *Manager) Stats() Stats {
	var last time.Time
	if n := m.lastCmdUnix.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return Stats{
		Open:          m.openFlag.Load(),
		Opens:         m.opens.Load(),
		Closes:        m.closes.Load(),
		Commands:      m.commands.Load(),
		Failures:      m.failures.Load(),
		LastCommandAt: last,
		IdleTimeout:   m.IdleTimeout(),
		Heartbeat:     m.heartbeat,
	}
}

func (m *Manager) touchLocked() {
	m.lastCommandAt = m.now()
	m.lastCmdUnix.Store(m.lastCommandAt.UnixNano())
}

// ---- watchdog ----

// startWatchdogLocked invalidates any pending tick and arms a fresh one.
func (m *Manager) startWatchdogLocked() {
	m.stopWatchdogLocked()
	m.armWatchdogLocked(m.generation)
}

func (m *Manager) armWatchdogLocked(gen uint64) {
	m.watchdog = time.AfterFunc(m.heartbeat, func() { m.tick(gen) })
}

// stopWatchdogLocked bumps the generation so a tick already waiting for the
// lock recognises itself as stale.
func (m *Manager) stopWatchdogLocked() {
	m.generation++
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

// tick evaluates idleness once: close when now >= lastCommandAt+idleTimeout,
// otherwise re-arm for another heartbeat.
func (m *Manager) tick(gen uint64) {
	m.sem <- struct{}{}
	defer m.unlock()

	if gen != m.generation || !m.open {
		return
	}
	deadline := m.lastCommandAt.Add(m.idleTimeout)
	if now := m.now(); !now.Before(deadline) {
		m.log.Infow("link_idle_timeout", "last_command_at", m.lastCommandAt, "idle_timeout", m.idleTimeout.String())
		_ = m.closeLocked(ReasonIdle)
		return
	}
	m.log.Debugw("link_watchdog_rearmed", "idle_in", deadline.Sub(m.now()).String())
	m.armWatchdogLocked(gen)
}

type noopObserver struct{}

func (noopObserver) LinkOpened()               {}
func (noopObserver) LinkClosed(string)         {}
func (noopObserver) CommandSent(string, error) {}

// Observers fans notifications out to several observers.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (mo multiObserver) LinkOpened() {
	for _, o := range mo {
		o.LinkOpened()
	}
}

func (mo multiObserver) LinkClosed(reason string) {
	for _, o := range mo {
		o.LinkClosed(reason)
	}
}

func (mo multiObserver) CommandSent(op string, err error) {
	for _, o := range mo {
		o.CommandSent(op, err)
	}
}
