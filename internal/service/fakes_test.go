package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sous_vide/internal/connection"
	"sous_vide/internal/device"
	"sous_vide/internal/models"
)

// fakeLink answers commands from a table and records what it was sent.
type fakeLink struct {
	mu      sync.Mutex
	replies map[device.Op]string
	errs    map[device.Op]error
	sent    []string
	open    bool
	idle    time.Duration
	idleErr error
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		replies: map[device.Op]string{
			device.OpReadTemp:    "134.9",
			device.OpReadSetTemp: "135.5",
			device.OpReadUnit:    "f",
			device.OpReadStatus:  device.StateRunning,
			device.OpStart:       "s",
			device.OpStop:        "s",
		},
		errs: map[device.Op]error{},
	}
}

func (f *fakeLink) SendCommand(_ context.Context, cmd device.Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd.String())
	if err := f.errs[cmd.Op]; err != nil {
		return "", err
	}
	f.open = true
	if r, ok := f.replies[cmd.Op]; ok {
		return r, nil
	}
	return cmd.String(), nil
}

func (f *fakeLink) SetIdleTimeout(_ context.Context, d time.Duration) error {
	if f.idleErr != nil {
		return f.idleErr
	}
	f.mu.Lock()
	f.idle = d
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeLink) Stats() connection.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return connection.Stats{Open: f.open, Commands: uint64(len(f.sent)), IdleTimeout: f.idle}
}

func (f *fakeLink) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// memEventRepo is an in-memory repository.EventRepo.
type memEventRepo struct {
	mu     sync.Mutex
	events []models.DeviceEvent
	err    error
}

func (m *memEventRepo) Append(_ context.Context, e models.DeviceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventRepo) List(_ context.Context, _, _ time.Time, typ string) ([]models.DeviceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeviceEvent
	for _, e := range m.events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventRepo) ofType(typ string) []models.DeviceEvent {
	out, _ := m.List(context.Background(), time.Time{}, time.Time{}, typ)
	return out
}

type fakeMetrics struct {
	mu        sync.Mutex
	scheduled []string
	cancelled int
	fired     []string
	missed    []string
}

func (f *fakeMetrics) ActionScheduled(kind string) {
	f.mu.Lock()
	f.scheduled = append(f.scheduled, kind)
	f.mu.Unlock()
}

func (f *fakeMetrics) ActionCancelled() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}

func (f *fakeMetrics) JobFired(op string, err error) {
	f.mu.Lock()
	r := op + ":ok"
	if err != nil {
		r = op + ":error"
	}
	f.fired = append(f.fired, r)
	f.mu.Unlock()
}

func (f *fakeMetrics) JobMissed(op string) {
	f.mu.Lock()
	f.missed = append(f.missed, op)
	f.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
