package device

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// ----------- Simulation constants -----------
const (
	AmbientC        = 20.0 // room temperature °C
	MaxSafeC        = 99.0 // circulators refuse set points above boiling
	MinSafeC        = 0.0
	RampUpCPerSec   = 0.05 // heater rate while running
	CoolDownCPerSec = 0.01 // drift toward ambient while stopped
	SoakToleranceC  = 0.1  // band for "at set point"

	defaultSetTempC = 60.0
)

// Units reported by the device.
const (
	UnitCelsius    = "c"
	UnitFahrenheit = "f"
)

// Run states reported by the status command.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// SimulatorConfig tunes the simulated circulator.
type SimulatorConfig struct {
	Address     string        // informational, mirrors a real device address
	Unit        string        // c | f
	OpenLatency time.Duration // time Open takes to "pair"
}

// Simulator is an in-process Link that behaves like a circulator: the water
// bath heats toward the set point while running and drifts to ambient while
// stopped, the timer counts down while running.
//
// Like the real radio link it accepts a single connection; a second Open
// while connected fails with ErrLinkUnavailable.
type Simulator struct {
	cfg SimulatorConfig

	mu        sync.Mutex
	connected bool
	offline   bool

	running      bool
	tempC        float64
	setTempC     float64
	timerSec     float64
	timerRunning bool
	led          [3]int
	updatedAt    time.Time

	opens  int
	closes int
}

// NewSimulator returns a stopped circulator at ambient temperature.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Unit != UnitFahrenheit {
		cfg.Unit = UnitCelsius
	}
	return &Simulator{
		cfg:       cfg,
		tempC:     AmbientC,
		setTempC:  defaultSetTempC,
		updatedAt: time.Now(),
	}
}

// SetOffline makes subsequent Open calls fail, as if the device were out of range.
func (s *Simulator) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// Opens reports how many times the link was opened.
func (s *Simulator) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Connected reports whether a connection is currently held.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) Open(ctx context.Context) error {
	if s.cfg.OpenLatency > 0 {
		t := time.NewTimer(s.cfg.OpenLatency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLinkUnavailable, ctx.Err())
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return fmt.Errorf("%w: device %s out of range", ErrLinkUnavailable, s.cfg.Address)
	}
	if s.connected {
		return fmt.Errorf("%w: device %s already has a connection", ErrLinkUnavailable, s.cfg.Address)
	}
	s.connected = true
	s.opens++
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.connected = false
		s.closes++
	}
	return nil
}

func (s *Simulator) Send(ctx context.Context, cmd Command) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", fmt.Errorf("%w: not connected", ErrLinkDropped)
	}
	s.advance(time.Now())

	switch cmd.Op {
	case OpReadTemp:
		return s.formatTemp(s.tempC), nil
	case OpReadSetTemp:
		return s.formatTemp(s.setTempC), nil
	case OpReadUnit:
		return s.cfg.Unit, nil
	case OpReadStatus:
		if s.running {
			return StateRunning, nil
		}
		return StateStopped, nil
	case OpSetTemp:
		return s.setTemp(cmd.Args)
	case OpStart:
		s.running = true
		return "start", nil
	case OpStop:
		s.running = false
		s.timerRunning = false
		return "stop", nil
	case OpSetTimer:
		return s.setTimer(cmd.Args)
	case OpStartTimer:
		s.timerRunning = true
		return StateRunning, nil
	case OpStopTimer:
		s.timerRunning = false
		return StateStopped, nil
	case OpReadTimer:
		state := StateStopped
		if s.timerRunning {
			state = StateRunning
		}
		return fmt.Sprintf("%d %s", int(math.Ceil(s.timerSec/60)), state), nil
	case OpSetLED:
		return s.setLED(cmd.Args)
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrCommandFailed, cmd.String())
	}
}

// advance moves the bath forward by the time passed since the last update.
func (s *Simulator) advance(now time.Time) {
	elapsed := now.Sub(s.updatedAt).Seconds()
	s.updatedAt = now
	if elapsed <= 0 {
		return
	}

	if !s.running {
		s.driftToAmbient(elapsed)
		return
	}
	s.handleHeat(elapsed)
	if s.timerRunning && s.timerSec > 0 {
		s.timerSec = maxFloat(s.timerSec-elapsed, 0)
		if s.timerSec == 0 {
			// timer expiry stops the heater like the real unit does
			s.timerRunning = false
			s.running = false
		}
	}
}

// driftToAmbient cools toward ambient when not running.
func (s *Simulator) driftToAmbient(elapsed float64) {
	if s.tempC > AmbientC {
		s.tempC = maxFloat(s.tempC-CoolDownCPerSec*elapsed, AmbientC)
	}
}

// handleHeat ramps toward the set point and clamps overshoot.
func (s *Simulator) handleHeat(elapsed float64) {
	switch {
	case s.tempC < s.setTempC-SoakToleranceC:
		s.tempC = math.Min(s.tempC+RampUpCPerSec*elapsed, s.setTempC)
	case s.tempC > s.setTempC:
		s.tempC = maxFloat(s.tempC-CoolDownCPerSec*elapsed, s.setTempC)
	}
}

func (s *Simulator) setTemp(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: set temp needs one argument", ErrCommandFailed)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid temperature %q", ErrCommandFailed, args[0])
	}
	c := s.toCelsius(v)
	if c < MinSafeC || c > MaxSafeC {
		return "", fmt.Errorf("%w: temperature %s out of range", ErrCommandFailed, args[0])
	}
	s.setTempC = c
	return s.formatTemp(c), nil
}

func (s *Simulator) setTimer(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: set timer needs one argument", ErrCommandFailed)
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes < 0 {
		return "", fmt.Errorf("%w: invalid timer %q", ErrCommandFailed, args[0])
	}
	s.timerSec = float64(minutes) * 60
	return strconv.Itoa(minutes), nil
}

func (s *Simulator) setLED(args []string) (string, error) {
	if len(args) != 3 {
		return "", fmt.Errorf("%w: set led needs three arguments", ErrCommandFailed)
	}
	var rgb [3]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("%w: invalid led component %q", ErrCommandFailed, a)
		}
		rgb[i] = v
	}
	s.led = rgb
	return fmt.Sprintf("%d %d %d", rgb[0], rgb[1], rgb[2]), nil
}

func (s *Simulator) formatTemp(c float64) string {
	if s.cfg.Unit == UnitFahrenheit {
		return strconv.FormatFloat(c*9/5+32, 'f', 1, 64)
	}
	return strconv.FormatFloat(c, 'f', 1, 64)
}

func (s *Simulator) toCelsius(v float64) float64 {
	if s.cfg.Unit == UnitFahrenheit {
		return (v - 32) * 5 / 9
	}
	return v
}

// helpers
func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}
