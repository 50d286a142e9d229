package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sous_vide/internal/connection"
	"sous_vide/internal/device"
	"sous_vide/internal/logger"
	"sous_vide/internal/models"
	"sous_vide/internal/repository"
)

const defaultCommandTimeout = 15 * time.Second

// Replies the circulator sometimes abbreviates.
const (
	replyShort    = "s"
	replyStarting = "starting"
	replyStopped  = "stopped"
)

type DeviceService struct {
	link      Link
	eventRepo repository.EventRepo
	timeout   time.Duration
	log       *logger.Logger
}

func NewDeviceService(link Link, eventRepo repository.EventRepo, timeout time.Duration, log *logger.Logger) *DeviceService {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &DeviceService{link: link, eventRepo: eventRepo, timeout: timeout, log: logger.OrNop(log)}
}

func (s *DeviceService) send(ctx context.Context, cmd device.Command) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.link.SendCommand(ctx, cmd)
	if err != nil {
		s.log.Errorw("device_command_failed", "command", cmd.String(), "err", err)
		return "", err
	}
	s.log.Debugw("device_command", "command", cmd.String(), "reply", reply)
	return strings.TrimSpace(reply), nil
}

// ReadTemperature returns the bath and set-point temperatures in the device unit.
func (s *DeviceService) ReadTemperature(ctx context.Context) (models.TemperatureReading, error) {
	current, err := s.readFloat(ctx, device.ReadTemp())
	if err != nil {
		return models.TemperatureReading{}, err
	}
	set, err := s.readFloat(ctx, device.ReadSetTemp())
	if err != nil {
		return models.TemperatureReading{}, err
	}
	unit, err := s.send(ctx, device.ReadUnit())
	if err != nil {
		return models.TemperatureReading{}, err
	}
	return models.TemperatureReading{CurrentTemp: current, SetTemp: set, Unit: unit}, nil
}

func (s *DeviceService) readFloat(ctx context.Context, cmd device.Command) (float64, error) {
	reply, err := s.send(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s replied %q", device.ErrCommandFailed, cmd.Op, reply)
	}
	return v, nil
}

// SetTemperature validates value as a decimal and sends the trimmed text as given.
func (s *DeviceService) SetTemperature(ctx context.Context, value string) (string, error) {
	temp, err := parseTemperature(value)
	if err != nil {
		return "", err
	}
	reply, err := s.send(ctx, device.SetTemp(temp))
	if err != nil {
		return "", err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventSetTemp, "set temperature to "+temp, map[string]string{"value": temp})
	return reply, nil
}

func (s *DeviceService) Start(ctx context.Context) (string, error) {
	reply, err := s.send(ctx, device.Start())
	if err != nil {
		return "", err
	}
	if reply == replyShort {
		reply = replyStarting
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventStart, "device started", nil)
	return reply, nil
}

func (s *DeviceService) Stop(ctx context.Context) (string, error) {
	reply, err := s.send(ctx, device.Stop())
	if err != nil {
		return "", err
	}
	if reply == replyShort {
		reply = replyStopped
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventStop, "device stopped", nil)
	return reply, nil
}

func (s *DeviceService) SetTimer(ctx context.Context, minutes int) (string, error) {
	if minutes < 0 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidTimer, minutes)
	}
	reply, err := s.send(ctx, device.SetTimer(minutes))
	if err != nil {
		return "", err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventTimer, fmt.Sprintf("timer set to %d minutes", minutes), map[string]int{"minutes": minutes})
	return reply, nil
}

// StartTimer starts the heater first; the timer only counts down while running.
func (s *DeviceService) StartTimer(ctx context.Context) (string, error) {
	if _, err := s.Start(ctx); err != nil {
		return "", err
	}
	reply, err := s.send(ctx, device.StartTimer())
	if err != nil {
		return "", err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventTimer, "timer started", nil)
	return reply, nil
}

func (s *DeviceService) StopTimer(ctx context.Context) (string, error) {
	reply, err := s.send(ctx, device.StopTimer())
	if err != nil {
		return "", err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventTimer, "timer stopped", nil)
	return reply, nil
}

func (s *DeviceService) ReadTimer(ctx context.Context) (string, error) {
	return s.send(ctx, device.ReadTimer())
}

func (s *DeviceService) SetLED(ctx context.Context, r, g, b int) (string, error) {
	for _, c := range []int{r, g, b} {
		if c < 0 || c > 255 {
			return "", fmt.Errorf("%w: got %d", ErrInvalidColor, c)
		}
	}
	reply, err := s.send(ctx, device.SetLED(r, g, b))
	if err != nil {
		return "", err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventLED, fmt.Sprintf("led set to %d %d %d", r, g, b), []int{r, g, b})
	return reply, nil
}

// SetIdleTimeout changes how long the link may sit unused before it is closed.
func (s *DeviceService) SetIdleTimeout(ctx context.Context, seconds int) error {
	d := time.Duration(seconds) * time.Second
	if err := s.link.SetIdleTimeout(ctx, d); err != nil {
		return err
	}
	appendEvent(ctx, s.eventRepo, s.log, models.EventIdleTimeout, fmt.Sprintf("idle timeout set to %ds", seconds), map[string]int{"seconds": seconds})
	return nil
}

func (s *DeviceService) LinkStats() connection.Stats {
	return s.link.Stats()
}

// parseTemperature validates plain decimal text such as "135.50" and returns
// it trimmed, digits untouched. Exponent forms are refused because the device
// only reads positional notation.
func parseTemperature(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "eE") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTemperature, raw)
	}
	if _, err := decimal.NewFromString(raw); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTemperature, raw)
	}
	return raw, nil
}
