package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"sous_vide/internal/device"
	"sous_vide/internal/logger"
	"sous_vide/internal/models"
	"sous_vide/internal/repository"
	"sous_vide/internal/telemetry"
)

// MonitoringService keeps the last known device status. Reads never touch
// the device; RefreshStatus and the poller do.
type MonitoringService struct {
	link    Link
	repo    repository.StatusRepo
	sink    telemetry.Sink
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	status models.DeviceStatus
}

func NewMonitoringService(link Link, repo repository.StatusRepo, sink telemetry.Sink, timeout time.Duration, log *logger.Logger) *MonitoringService {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &MonitoringService{
		link:    link,
		repo:    repo,
		sink:    sink,
		timeout: timeout,
		log:     logger.OrNop(log),
		now:     time.Now,
		status:  models.UnknownStatus(time.Now().UTC()),
	}
}

// Seed loads the status persisted by a previous run into the cache.
func (s *MonitoringService) Seed(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	st, ok, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	// whatever the old process saw, its link is gone
	st.LinkOpen = false
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	return nil
}

// GetStatus returns the cached status with the live link state.
func (s *MonitoringService) GetStatus(context.Context) models.DeviceStatus {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.LinkOpen = s.link.IsOpen()
	return st
}

// RefreshStatus queries the device and updates the cache. Fields the device
// could not report are "unknown"; the call itself never fails.
func (s *MonitoringService) RefreshStatus(ctx context.Context) models.DeviceStatus {
	st := models.UnknownStatus(s.now().UTC())

	fields := []struct {
		cmd device.Command
		dst *string
	}{
		{device.ReadTemp(), &st.CurrentTemp},
		{device.ReadSetTemp(), &st.SetTemp},
		{device.ReadUnit(), &st.Unit},
		{device.ReadStatus(), &st.State},
	}
	for _, f := range fields {
		reply, err := s.query(ctx, f.cmd)
		if err != nil {
			s.log.Warnw("status_query_failed", "command", f.cmd.String(), "err", err)
			if errors.Is(err, device.ErrLinkUnavailable) || ctx.Err() != nil {
				break
			}
			continue
		}
		if reply != "" {
			*f.dst = reply
		}
	}
	st.LinkOpen = s.link.IsOpen()

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Save(ctx, st); err != nil {
			s.log.Warnw("status_save_failed", "err", err)
		}
	}
	if s.sink != nil {
		if err := s.sink.PublishStatus(ctx, st); err != nil {
			s.log.Warnw("status_publish_failed", "err", err)
		}
	}
	return st
}

func (s *MonitoringService) query(ctx context.Context, cmd device.Command) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reply, err := s.link.SendCommand(ctx, cmd)
	return strings.TrimSpace(reply), err
}

// Run refreshes the status every interval until ctx is done. A zero
// interval disables polling so the link can close when idle.
func (s *MonitoringService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.RefreshStatus(ctx)
		}
	}
}
