// Package telemetry forwards polled device status to external systems.
package telemetry

import (
	"context"
	"errors"

	"sous_vide/internal/models"
)

// Sink receives every refreshed device status.
type Sink interface {
	PublishStatus(ctx context.Context, st models.DeviceStatus) error
	Close() error
}

// Multi fans a status out to several sinks. Every sink is tried; errors are joined.
type Multi []Sink

func (m Multi) PublishStatus(ctx context.Context, st models.DeviceStatus) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishStatus(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
