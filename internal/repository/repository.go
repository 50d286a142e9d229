package repository

import (
	"context"
	"database/sql"
	"time"

	"sous_vide/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StatusRepo keeps the last polled device status across restarts.
type StatusRepo interface {
	Save(ctx context.Context, s models.DeviceStatus) error
	Load(ctx context.Context) (models.DeviceStatus, bool, error)
}

// EventRepo is the append-only device event log.
type EventRepo interface {
	Append(ctx context.Context, e models.DeviceEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.DeviceEvent, error)
}

type Repository struct {
	StatusRepo StatusRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StatusRepo: NewStatusSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
