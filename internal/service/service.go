package service

import (
	"context"
	"time"

	"sous_vide/internal/connection"
	"sous_vide/internal/device"
	"sous_vide/internal/jobs"
	"sous_vide/internal/logger"
	"sous_vide/internal/models"
	"sous_vide/internal/repository"
	"sous_vide/internal/telemetry"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Device issues immediate commands to the circulator.
type Device interface {
	ReadTemperature(ctx context.Context) (models.TemperatureReading, error)
	SetTemperature(ctx context.Context, value string) (string, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	SetTimer(ctx context.Context, minutes int) (string, error)
	StartTimer(ctx context.Context) (string, error)
	StopTimer(ctx context.Context) (string, error)
	ReadTimer(ctx context.Context) (string, error)
	SetLED(ctx context.Context, r, g, b int) (string, error)
	SetIdleTimeout(ctx context.Context, seconds int) error
	LinkStats() connection.Stats
}

// Planner schedules deferred starts and temperature changes.
type Planner interface {
	ScheduleAction(ctx context.Context, startTime, temperature string) (int, error)
	ListActions(ctx context.Context) []models.ActionSummary
	CancelAction(ctx context.Context, id int) error
}

// Monitoring serves the device status, live or from the background cache.
type Monitoring interface {
	Seed(ctx context.Context) error
	GetStatus(ctx context.Context) models.DeviceStatus
	RefreshStatus(ctx context.Context) models.DeviceStatus
	Run(ctx context.Context, interval time.Duration)
}

// EventLog exposes the append-only device history.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error)
}

// Commander sends one command to the device, opening the link when needed.
type Commander interface {
	SendCommand(ctx context.Context, cmd device.Command) (string, error)
}

// Link is the connection manager surface the services use.
type Link interface {
	Commander
	SetIdleTimeout(ctx context.Context, d time.Duration) error
	IsOpen() bool
	Stats() connection.Stats
}

// Metrics receives planner counters. *metrics.Collector implements it.
type Metrics interface {
	ActionScheduled(kind string)
	ActionCancelled()
	JobFired(op string, err error)
	JobMissed(op string)
}

type Service struct {
	Device
	Planner
	Monitoring
	EventLog
	Authorization
}

// Deps carries everything built in main that the services share.
type Deps struct {
	Link      Link
	Scheduler JobScheduler
	Registry  *jobs.Registry
	Metrics   Metrics
	Sink      telemetry.Sink

	Location       *time.Location
	CommandTimeout time.Duration
	Auth           AuthConfig

	Logger *logger.Logger
}

func NewService(repos *repository.Repository, deps Deps) *Service {
	log := logger.OrNop(deps.Logger)
	planner := NewPlannerService(deps.Scheduler, deps.Registry, deps.Link, repos.EventRepo, deps.Metrics, PlannerOptions{
		Location:       deps.Location,
		CommandTimeout: deps.CommandTimeout,
		Logger:         log.Named("planner"),
	})

	return &Service{
		Device:        NewDeviceService(deps.Link, repos.EventRepo, deps.CommandTimeout, log.Named("device")),
		Planner:       planner,
		Monitoring:    NewMonitoringService(deps.Link, repos.StatusRepo, deps.Sink, deps.CommandTimeout, log.Named("status")),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, deps.Auth),
	}
}
