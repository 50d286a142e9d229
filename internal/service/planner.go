package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sous_vide/internal/device"
	"sous_vide/internal/jobs"
	"sous_vide/internal/logger"
	"sous_vide/internal/models"
	"sous_vide/internal/repository"
	"sous_vide/internal/scheduler"
)

// DefaultTimezone is where requested start times are interpreted when no
// location is configured.
const DefaultTimezone = "America/New_York"

// tempChangeDelay separates the start job from the temperature job of one
// action so the device is running before the new set point arrives.
const tempChangeDelay = time.Second

// JobScheduler is the part of *scheduler.Scheduler the planner drives.
type JobScheduler interface {
	ScheduleAt(at time.Time, name string, fn scheduler.Func) (scheduler.Handle, error)
	Cancel(h scheduler.Handle) bool
}

type PlannerOptions struct {
	Location       *time.Location
	CommandTimeout time.Duration
	Logger         *logger.Logger
}

type PlannerService struct {
	sched    JobScheduler
	registry *jobs.Registry
	link     Commander
	events   repository.EventRepo
	metrics  Metrics
	loc      *time.Location
	timeout  time.Duration
	log      *logger.Logger

	// mu is held from the first ScheduleAt until the action is registered.
	// Jobs and the misfire hook take it before looking at their action, so
	// they never observe a half-built one.
	mu sync.Mutex
}

// plannedAction is shared between ScheduleAction and the jobs it creates.
// Fields are written under PlannerService.mu. An id of 0 after
// registration means the action was rolled back.
type plannedAction struct {
	id      int
	handles []scheduler.Handle
}

func NewPlannerService(sched JobScheduler, registry *jobs.Registry, link Commander, events repository.EventRepo, m Metrics, opts PlannerOptions) *PlannerService {
	p := &PlannerService{
		sched:    sched,
		registry: registry,
		link:     link,
		events:   events,
		metrics:  m,
		loc:      opts.Location,
		timeout:  opts.CommandTimeout,
		log:      logger.OrNop(opts.Logger),
	}
	if p.loc == nil {
		p.loc = defaultLocation()
	}
	if p.timeout <= 0 {
		p.timeout = defaultCommandTimeout
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	if hooked, ok := sched.(interface {
		OnMisfire(func(scheduler.Handle, string))
	}); ok {
		hooked.OnMisfire(p.misfired)
	}
	return p
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizeStart parses an RFC 3339 instant and converts it to loc. The
// instant itself never changes, only the zone it is expressed in.
func NormalizeStart(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	if loc == nil {
		loc = defaultLocation()
	}
	return t.In(loc), nil
}

// ScheduleAction plans a start at startTime and, when temperature is not
// blank, a set-temperature one second later. Returns the action id.
func (p *PlannerService) ScheduleAction(ctx context.Context, startTime, temperature string) (int, error) {
	start, err := NormalizeStart(startTime, p.loc)
	if err != nil {
		return 0, err
	}

	kind := jobs.KindDelayedStart
	temp := ""
	if strings.TrimSpace(temperature) != "" {
		var err error
		if temp, err = parseTemperature(temperature); err != nil {
			return 0, err
		}
		kind = jobs.KindDelayedStartTempChange
	}

	id, err := p.plan(kind, start, temp)
	if err != nil {
		p.log.Errorw("action_schedule_failed", "start", start, "err", err)
		return 0, err
	}

	p.metrics.ActionScheduled(string(kind))
	p.log.Infow("action_scheduled", "id", id, "kind", kind, "start", start, "temperature", temp)
	appendEvent(ctx, p.events, p.log, models.EventActionScheduled,
		fmt.Sprintf("action %d scheduled for %s", id, start.Format(time.RFC3339)),
		map[string]any{"action_id": id, "kind": string(kind), "start": start.Format(time.RFC3339), "temperature": temp})
	return id, nil
}

func (p *PlannerService) plan(kind jobs.Kind, start time.Time, temp string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pa := &plannedAction{}
	h, err := p.sched.ScheduleAt(start, string(device.OpStart), p.job(pa, 0, device.Start()))
	if err != nil {
		return 0, err
	}
	pa.handles = append(pa.handles, h)

	if kind == jobs.KindDelayedStartTempChange {
		h, err := p.sched.ScheduleAt(start.Add(tempChangeDelay), string(device.OpSetTemp), p.job(pa, 1, device.SetTemp(temp)))
		if err != nil {
			p.sched.Cancel(pa.handles[0])
			return 0, err
		}
		pa.handles = append(pa.handles, h)
	}

	pa.id = p.registry.Register(kind, start, temp, pa.handles)
	return pa.id, nil
}

func (p *PlannerService) job(pa *plannedAction, idx int, cmd device.Command) scheduler.Func {
	return func(ctx context.Context) {
		p.mu.Lock()
		id := pa.id
		var h scheduler.Handle
		if idx < len(pa.handles) {
			h = pa.handles[idx]
		}
		p.mu.Unlock()

		if id == 0 {
			return
		}
		if _, err := p.registry.Get(id); err != nil {
			// cancelled while this job was already on its way out of the queue
			return
		}
		p.fire(ctx, id, h, cmd)
	}
}

func (p *PlannerService) fire(ctx context.Context, id int, h scheduler.Handle, cmd device.Command) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	reply, err := p.link.SendCommand(cctx, cmd)
	cancel()

	p.registry.MarkFired(id, h)
	p.metrics.JobFired(string(cmd.Op), err)

	meta := map[string]any{"action_id": id, "command": cmd.String()}
	if err != nil {
		meta["error"] = err.Error()
		p.log.Errorw("action_job_failed", "id", id, "command", cmd.String(), "err", err)
		appendEvent(ctx, p.events, p.log, models.EventActionFailed,
			fmt.Sprintf("action %d: %s failed", id, cmd.String()), meta)
		return
	}
	meta["reply"] = strings.TrimSpace(reply)
	p.log.Infow("action_job_fired", "id", id, "command", cmd.String(), "reply", meta["reply"])
	appendEvent(ctx, p.events, p.log, models.EventActionFired,
		fmt.Sprintf("action %d: %s", id, cmd.String()), meta)
}

// misfired runs on the scheduler loop when a job started too late to be useful.
func (p *PlannerService) misfired(h scheduler.Handle, name string) {
	p.mu.Lock()
	p.mu.Unlock() //nolint:staticcheck // wait out a registration in progress

	id, ok := p.registry.MarkMissed(h)
	if !ok {
		return
	}
	p.metrics.JobMissed(name)
	p.log.Warnw("action_job_missed", "id", id, "job", name)
	appendEvent(context.Background(), p.events, p.log, models.EventActionFailed,
		fmt.Sprintf("action %d: %s missed its start time", id, name),
		map[string]any{"action_id": id, "command": name, "error": "missed"})
}

// ListActions returns every tracked action in the order it was scheduled.
func (p *PlannerService) ListActions(context.Context) []models.ActionSummary {
	list := p.registry.List()
	out := make([]models.ActionSummary, 0, len(list))
	for _, a := range list {
		out = append(out, models.ActionSummary{
			ID:             a.ID,
			Kind:           string(a.Kind),
			RequestedStart: a.RequestedStart,
			Temperature:    a.Temperature,
			Status:         string(a.Status),
			CreatedAt:      a.CreatedAt,
		})
	}
	return out
}

// CancelAction drops the action and any of its jobs that have not run.
// Fails with jobs.ErrNotFound for unknown ids.
func (p *PlannerService) CancelAction(ctx context.Context, id int) error {
	if err := p.registry.Cancel(id); err != nil {
		return err
	}
	p.metrics.ActionCancelled()
	p.log.Infow("action_cancelled", "id", id)
	appendEvent(ctx, p.events, p.log, models.EventActionCancelled,
		fmt.Sprintf("action %d cancelled", id), map[string]int{"action_id": id})
	return nil
}

type nopMetrics struct{}

func (nopMetrics) ActionScheduled(string) {}
func (nopMetrics) ActionCancelled()       {}
func (nopMetrics) JobFired(string, error) {}
func (nopMetrics) JobMissed(string)       {}
