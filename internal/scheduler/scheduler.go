// Package scheduler runs one-shot jobs at wall-clock instants on top of
// gocron. Jobs share one worker slot, so a job that is due while another is
// still running waits for it instead of overlapping.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"sous_vide/internal/logger"
)

// DefaultMisfireGrace is how late a job may start before it is skipped.
const DefaultMisfireGrace = time.Minute

// ErrStopped is returned by ScheduleAt once Run has returned.
var ErrStopped = errors.New("scheduler: stopped")

// Handle identifies a scheduled job. The zero Handle is never issued.
type Handle uint64

// Func is the body of a job. ctx is cancelled when the scheduler stops.
type Func func(ctx context.Context)

// Options tunes a Scheduler.
type Options struct {
	// MisfireGrace skips a job that starts more than this long after its
	// instant. Zero runs every job no matter how late.
	MisfireGrace time.Duration
	Logger       *logger.Logger
}

type pendingJob struct {
	id   uuid.UUID
	name string
	at   time.Time
}

// Scheduler maps handles onto gocron one-time jobs.
type Scheduler struct {
	log   *logger.Logger
	grace time.Duration
	now   func() time.Time
	cron  gocron.Scheduler

	mu        sync.Mutex
	pending   map[Handle]pendingJob
	nextID    uint64
	stopped   bool
	runCtx    context.Context
	onMisfire func(Handle, string)
}

func New(opts Options) (*Scheduler, error) {
	log := logger.OrNop(opts.Logger)
	cron, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait),
		gocron.WithLogger(cronLogger{log}),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &Scheduler{
		log:     log,
		grace:   opts.MisfireGrace,
		now:     time.Now,
		cron:    cron,
		pending: make(map[Handle]pendingJob),
		runCtx:  context.Background(),
	}, nil
}

// OnMisfire installs a hook told about every job skipped for being too late.
func (s *Scheduler) OnMisfire(fn func(h Handle, name string)) {
	s.mu.Lock()
	s.onMisfire = fn
	s.mu.Unlock()
}

// ScheduleAt queues fn to run once at or after at. Instants in the past are
// accepted and become due immediately.
func (s *Scheduler) ScheduleAt(at time.Time, name string, fn Func) (Handle, error) {
	if fn == nil {
		return 0, fmt.Errorf("scheduler: job %q has no function", name)
	}

	// held until the handle is recorded so an immediate job cannot run
	// before execute can find it
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}
	s.nextID++
	h := Handle(s.nextID)

	j, err := s.newJob(at, name, func() { s.execute(h, fn) })
	if err != nil {
		return 0, fmt.Errorf("scheduler: job %q: %w", name, err)
	}
	s.pending[h] = pendingJob{id: j.ID(), name: name, at: at}
	s.log.Debugw("job_scheduled", "job", name, "handle", h, "at", at)
	return h, nil
}

func (s *Scheduler) newJob(at time.Time, name string, task func()) (gocron.Job, error) {
	start := gocron.OneTimeJobStartDateTime(at)
	if !at.After(s.now()) {
		start = gocron.OneTimeJobStartImmediately()
	}
	j, err := s.cron.NewJob(gocron.OneTimeJob(start), gocron.NewTask(task), gocron.WithName(name))
	if errors.Is(err, gocron.ErrOneTimeJobStartDateTimePast) {
		// the instant passed while the job was being set up
		return s.cron.NewJob(gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), gocron.NewTask(task), gocron.WithName(name))
	}
	return j, err
}

// Cancel removes a job that has not started yet. It reports false when the
// handle is unknown, already fired or already cancelled.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	p, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.remove(p.id)
	s.log.Debugw("job_cancelled", "job", p.name, "handle", h)
	return true
}

// Pending returns the number of jobs waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// IsPending reports whether h is still waiting to fire.
func (s *Scheduler) IsPending(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[h]
	return ok
}

// Run starts gocron and blocks until ctx is done. Jobs still queued at that
// point are dropped; they are never persisted.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Infow("scheduler_started", "misfire_grace", s.grace.String())

	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	dropped := len(s.pending)
	s.pending = make(map[Handle]pendingJob)
	s.mu.Unlock()

	if err := s.cron.Shutdown(); err != nil {
		s.log.Warnw("scheduler_shutdown_failed", "err", err)
	}
	s.log.Infow("scheduler_stopped", "dropped_jobs", dropped)
}

// execute is the gocron task body. A handle missing from pending was
// cancelled after gocron had already queued the run.
func (s *Scheduler) execute(h Handle, fn Func) {
	s.mu.Lock()
	p, ok := s.pending[h]
	delete(s.pending, h)
	ctx := s.runCtx
	hook := s.onMisfire
	s.mu.Unlock()

	if !ok {
		return
	}
	defer s.remove(p.id)

	late := s.now().Sub(p.at)
	if s.grace > 0 && late > s.grace {
		s.log.Warnw("job_misfired", "job", p.name, "handle", h, "at", p.at, "late", late.String())
		if hook != nil {
			hook(h, p.name)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("job_panicked", "job", p.name, "handle", h, "panic", r)
		}
	}()
	s.log.Infow("job_fired", "job", p.name, "handle", h, "at", p.at)
	fn(ctx)
}

func (s *Scheduler) remove(id uuid.UUID) {
	err := s.cron.RemoveJob(id)
	if err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.log.Debugw("job_remove_failed", "job_id", id, "err", err)
	}
}

// cronLogger routes gocron's own logging through zap.
type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Debug(msg string, args ...any) { c.l.Debugw(msg, args...) }
func (c cronLogger) Info(msg string, args ...any)  { c.l.Debugw(msg, args...) }
func (c cronLogger) Warn(msg string, args ...any)  { c.l.Warnw(msg, args...) }
func (c cronLogger) Error(msg string, args ...any) { c.l.Errorw(msg, args...) }
