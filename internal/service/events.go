package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sous_vide/internal/logger"
	"sous_vide/internal/models"
	"sous_vide/internal/repository"
)

// appendEvent writes to the history. The device already acted by the time
// this runs, so a failed write is logged and not returned.
func appendEvent(ctx context.Context, repo repository.EventRepo, log *logger.Logger, typ, desc string, meta any) {
	if repo == nil {
		return
	}
	err := repo.Append(ctx, models.DeviceEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}

const linkEventBuffer = 64

// LinkEventRecorder turns link lifecycle notifications into history entries.
// The connection manager notifies while holding its lock, so events are
// queued and written by Run on its own goroutine.
type LinkEventRecorder struct {
	repo  repository.EventRepo
	log   *logger.Logger
	queue chan models.DeviceEvent
}

func NewLinkEventRecorder(repo repository.EventRepo, log *logger.Logger) *LinkEventRecorder {
	return &LinkEventRecorder{
		repo:  repo,
		log:   logger.OrNop(log),
		queue: make(chan models.DeviceEvent, linkEventBuffer),
	}
}

func (r *LinkEventRecorder) LinkOpened() {
	r.enqueue(models.EventLinkOpened, "device link opened", nil)
}

func (r *LinkEventRecorder) LinkClosed(reason string) {
	r.enqueue(models.EventLinkClosed, "device link closed: "+reason, map[string]string{"reason": reason})
}

// CommandSent is not recorded; the device and planner services log commands
// with their own context.
func (r *LinkEventRecorder) CommandSent(string, error) {}

func (r *LinkEventRecorder) enqueue(typ, desc string, meta any) {
	ev := models.DeviceEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warnw("link_event_dropped", "type", typ)
	}
}

// Run writes queued events until ctx is done, then flushes what is left.
func (r *LinkEventRecorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.write(ctx, ev)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *LinkEventRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.write(ctx, ev)
		default:
			return
		}
	}
}

func (r *LinkEventRecorder) write(ctx context.Context, ev models.DeviceEvent) {
	if err := r.repo.Append(ctx, ev); err != nil {
		r.log.Warnw("link_event_append_failed", "type", ev.Type, "err", err)
	}
}
