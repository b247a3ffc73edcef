package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hmori/go-civic-response/internal/config"
	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
	"github.com/hmori/go-civic-response/internal/worker"
)

const (
	KindReportCreated = "report.created"
	KindAlertResponse = "alert.response"
)

type Event struct {
	UserID  string
	Kind    string
	RefID   string
	Message string
}

// Recorder turns report and response events into social feed rows.
// Recording is best-effort: a full queue drops the event with a log
// line rather than slowing the request path.
type Recorder struct {
	repo repository.ActivityRepository
	pool *worker.Pool[Event]
}

func NewRecorder(cfg *config.Config, repo repository.ActivityRepository) *Recorder {
	r := &Recorder{
		repo: repo,
	}

	processor := func(ctx context.Context, ev Event) error {
		entry := &models.ActivityEntry{
			ID:        uuid.NewString(),
			UserID:    ev.UserID,
			Kind:      ev.Kind,
			RefID:     ev.RefID,
			Message:   ev.Message,
			CreatedAt: time.Now(),
		}
		if err := r.repo.AddActivity(ctx, entry); err != nil {
			slog.Error("error recording activity", "kind", ev.Kind, "ref_id", ev.RefID, "error", err)
			return err
		}
		return nil
	}

	r.pool = worker.NewPool(cfg.Worker.Count, cfg.Worker.BufferSize, processor)
	return r
}

func (r *Recorder) Start(ctx context.Context) {
	r.pool.Start(ctx)
}

func (r *Recorder) Record(ev Event) {
	if !r.pool.TrySubmit(ev) {
		slog.Warn("activity queue full, dropping event", "kind", ev.Kind, "ref_id", ev.RefID)
	}
}

func (r *Recorder) Stop() {
	r.pool.Stop()
	slog.Info("activity recorder stopped")
}
