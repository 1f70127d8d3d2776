// Package alerts turns freshness status transitions into stored
// notifications and WhatsApp messages.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/profile"
	"github.com/kalambet/resqfreeze/internal/storage"
)

// JobStore abstracts the job queue and notification table.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	AddNotification(n storage.Notification) (storage.Notification, bool, error)
}

// Messenger delivers a text message to a phone number.
type Messenger interface {
	Send(ctx context.Context, phone, text string) error
}

// ProfileSource supplies the owner's contact details.
type ProfileSource interface {
	GetProfile() (profile.Profile, error)
}

// Transition is the payload of a status_transition job.
type Transition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ReadingID int64     `json:"reading_id"`
	VOC       float64   `json:"voc"`
	At        time.Time `json:"at"`
}

// Enqueuer is the producing side of the job queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) (string, error)
}

// EnqueueTransition schedules a status_transition job.
func EnqueueTransition(q Enqueuer, t Transition) (string, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding transition: %w", err)
	}
	return q.EnqueueJob(storage.Job{Type: storage.JobStatusTransition, PayloadJSON: string(payload)})
}

// Worker processes status_transition jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	messenger Messenger
	profile   ProfileSource
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker. messenger may be nil to only record
// notifications. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, messenger Messenger, profile ProfileSource, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		messenger: messenger,
		profile:   profile,
		poll:      pollInterval,
		logger:    slog.Default().With("component", "alerts"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It returns true if a job was
// processed, whether or not it succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobStatusTransition})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var t Transition
	if err := json.Unmarshal([]byte(job.PayloadJSON), &t); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if t.At.IsZero() {
		t.At = job.CreatedAt
	}

	p, err := w.profile.GetProfile()
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}

	title, message := Describe(t, p.VegetableName)
	_, created, err := w.store.AddNotification(storage.Notification{
		Kind:      storage.JobStatusTransition,
		Title:     title,
		Message:   message,
		DedupeKey: DedupeKey(t),
		CreatedAt: t.At,
	})
	if err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}
	// A retry finds its own notification already stored; only a first
	// attempt that hit a duplicate is skipped.
	if !created && job.Attempts == 0 {
		w.logger.Debug("duplicate transition today, skipping", "title", title)
		return nil
	}

	if w.messenger == nil || p.WhatsAppNumber == "" {
		return nil
	}
	if err := w.messenger.Send(ctx, p.WhatsAppNumber, title+"\n\n"+message); err != nil {
		return fmt.Errorf("sending whatsapp message: %w", err)
	}
	w.logger.Info("transition alert sent", "title", title)
	return nil
}

// Describe renders the notification title and body for a transition.
func Describe(t Transition, vegetable string) (title, message string) {
	from, to := displayName(t.From), displayName(t.To)
	title = fmt.Sprintf("%s -> %s", from, to)

	v, ok := freshness.FromLabel(t.To, nil)
	advice := ""
	if ok {
		advice = " " + v.Recommendation + "."
	}
	message = fmt.Sprintf("Your %s changed from %s to %s (VOC %g).%s", vegetable, from, to, t.VOC, advice)
	return title, message
}

// DedupeKey limits each distinct transition to one notification per day.
func DedupeKey(t Transition) string {
	return fmt.Sprintf("%s:%s->%s:%s", storage.JobStatusTransition, t.From, t.To, t.At.UTC().Format(time.DateOnly))
}

func displayName(label string) string {
	if c, ok := freshness.ParseCategory(label); ok {
		return c.String()
	}
	return label
}
