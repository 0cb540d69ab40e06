package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

var ErrNotFound = errors.New("job not found")

// Job tracks one asynchronous summarization. The note text is never stored.
type Job struct {
	ID          string                     `json:"id"`
	NoteID      string                     `json:"note_id"`
	Status      Status                     `json:"status"`
	Stage       string                     `json:"stage,omitempty"`
	FailedStage string                     `json:"failed_stage,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Summary     *handoff.StructuredSummary `json:"summary,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Store persists job records. Implementations must be safe for concurrent
// use. Every method returns ErrNotFound for an unknown job ID.
type Store interface {
	Create(ctx context.Context, noteID string) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	// SetStage marks the job running in the named pipeline stage.
	SetStage(ctx context.Context, id, stage string) error
	Complete(ctx context.Context, id string, summary handoff.StructuredSummary) error
	Fail(ctx context.Context, id, stage, reason string) error
	// List returns up to limit jobs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Job, error)
}
