package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

var (
	ErrQueueFull     = errors.New("job queue is full")
	ErrRunnerStopped = errors.New("job runner is stopped")
)

// Processor is the part of handoff.Pipeline the runner drives.
type Processor interface {
	ProcessWithProgress(ctx context.Context, req handoff.NoteRequest, progress handoff.StageProgressFn) (handoff.StructuredSummary, error)
}

type RunnerConfig struct {
	Workers   int
	QueueSize int
	Logger    *zap.Logger
	// OnQueueDepth, when set, is called with the number of waiting jobs
	// after every enqueue and dequeue.
	OnQueueDepth func(int)
}

type task struct {
	jobID string
	req   handoff.NoteRequest
}

// Runner executes submitted notes on a fixed pool of workers fed by a bounded
// queue. Submit never blocks: a full queue fails the job immediately.
type Runner struct {
	store   Store
	proc    Processor
	workers int
	logger  *zap.Logger
	onDepth func(int)

	mu      sync.RWMutex
	queue   chan task
	stopped bool
	wg      sync.WaitGroup
}

func NewRunner(store Store, proc Processor, cfg RunnerConfig) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnQueueDepth == nil {
		cfg.OnQueueDepth = func(int) {}
	}
	return &Runner{
		store:   store,
		proc:    proc,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		onDepth: cfg.OnQueueDepth,
		queue:   make(chan task, cfg.QueueSize),
	}
}

func (r *Runner) Store() Store { return r.store }

// Start launches the workers. They exit when ctx is cancelled or when Stop
// closes the queue.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
}

// Stop refuses new submissions and waits for the workers to exit. Jobs still
// queued after that, because ctx was cancelled or Start never ran, are
// marked failed so no record is left queued.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	for t := range r.queue {
		r.abandon(t)
	}
}

func (r *Runner) Submit(ctx context.Context, req handoff.NoteRequest) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return Job{}, ErrRunnerStopped
	}
	job, err := r.store.Create(ctx, req.NoteID)
	if err != nil {
		return Job{}, err
	}
	select {
	case r.queue <- task{jobID: job.ID, req: req}:
		r.onDepth(len(r.queue))
		r.logger.Info("job queued", zap.String("job_id", job.ID), zap.String("note_id", req.NoteID))
		return job, nil
	default:
		if ferr := r.store.Fail(ctx, job.ID, "", ErrQueueFull.Error()); ferr != nil {
			r.logger.Error("mark rejected job failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return Job{}, ErrQueueFull
	}
}

func (r *Runner) work(ctx context.Context, worker int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-r.queue:
			if !ok {
				return
			}
			r.onDepth(len(r.queue))
			if ctx.Err() != nil {
				r.abandon(t)
				continue
			}
			r.run(ctx, worker, t)
		}
	}
}

func (r *Runner) run(ctx context.Context, worker int, t task) {
	log := r.logger.With(zap.String("job_id", t.jobID), zap.Int("worker", worker))
	summary, err := r.proc.ProcessWithProgress(ctx, t.req, func(stage, _ string) {
		if serr := r.store.SetStage(ctx, t.jobID, stage); serr != nil {
			log.Warn("record job stage", zap.String("stage", stage), zap.Error(serr))
		}
	})
	// A cancelled ctx must not stop the final transition from being recorded.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		stage := handoff.StageNameFromError(err)
		if ferr := r.store.Fail(recordCtx, t.jobID, stage, err.Error()); ferr != nil {
			log.Error("record job failure", zap.Error(ferr))
		}
		log.Warn("job failed", zap.String("stage", stage), zap.Error(err))
		return
	}
	if cerr := r.store.Complete(recordCtx, t.jobID, summary); cerr != nil {
		log.Error("record job completion", zap.Error(cerr))
		return
	}
	log.Info("job completed", zap.String("summary_id", summary.ID))
}

func (r *Runner) abandon(t task) {
	r.onDepth(len(r.queue))
	if err := r.store.Fail(context.Background(), t.jobID, "", ErrRunnerStopped.Error()); err != nil {
		r.logger.Error("record abandoned job", zap.String("job_id", t.jobID), zap.Error(err))
		return
	}
	r.logger.Warn("job abandoned", zap.String("job_id", t.jobID))
}
