package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrRunnerClosed = errors.New("job runner is shut down")

// Processor is anything that can process one uploaded schedule image.
type Processor interface {
	Process(ctx context.Context, scheduleImageID int64, blobKey string) error
}

// Job is one background processing run.
type Job struct {
	ScheduleImageID int64
	BlobKey         string

	done       chan struct{}
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err is the job's result. It is only meaningful after Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) StartedAt() time.Time { return j.startedAt }

// FinishedAt is zero until Done is closed.
func (j *Job) FinishedAt() time.Time {
	select {
	case <-j.done:
		return j.finishedAt
	default:
		return time.Time{}
	}
}

// Observer is called once for every finished job, after Done is closed.
type Observer func(job *Job)

type RunnerOption func(*Runner)

func WithObserver(fn Observer) RunnerOption {
	return func(r *Runner) { r.observer = fn }
}

// WithJobTimeout bounds each job. Zero means no limit.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// Runner starts one goroutine per submitted upload.
type Runner struct {
	proc     Processor
	observer Observer
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(proc Processor, opts ...RunnerOption) *Runner {
	r := &Runner{proc: proc, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit starts processing in the background and returns immediately.
// Jobs are not tied to any caller context.
func (r *Runner) Submit(scheduleImageID int64, blobKey string) *Job {
	job := &Job{
		ScheduleImageID: scheduleImageID,
		BlobKey:         blobKey,
		done:            make(chan struct{}),
		startedAt:       time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.finish(job, ErrRunnerClosed)
		return job
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.finish(job, r.run(job))
	}()
	return job
}

func (r *Runner) run(job *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.proc.Process(ctx, job.ScheduleImageID, job.BlobKey)
}

func (r *Runner) finish(job *Job, err error) {
	job.err = err
	job.finishedAt = time.Now()
	close(job.done)

	r.logger.Debug("Job finished",
		"schedule_image_id", job.ScheduleImageID,
		"duration", job.finishedAt.Sub(job.startedAt),
		"err", err)

	if r.observer != nil {
		r.observer(job)
	}
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
