// Package pipeline owns the job queue: it accepts submissions, dispatches
// them to the transcoding engine under a concurrency cap, persists every
// state transition, retries transient failures under a backoff policy and
// resumes incomplete jobs after a restart.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/database"
	"github.com/mediaforge/mediaforge/internal/events"
	"github.com/mediaforge/mediaforge/internal/media"
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity.
	// The submission is rejected without mutating queue state.
	ErrQueueFull = errors.New("job queue is full")

	// ErrShuttingDown is returned for submissions after shutdown began.
	ErrShuttingDown = errors.New("scheduler is shutting down")
)

// Processor is the engine surface the scheduler drives. It is an
// interface so scheduler tests can script failures without ffmpeg.
type Processor interface {
	ExtractMetadata(ctx context.Context, path string) (*media.Metadata, error)
	ProcessVideo(ctx context.Context, input, outputPrefix string, meta *media.Metadata, opts media.Options, progress func(int)) ([]media.Output, error)
	ProcessAudio(ctx context.Context, input, outputPrefix string, meta *media.Metadata, opts media.Options, progress func(int)) ([]media.Output, error)
}

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	ContentID string
	UserID    string
	Type      database.JobType
	InputKey  string
	InputURL  string
	Options   media.Options
}

// QueueStats is a point-in-time snapshot of scheduler state.
type QueueStats struct {
	Pending       int  `json:"pending"`
	Processing    int  `json:"processing"`
	Capacity      int  `json:"capacity"`
	MaxConcurrent int  `json:"max_concurrent"`
	ShuttingDown  bool `json:"shutting_down"`
}

type activeJob struct {
	job       *database.ProcessingJob
	cancel    context.CancelFunc
	cancelled bool // user cancellation, distinct from timeout
}

// Scheduler is the single per-process job coordinator. Construct one at
// startup and hand it to the HTTP layer and ingest watcher explicitly.
type Scheduler struct {
	cfg     config.QueueConfig
	store   *JobStore
	proc    Processor
	bus     *events.Bus
	backoff BackoffPolicy
	logger  hclog.Logger

	mu           sync.Mutex
	pending      []*database.ProcessingJob
	active       map[string]*activeJob
	retryTimers  map[string]*time.Timer
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewScheduler wires the scheduler to its collaborators.
func NewScheduler(cfg config.QueueConfig, store *JobStore, proc Processor, bus *events.Bus, backoff BackoffPolicy, logger hclog.Logger) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		store:       store,
		proc:        proc,
		bus:         bus,
		backoff:     backoff,
		logger:      logger.Named("scheduler"),
		active:      make(map[string]*activeJob),
		retryTimers: make(map[string]*time.Timer),
	}
}

// Submit probes the input, creates a job record and enqueues it. The probe
// happens eagerly so an unreadable input is rejected here instead of
// burning a worker slot later.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*database.ProcessingJob, error) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(s.pending) >= s.cfg.Capacity {
		s.mu.Unlock()
		s.bus.Publish(events.NewQueueEvent(events.EventQueueFull))
		return nil, ErrQueueFull
	}
	s.mu.Unlock()

	meta, err := s.proc.ExtractMetadata(ctx, req.InputURL)
	if err != nil {
		return nil, fmt.Errorf("input rejected: %w", err)
	}

	job := &database.ProcessingJob{
		ID:        uuid.New().String(),
		ContentID: req.ContentID,
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    database.JobStatusQueued,
		InputKey:  req.InputKey,
		InputURL:  req.InputURL,
	}
	if err := job.SetMetadata(meta); err != nil {
		return nil, err
	}
	if err := job.SetOptions(req.Options); err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Re-check under the lock: the capacity gate above ran before the probe.
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(s.pending) >= s.cfg.Capacity {
		s.mu.Unlock()
		s.bus.Publish(events.NewQueueEvent(events.EventQueueFull))
		return nil, ErrQueueFull
	}
	// Persist before the job becomes visible to dispatch: a job that
	// cannot be recorded must never run.
	if err := s.store.Save(job); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	s.pending = append(s.pending, job)
	s.mu.Unlock()

	s.logger.Info("job queued", "job_id", job.ID, "type", job.Type, "content_id", job.ContentID)
	s.bus.Publish(events.NewJobEvent(events.EventJobQueued, job.ID, map[string]interface{}{
		"type": string(job.Type),
	}))

	s.dispatch()
	return job, nil
}

// dispatch moves pending jobs into worker slots until the concurrency cap
// is reached. Called after every enqueue and every slot release.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.active) < s.cfg.MaxConcurrentJobs && len(s.pending) > 0 && !s.shuttingDown {
		job := s.pending[0]
		s.pending = s.pending[1:]

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		entry := &activeJob{job: job, cancel: cancel}
		s.active[job.ID] = entry

		s.wg.Add(1)
		go s.run(ctx, entry)
	}

	if len(s.active) == 0 && len(s.pending) == 0 {
		s.bus.Publish(events.NewQueueEvent(events.EventQueueEmpty))
	}
}

// updateJob applies a field mutation under the coordinator lock so a
// concurrent GetJob copy never observes a half-written record.
func (s *Scheduler) updateJob(mutate func()) {
	s.mu.Lock()
	mutate()
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, entry *activeJob) {
	defer s.wg.Done()
	job := entry.job

	s.updateJob(func() {
		job.Status = database.JobStatusProcessing
		job.Error = ""
	})
	s.persist(job)
	s.bus.Publish(events.NewJobEvent(events.EventJobStarted, job.ID, nil))
	s.logger.Info("job started", "job_id", job.ID, "retry", job.RetryCount)

	outputs, err := s.process(ctx, job)

	s.mu.Lock()
	cancelled := entry.cancelled
	delete(s.active, job.ID)
	s.mu.Unlock()
	entry.cancel()

	switch {
	case err == nil:
		var setErr error
		s.updateJob(func() {
			if setErr = job.SetOutputs(outputs); setErr != nil {
				return
			}
			job.Status = database.JobStatusCompleted
			job.Progress = 100
		})
		if setErr != nil {
			s.failOrRetry(job, setErr.Error())
			break
		}
		s.persist(job)
		s.logger.Info("job completed", "job_id", job.ID, "outputs", len(outputs))
		s.bus.Publish(events.NewJobEvent(events.EventJobCompleted, job.ID, map[string]interface{}{
			"outputs": len(outputs),
		}))

	case cancelled:
		s.updateJob(func() {
			job.Status = database.JobStatusFailed
			job.Error = "cancelled by user"
		})
		s.persist(job)
		s.logger.Info("job cancelled", "job_id", job.ID)
		s.bus.Publish(events.NewJobEvent(events.EventJobFailed, job.ID, map[string]interface{}{
			"error": job.Error,
		}))

	case errors.Is(err, context.DeadlineExceeded):
		s.failOrRetry(job, fmt.Sprintf("timed out after %ds", int(s.cfg.JobTimeout.Seconds())))

	case errors.Is(err, context.Canceled):
		// Only shutdown cancels a job context without the user flag.
		s.updateJob(func() {
			job.Status = database.JobStatusFailed
			job.Error = "server shutdown"
		})
		s.persist(job)

	default:
		s.failOrRetry(job, err.Error())
	}

	// Continuation: a freed slot immediately pulls the next pending job.
	s.dispatch()
}

func (s *Scheduler) process(ctx context.Context, job *database.ProcessingJob) ([]media.Output, error) {
	meta, err := job.GetMetadata()
	if err != nil {
		return nil, err
	}
	opts, err := job.GetOptions()
	if err != nil {
		return nil, err
	}

	progress := s.progressFunc(job)
	prefix := "jobs/" + job.ID

	if job.Type == database.JobTypeAudio {
		return s.proc.ProcessAudio(ctx, job.InputURL, prefix, meta, opts, progress)
	}
	return s.proc.ProcessVideo(ctx, job.InputURL, prefix, meta, opts, progress)
}

// progressFunc persists the job whenever progress crosses a 10% boundary,
// bounding write amplification while keeping observers current.
func (s *Scheduler) progressFunc(job *database.ProcessingJob) func(int) {
	lastPersisted := 0
	return func(p int) {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		s.updateJob(func() { job.Progress = p })
		if p/10 > lastPersisted/10 {
			lastPersisted = p
			s.persist(job)
		}
		s.bus.Publish(events.NewJobEvent(events.EventJobProgress, job.ID, map[string]interface{}{
			"progress": p,
		}))
	}
}

// failOrRetry re-enqueues the job after a backoff delay until the retry
// cap is reached, then marks it permanently failed. The error string keeps
// the last attempt's cause visible after retries are exhausted.
func (s *Scheduler) failOrRetry(job *database.ProcessingJob, cause string) {
	s.mu.Lock()
	if job.RetryCount < s.cfg.MaxRetries {
		job.RetryCount++
		job.Progress = 0
		job.Status = database.JobStatusQueued
		job.Error = fmt.Sprintf("Retry %d/%d: %s", job.RetryCount, s.cfg.MaxRetries, cause)
		retry := job.RetryCount
		delay := s.backoff.Delay(retry)
		if !s.shuttingDown {
			s.retryTimers[job.ID] = time.AfterFunc(delay, func() {
				s.requeue(job)
			})
		}
		s.mu.Unlock()

		s.persist(job)
		s.logger.Warn("job failed, scheduling retry",
			"job_id", job.ID, "retry", retry, "delay", delay, "cause", cause)
		return
	}

	job.Status = database.JobStatusFailed
	job.Error = fmt.Sprintf("Retry %d/%d: %s", s.cfg.MaxRetries, s.cfg.MaxRetries, cause)
	s.mu.Unlock()

	s.persist(job)
	s.logger.Error("job permanently failed", "job_id", job.ID, "cause", cause)
	s.bus.Publish(events.NewJobEvent(events.EventJobFailed, job.ID, map[string]interface{}{
		"error": job.Error,
	}))
}

func (s *Scheduler) requeue(job *database.ProcessingJob) {
	s.mu.Lock()
	delete(s.retryTimers, job.ID)
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, job)
	s.mu.Unlock()

	s.bus.Publish(events.NewJobEvent(events.EventJobQueued, job.ID, map[string]interface{}{
		"retry": job.RetryCount,
	}))
	s.dispatch()
}

// GetJob returns the freshest view of a job: in-memory state while the
// scheduler owns it, the persisted record otherwise.
func (s *Scheduler) GetJob(id string) (*database.ProcessingJob, error) {
	s.mu.Lock()
	if entry, ok := s.active[id]; ok {
		job := *entry.job
		s.mu.Unlock()
		return &job, nil
	}
	for _, job := range s.pending {
		if job.ID == id {
			copied := *job
			s.mu.Unlock()
			return &copied, nil
		}
	}
	s.mu.Unlock()

	return s.store.Get(id)
}

// CancelJob aborts a pending or in-flight job. In-flight jobs have their
// context cancelled, which kills the spawned encoder; outputs already
// uploaded are kept. Terminal jobs are left untouched.
func (s *Scheduler) CancelJob(id string) error {
	s.mu.Lock()
	if entry, ok := s.active[id]; ok {
		entry.cancelled = true
		entry.cancel()
		s.mu.Unlock()
		return nil
	}
	for i, job := range s.pending {
		if job.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			if t, ok := s.retryTimers[id]; ok {
				t.Stop()
				delete(s.retryTimers, id)
			}
			s.mu.Unlock()

			job.Status = database.JobStatusFailed
			job.Error = "cancelled by user"
			s.persist(job)
			s.bus.Publish(events.NewJobEvent(events.EventJobFailed, id, map[string]interface{}{
				"error": job.Error,
			}))
			return nil
		}
	}
	if t, ok := s.retryTimers[id]; ok {
		t.Stop()
		delete(s.retryTimers, id)
		s.mu.Unlock()

		job, err := s.store.Get(id)
		if err != nil {
			return err
		}
		job.Status = database.JobStatusFailed
		job.Error = "cancelled by user"
		s.persist(job)
		return nil
	}
	s.mu.Unlock()

	job, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	return ErrNotFound
}

// Stats snapshots the queue.
func (s *Scheduler) Stats() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueStats{
		Pending:       len(s.pending),
		Processing:    len(s.active),
		Capacity:      s.cfg.Capacity,
		MaxConcurrent: s.cfg.MaxConcurrentJobs,
		ShuttingDown:  s.shuttingDown,
	}
}

// Resume reloads every non-terminal job from storage. A job that was
// mid-processing cannot be assumed to have a live worker anymore, so
// progress resets to 0 and status to queued before re-enqueueing in
// creation order.
func (s *Scheduler) Resume() error {
	jobs, err := s.store.ListByStatus(database.JobStatusQueued, database.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to load incomplete jobs: %w", err)
	}

	for _, job := range jobs {
		job.Status = database.JobStatusQueued
		job.Progress = 0
		if err := s.store.Save(job); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.pending = append(s.pending, jobs...)
	s.mu.Unlock()

	if len(jobs) > 0 {
		s.logger.Info("resumed incomplete jobs", "count", len(jobs))
	}
	s.dispatch()
	return nil
}

// Shutdown rejects new work, waits up to the configured grace period for
// in-flight jobs, then force-fails whatever is still running.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	for id, t := range s.retryTimers {
		t.Stop()
		delete(s.retryTimers, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler drained cleanly")
	case <-time.After(s.cfg.ShutdownWait):
		s.logger.Warn("shutdown grace period expired, cancelling active jobs")
		s.mu.Lock()
		for _, entry := range s.active {
			entry.cancel()
		}
		s.mu.Unlock()

		// Cancellation kills the spawned encoders; each worker then
		// persists its job as Failed("server shutdown") before exiting.
		<-done
	}
}

func (s *Scheduler) persist(job *database.ProcessingJob) {
	if err := s.store.Save(job); err != nil {
		s.logger.Error("failed to persist job", "job_id", job.ID, "error", err)
	}
}
