// -----------------------------------------------------------------------
// Job Server - Queue, lifecycle state machine, concurrency gate, event bus
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/validation"
)

// Options configures a Server.
type Options struct {
	PipelineID    string
	JobType       string
	MaxConcurrent int
	RetryAttempts int           // Max handler runs per original id, including the first (default 3)
	RetryDelay    time.Duration // Wait before a retry is re-enqueued (default 30s)
	StopTimeout   time.Duration // How long Stop waits for running handlers (default 30s)

	Handler interfaces.JobHandler
	Store   interfaces.JobStorage   // Optional; nil disables persistence
	Events  interfaces.EventService // Required
	Logger  arbor.ILogger

	// RetriableCodes overrides the default retriable error code set.
	RetriableCodes []string
}

// Server owns the in-memory job map and FIFO queue. One mutex serializes the
// queue, the lifecycle mutations, and event emission, so per-job event order
// is exactly created -> (paused/resumed)* -> started -> terminal. Handler
// bodies run concurrently up to MaxConcurrent.
//
// Event delivery happens on the scheduler's critical path: listeners must not
// call back into the Server.
type Server struct {
	opts    Options
	logger  arbor.ILogger
	events  interfaces.EventService
	store   interfaces.JobStorage
	handler interfaces.JobHandler

	mu            sync.Mutex
	jobs          map[string]*models.Job
	queue         []string
	active        int
	maxConcurrent int
	running       bool
	cancels       map[string]context.CancelFunc
	retries       map[string]*RetryEntry
	retryTimers   map[string]*time.Timer
	retriable     map[string]bool
	wg            sync.WaitGroup
	baseCtx       context.Context
	baseCancel    context.CancelFunc

	lastStatsPublish time.Time
}

// DefaultRetriableCodes are transient failures worth another attempt.
// Missing binaries, permission problems, and programmer errors are terminal.
var DefaultRetriableCodes = []string{"ETIMEDOUT", "ECONNRESET", "EAGAIN", "git_lock"}

// New creates a job server. The handler runs every job body; the store, when
// present, receives every lifecycle transition.
func New(opts Options) (*Server, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("orchestrator: handler is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("orchestrator: event service is required")
	}
	if opts.Logger == nil {
		opts.Logger = common.GetLogger()
	}
	if opts.PipelineID == "" {
		opts.PipelineID = "unknown"
	}
	if opts.JobType == "" {
		opts.JobType = "job"
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}

	codes := opts.RetriableCodes
	if codes == nil {
		codes = DefaultRetriableCodes
	}
	retriable := make(map[string]bool, len(codes))
	for _, c := range codes {
		retriable[c] = true
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Server{
		opts:          opts,
		logger:        opts.Logger,
		events:        opts.Events,
		store:         opts.Store,
		handler:       opts.Handler,
		jobs:          make(map[string]*models.Job),
		maxConcurrent: opts.MaxConcurrent,
		cancels:       make(map[string]context.CancelFunc),
		retries:       make(map[string]*RetryEntry),
		retryTimers:   make(map[string]*time.Timer),
		retriable:     retriable,
		baseCtx:       baseCtx,
		baseCancel:    baseCancel,
	}, nil
}

// Start enables the drain loop. Jobs created before Start stay queued.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.logger.Info().
		Str("pipeline_id", s.opts.PipelineID).
		Int("max_concurrent", s.maxConcurrent).
		Msg("Job server started")
	s.drainLocked()
}

// Stop halts launches, cancels running handlers, and waits up to the
// configured timeout for them to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for id, timer := range s.retryTimers {
		timer.Stop()
		delete(s.retryTimers, id)
	}
	s.baseCancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Job server stopped")
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn().
			Dur("timeout", s.opts.StopTimeout).
			Msg("Job server stop timed out waiting for running handlers")
	}
}

// Subscribe registers a listener on a named event channel. Listeners run
// synchronously on the scheduler path, in registration order.
func (s *Server) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return s.events.Subscribe(eventType, handler)
}

// CreateJob validates the id, persists the job in the queued state, enqueues
// it, and emits job:created. Returns the created job snapshot.
func (s *Server) CreateJob(id string, data map[string]interface{}) (*models.Job, error) {
	if err := validation.ValidateJobID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createJobLocked(id, data)
}

// createJobLocked is the shared creation path for external calls and retry
// re-enqueues (which carry derived ids that skip external validation).
func (s *Server) createJobLocked(id string, data map[string]interface{}) (*models.Job, error) {
	if _, exists := s.jobs[id]; exists {
		return nil, fmt.Errorf("job %s already exists", id)
	}

	job := models.NewJob(id, s.opts.PipelineID, s.opts.JobType, data)
	s.jobs[id] = job
	s.queue = append(s.queue, id)

	s.persistLocked(job)
	s.emitLocked(interfaces.EventJobCreated, job)

	s.logger.Info().
		Str("job_id", id).
		Str("pipeline_id", job.PipelineID).
		Int("queue_length", len(s.queue)).
		Msg("Job created")

	s.drainLocked()
	return job.Clone(), nil
}

// GetJob returns a snapshot of a job, or nil when unknown.
func (s *Server) GetJob(id string) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		return job.Clone()
	}
	return nil
}

// GetAllJobs returns snapshots of every job known to this server, in
// creation order.
func (s *Server) GetAllJobs() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CancelJob cancels a job. Queued and paused jobs cancel synchronously;
// running jobs get a best-effort context cancellation and finish when the
// handler observes it.
func (s *Server) CancelJob(id string) interfaces.OpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		if s.cancelPendingRetryLocked(OriginalJobID(id)) {
			s.logger.Info().Str("job_id", id).Msg("Pending retry cancelled")
			return interfaces.OpResult{Success: true, Message: "pending retry cancelled"}
		}
		return interfaces.OpResult{Success: false, Message: fmt.Sprintf("job %s not found", id)}
	}

	switch job.Status {
	case models.JobStatusQueued, models.JobStatusPaused:
		s.removeFromQueueLocked(id)
		job.MarkCancelled("cancelled by user")
		s.clearRetryLocked(OriginalJobID(id))
		s.persistLocked(job)
		s.emitLocked(interfaces.EventJobCancelled, job)
		s.publishStatsLocked()
		s.logger.Info().Str("job_id", id).Msg("Job cancelled")
		return interfaces.OpResult{Success: true}

	case models.JobStatusRunning:
		if cancel, ok := s.cancels[id]; ok {
			cancel()
		}
		s.clearRetryLocked(OriginalJobID(id))
		s.logger.Info().Str("job_id", id).Msg("Job cancellation requested")
		return interfaces.OpResult{Success: true, Message: "cancellation requested"}

	default:
		// Terminal job. The chain may still hold a retry waiting on its
		// timer; cancelling that is legitimate and touches no terminal state.
		if s.cancelPendingRetryLocked(OriginalJobID(id)) {
			s.logger.Info().Str("job_id", id).Msg("Pending retry cancelled")
			return interfaces.OpResult{Success: true, Message: "pending retry cancelled"}
		}
		return interfaces.OpResult{
			Success: false,
			Message: fmt.Sprintf("cannot cancel job %s in status %s", id, job.Status),
		}
	}
}

// PauseJob removes a queued job from the queue without losing it.
func (s *Server) PauseJob(id string) interfaces.OpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.OpResult{Success: false, Message: fmt.Sprintf("job %s not found", id)}
	}
	if job.Status != models.JobStatusQueued {
		return interfaces.OpResult{
			Success: false,
			Message: fmt.Sprintf("cannot pause job %s in status %s", id, job.Status),
		}
	}

	s.removeFromQueueLocked(id)
	job.MarkPaused()
	s.persistLocked(job)
	s.emitLocked(interfaces.EventJobPaused, job)
	s.logger.Info().Str("job_id", id).Msg("Job paused")
	return interfaces.OpResult{Success: true}
}

// ResumeJob re-inserts a paused job at the queue tail.
func (s *Server) ResumeJob(id string) interfaces.OpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.OpResult{Success: false, Message: fmt.Sprintf("job %s not found", id)}
	}
	if job.Status != models.JobStatusPaused {
		return interfaces.OpResult{
			Success: false,
			Message: fmt.Sprintf("cannot resume job %s in status %s", id, job.Status),
		}
	}

	job.MarkResumed()
	s.queue = append(s.queue, id)
	s.persistLocked(job)
	s.emitLocked(interfaces.EventJobResumed, job)
	s.logger.Info().Str("job_id", id).Msg("Job resumed")
	s.drainLocked()
	return interfaces.OpResult{Success: true}
}

// SetMaxConcurrent adjusts the concurrency cap. Zero pauses all launches.
func (s *Server) SetMaxConcurrent(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConcurrent = n
	s.drainLocked()
}

// ProcessQueue kicks the drain loop. Creation, resume, and completion paths
// call it implicitly; it is exported for callers that adjust state out of
// band.
func (s *Server) ProcessQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
}

// drainLocked launches queued jobs while capacity remains. Callers hold mu.
func (s *Server) drainLocked() {
	if !s.running {
		return
	}

	for s.active < s.maxConcurrent && len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]

		job, ok := s.jobs[id]
		if !ok || job.Status != models.JobStatusQueued {
			continue
		}

		job.MarkRunning()
		s.active++

		ctx, cancel := context.WithCancel(s.baseCtx)
		s.cancels[id] = cancel

		s.persistLocked(job)
		s.emitLocked(interfaces.EventJobStarted, job)

		s.logger.Info().
			Str("job_id", id).
			Int("active", s.active).
			Msg("Job started")

		clone := job.Clone()
		s.wg.Add(1)
		go s.runJob(ctx, id, clone)
	}
}

// runJob executes the handler outside the lock and applies the terminal
// transition when it returns.
func (s *Server) runJob(ctx context.Context, id string, clone *models.Job) {
	defer s.wg.Done()

	result, err := func() (res map[string]interface{}, handlerErr error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)
				stackTrace := string(buf[:n])

				handlerErr = &models.JobError{
					Message: fmt.Sprintf("handler panic: %v", r),
					Code:    "EPANIC",
				}
				s.logger.Error().
					Str("job_id", id).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", stackTrace).
					Msg("Job handler panicked - writing crash file")
				common.WriteCrashFile(r, stackTrace)
			}
		}()
		return s.handler.Handle(ctx, clone)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		s.finishLaunchLocked(id)
		return
	}

	// The handler worked on a clone; carry its git metadata back.
	if clone.Git != nil {
		job.Git = clone.Git
	}

	if err != nil {
		jobErr := toJobError(err, ctx)
		job.MarkFailed(jobErr)
		s.persistLocked(job)
		s.emitLocked(interfaces.EventJobFailed, job)
		s.logger.Warn().
			Str("job_id", id).
			Str("code", jobErr.Code).
			Str("error", jobErr.Message).
			Msg("Job failed")
		s.consultRetryLocked(job, jobErr)
	} else {
		job.MarkCompleted(result)
		s.clearRetryLocked(OriginalJobID(id))
		s.persistLocked(job)
		s.emitLocked(interfaces.EventJobCompleted, job)
		s.logger.Info().Str("job_id", id).Msg("Job completed")
	}

	s.publishStatsLocked()
	s.finishLaunchLocked(id)
}

// finishLaunchLocked releases the slot held by a launched job and continues
// the drain.
func (s *Server) finishLaunchLocked(id string) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.active--
	s.drainLocked()
}

// removeFromQueueLocked deletes one id from the FIFO queue if present.
func (s *Server) removeFromQueueLocked(id string) {
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// persistLocked saves the job, logging failures without aborting the
// transition. The in-memory state stays authoritative for the active run.
func (s *Server) persistLocked(job *models.Job) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveJob(context.Background(), job); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Failed to persist job transition")
	}
}

// emitLocked publishes a lifecycle event with a job snapshot payload.
func (s *Server) emitLocked(eventType interfaces.EventType, job *models.Job) {
	s.events.Publish(context.Background(), interfaces.Event{
		Type:    eventType,
		Payload: job.Clone(),
	})
}

// toJobError normalizes handler failures into the structured job error.
func toJobError(err error, ctx context.Context) *models.JobError {
	var jobErr *models.JobError
	if errors.As(err, &jobErr) {
		if jobErr.Cancelled || !errors.Is(ctx.Err(), context.Canceled) {
			return jobErr
		}
		return &models.JobError{Message: jobErr.Message, Code: jobErr.Code, Cancelled: true}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &models.JobError{Message: "cancelled by user", Cancelled: true}
	}
	return &models.JobError{Message: err.Error()}
}
