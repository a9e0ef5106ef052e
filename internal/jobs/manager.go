package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/model"
)

// maxRecordedFailures bounds the per-item failure messages kept on a job.
const maxRecordedFailures = 100

// Stats summarizes the jobs currently tracked by a Manager.
type Stats struct {
	Tracked   int                     `json:"tracked"`
	ByStatus  map[model.JobStatus]int `json:"by_status"`
	ByType    map[model.JobType]int   `json:"by_type"`
	AvgRunFor time.Duration           `json:"average_run_time_ns"`
}

// Manager handles background job execution and tracking
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	workers  chan struct{} // Limits concurrent jobs
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewManager creates a new job manager with specified worker count
func NewManager(maxWorkers int, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:     make(map[string]*model.Job),
		workers:  make(chan struct{}, maxWorkers),
		stopChan: make(chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
		logger:   logging.OrNop(logger).Named("jobs"),
		metrics:  m,
	}
}

// Start begins the job manager and starts background cleanup
func (m *Manager) Start() {
	m.logger.Info("job manager started", zap.Int("max_workers", cap(m.workers)))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupRoutine()
	}()
}

// Stop cancels running jobs and waits for them to return. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		// closed under mu so ExecuteJob cannot register with wg after Wait has started
		m.mu.Lock()
		close(m.stopChan)
		m.mu.Unlock()
		m.cancel()
		m.wg.Wait()
		m.logger.Info("job manager stopped")
	})
}

// CreateJob creates a new job and returns its ID
func (m *Manager) CreateJob(jobType model.JobType, metadata map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	m.jobs[job.ID] = job
	m.logger.Debug("job created", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return job.ID
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	return snapshot(job), nil
}

// ListJobs returns all tracked jobs, oldest first, optionally filtered by status
func (m *Manager) ListJobs(status *model.JobStatus) []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if status == nil || job.Status == *status {
			result = append(result, snapshot(job))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// snapshot returns a copy that callers may keep without racing the worker.
func snapshot(job *model.Job) *model.Job {
	jobCopy := *job
	if job.Progress != nil {
		progressCopy := *job.Progress
		jobCopy.Progress = &progressCopy
	}
	jobCopy.Failures = append([]string(nil), job.Failures...)
	return &jobCopy
}

// ExecuteJob runs a job function in a goroutine with proper tracking. The context passed to
// jobFunc is cancelled when the manager stops.
func (m *Manager) ExecuteJob(jobID string, jobFunc func(ctx context.Context, job *model.Job) error) error {
	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		return errors.NewJobNotFoundError(jobID)
	}

	if job.Status != model.JobStatusPending {
		m.mu.Unlock()
		return fmt.Errorf("job with ID '%s' is not in pending status (current: %s)", jobID, job.Status)
	}
	select {
	case <-m.stopChan:
		m.mu.Unlock()
		m.finish(jobID, model.JobStatusCancelled, "job manager shutting down", 0)
		return fmt.Errorf("job manager is shutting down")
	default:
	}
	jobView := snapshot(job)
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		// Acquire worker slot
		select {
		case m.workers <- struct{}{}:
		case <-m.stopChan:
			m.finish(jobID, model.JobStatusCancelled, "job manager shutting down", 0)
			return
		}
		defer func() { <-m.workers }()

		m.setRunning(jobID)
		startTime := time.Now()

		err := jobFunc(m.baseCtx, jobView)
		executionTime := time.Since(startTime)

		switch {
		case err != nil && m.baseCtx.Err() != nil:
			m.finish(jobID, model.JobStatusCancelled, err.Error(), executionTime)
		case err != nil:
			m.finish(jobID, model.JobStatusFailed, err.Error(), executionTime)
			m.logger.Warn("job failed", zap.String("job_id", jobID), zap.Duration("took", executionTime), zap.Error(err))
		default:
			m.finish(jobID, model.JobStatusCompleted, "", executionTime)
			m.logger.Info("job completed", zap.String("job_id", jobID), zap.Duration("took", executionTime))
		}
	}()

	return nil
}

// UpdateJobProgress updates the progress of a running job
func (m *Manager) UpdateJobProgress(jobID string, current, total int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}

	if job.Progress == nil {
		job.Progress = &model.JobProgress{}
	}

	job.Progress.Current = current
	job.Progress.Total = total
	job.Progress.Message = message
}

// AddFailures appends per-item failure messages to a job, keeping at most maxRecordedFailures.
func (m *Manager) AddFailures(jobID string, failures ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	room := maxRecordedFailures - len(job.Failures)
	if room <= 0 {
		return
	}
	if len(failures) > room {
		failures = failures[:room]
	}
	job.Failures = append(job.Failures, failures...)
}

func (m *Manager) setRunning(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}
}

// finish moves a job to a terminal status (internal method)
func (m *Manager) finish(jobID string, status model.JobStatus, errorMsg string, took time.Duration) {
	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		return
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	now := time.Now()
	job.CompletedAt = &now
	jobType := job.Type
	m.mu.Unlock()

	m.metrics.JobFinished(string(jobType), string(status), took)
}

// cleanupRoutine runs periodic job cleanup
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour) // Cleanup every hour
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Clean up finished jobs older than 24 hours
			m.CleanupOldJobs(24 * time.Hour)
		case <-m.stopChan:
			return
		}
	}
}

// CleanupOldJobs removes finished jobs older than the specified duration
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0

	for jobID, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		m.logger.Info("cleaned up old jobs", zap.Int("count", cleaned))
	}
	return cleaned
}

// Stats returns counts of the tracked jobs by status and type, and the average run time of the
// finished ones.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Tracked:  len(m.jobs),
		ByStatus: make(map[model.JobStatus]int),
		ByType:   make(map[model.JobType]int),
	}
	var total time.Duration
	var finished int
	for _, job := range m.jobs {
		s.ByStatus[job.Status]++
		s.ByType[job.Type]++
		if job.StartedAt != nil && job.CompletedAt != nil {
			total += job.CompletedAt.Sub(*job.StartedAt)
			finished++
		}
	}
	if finished > 0 {
		s.AvgRunFor = total / time.Duration(finished)
	}
	return s
}
