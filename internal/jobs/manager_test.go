package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/model"
)

// jobTypeReindex is a job type the service never creates itself.
const jobTypeReindex model.JobType = "reindex"

func waitForStatus(t *testing.T, m *Manager, jobID string, want model.JobStatus) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.GetJob(jobID)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", jobID, want)
	return job
}

func TestJobManager_CreateJob(t *testing.T) {
	manager := NewManager(2, nil, nil)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeUpsertDocuments, map[string]string{"documents": "3"})
	require.NotEmpty(t, jobID)

	job, err := manager.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeUpsertDocuments, job.Type)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "3", job.Metadata["documents"])
}

func TestJobManager_ExecuteJob(t *testing.T) {
	m := metrics.New()
	manager := NewManager(2, nil, m)
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.UpdateJobProgress(jobID, 50, 100, "Halfway done")
		manager.UpdateJobProgress(jobID, 100, 100, "Completed")
		return nil
	})
	require.NoError(t, err)

	job := waitForStatus(t, manager, jobID, model.JobStatusCompleted)
	require.NotNil(t, job.Progress)
	assert.Equal(t, 100, job.Progress.Current)
	assert.Equal(t, 100, job.Progress.Total)
	assert.Equal(t, 100.0, job.Progress.GetProgressPercentage())
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	assert.Error(t, manager.ExecuteJob(jobID, func(context.Context, *model.Job) error { return nil }),
		"a finished job cannot run again")
}

func TestJobManager_FailedJobKeepsErrorAndFailures(t *testing.T) {
	manager := NewManager(1, nil, nil)
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(jobTypeReindex, nil)
	require.NoError(t, manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.AddFailures(jobID, "company/AAPL: boom")
		return fmt.Errorf("1 of 1 documents failed")
	}))

	job := waitForStatus(t, manager, jobID, model.JobStatusFailed)
	assert.Equal(t, "1 of 1 documents failed", job.Error)
	assert.Equal(t, []string{"company/AAPL: boom"}, job.Failures)
}

func TestJobManager_AddFailuresIsBounded(t *testing.T) {
	manager := NewManager(1, nil, nil)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	for i := 0; i < maxRecordedFailures+10; i++ {
		manager.AddFailures(jobID, fmt.Sprintf("doc %d", i))
	}
	job, err := manager.GetJob(jobID)
	require.NoError(t, err)
	assert.Len(t, job.Failures, maxRecordedFailures)
}

func TestJobManager_GetUnknownJob(t *testing.T) {
	manager := NewManager(1, nil, nil)
	defer manager.Stop()

	_, err := manager.GetJob("missing")
	require.Error(t, err)
	assert.Equal(t, errors.CodeJobNotFound, errors.CodeOf(err))
}

func TestJobManager_StopCancelsRunningJobs(t *testing.T) {
	manager := NewManager(1, nil, nil)
	manager.Start()

	started := make(chan struct{})
	jobID := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	require.NoError(t, manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	<-started
	manager.Stop()
	manager.Stop()

	job, err := manager.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)
}

func TestJobManager_StopWaitsForJobsAcceptedConcurrently(t *testing.T) {
	for round := 0; round < 20; round++ {
		manager := NewManager(4, nil, nil)
		manager.Start()

		const n = 16
		ids := make([]string, n)
		for i := range ids {
			ids[i] = manager.CreateJob(model.JobTypeUpsertDocuments, nil)
		}

		var wg sync.WaitGroup
		accepted := make([]bool, n)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				accepted[i] = manager.ExecuteJob(ids[i], func(ctx context.Context, job *model.Job) error {
					time.Sleep(time.Millisecond)
					return nil
				}) == nil
			}(i)
		}
		manager.Stop()
		wg.Wait()

		for i, id := range ids {
			job, err := manager.GetJob(id)
			require.NoError(t, err)
			if !accepted[i] {
				assert.Equal(t, model.JobStatusCancelled, job.Status)
				continue
			}
			// Stop waits for every job it did not reject
			assert.NotEqual(t, model.JobStatusPending, job.Status, "job %d", i)
			assert.NotEqual(t, model.JobStatusRunning, job.Status, "job %d", i)
		}
		assert.Error(t, manager.ExecuteJob(manager.CreateJob(model.JobTypeUpsertDocuments, nil), func(context.Context, *model.Job) error {
			return nil
		}), "jobs are rejected once the manager has stopped")
	}
}

func TestJobManager_ListAndStats(t *testing.T) {
	manager := NewManager(2, nil, nil)
	manager.Start()
	defer manager.Stop()

	first := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	time.Sleep(time.Millisecond)
	second := manager.CreateJob(jobTypeReindex, nil)

	require.NoError(t, manager.ExecuteJob(first, func(context.Context, *model.Job) error { return nil }))
	waitForStatus(t, manager, first, model.JobStatusCompleted)

	all := manager.ListJobs(nil)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, second, all[1].ID)

	pending := model.JobStatusPending
	onlyPending := manager.ListJobs(&pending)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, second, onlyPending[0].ID)

	stats := manager.Stats()
	assert.Equal(t, 2, stats.Tracked)
	assert.Equal(t, 1, stats.ByStatus[model.JobStatusCompleted])
	assert.Equal(t, 1, stats.ByType[jobTypeReindex])
}

func TestJobManager_CleanupOldJobs(t *testing.T) {
	manager := NewManager(1, nil, nil)
	manager.Start()
	defer manager.Stop()

	done := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	pending := manager.CreateJob(model.JobTypeUpsertDocuments, nil)
	require.NoError(t, manager.ExecuteJob(done, func(context.Context, *model.Job) error { return nil }))
	waitForStatus(t, manager, done, model.JobStatusCompleted)

	assert.Equal(t, 1, manager.CleanupOldJobs(0))
	_, err := manager.GetJob(done)
	assert.Error(t, err)
	_, err = manager.GetJob(pending)
	assert.NoError(t, err, "unfinished jobs are never cleaned up")
}
