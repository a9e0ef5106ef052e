package engine

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/indexing"
	"github.com/gcbaptista/entity-search/model"
)

// Upsert indexes a single document. It is visible to searches started after Upsert returns.
func (e *Engine) Upsert(doc model.Document) error {
	return e.catalog.Upsert(doc)
}

// UpsertBatch indexes docs synchronously and reports every document that was rejected.
func (e *Engine) UpsertBatch(ctx context.Context, docs []model.Document) indexing.BatchResult {
	return e.catalog.UpsertBatch(ctx, docs, nil)
}

// UpsertAsync schedules docs as a background job and returns its ID. Documents are indexed in
// chunks of Ingest.BatchSize; the job fails only when none of them could be indexed.
func (e *Engine) UpsertAsync(docs []model.Document) (string, error) {
	if len(docs) == 0 {
		return "", errors.NewValidationError("documents", "at least one document is required")
	}
	docs = append([]model.Document(nil), docs...)

	jobID := e.jobs.CreateJob(model.JobTypeUpsertDocuments, map[string]string{
		"documents": strconv.Itoa(len(docs)),
	})
	err := e.jobs.ExecuteJob(jobID, func(ctx context.Context, _ *model.Job) error {
		return e.runUpsertJob(ctx, jobID, docs)
	})
	if err != nil {
		return "", fmt.Errorf("failed to start upsert job: %w", err)
	}
	return jobID, nil
}

func (e *Engine) runUpsertJob(ctx context.Context, jobID string, docs []model.Document) error {
	total := len(docs)
	batchSize := max(e.cfg.Ingest.BatchSize, 1)
	indexed, failed := 0, 0

	e.jobs.UpdateJobProgress(jobID, 0, total, "indexing documents")
	for start := 0; start < total; start += batchSize {
		end := min(start+batchSize, total)
		offset := start

		result := e.catalog.UpsertBatch(ctx, docs[start:end], func(done, _ int) {
			e.jobs.UpdateJobProgress(jobID, offset+done, total, "indexing documents")
		})
		indexed += result.Indexed
		failed += len(result.Failures)

		messages := make([]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			f.Position += offset
			messages = append(messages, f.String())
		}
		e.jobs.AddFailures(jobID, messages...)

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upsert interrupted after %d of %d documents: %w", indexed, total, err)
		}
	}

	e.jobs.UpdateJobProgress(jobID, total, total,
		fmt.Sprintf("indexed %d documents, %d failed", indexed, failed))
	e.logger.Info("upsert job finished",
		zap.String("job_id", jobID),
		zap.Int("indexed", indexed),
		zap.Int("failed", failed))

	if indexed == 0 {
		return fmt.Errorf("none of the %d documents could be indexed", total)
	}
	return nil
}

// Remove deletes a document from the given entity types, or from every type when none is given,
// and returns the types it was removed from.
func (e *Engine) Remove(entityID string, types ...model.EntityType) ([]model.EntityType, error) {
	return e.catalog.Remove(entityID, types...)
}

// EntityTypes returns the configured entity types.
func (e *Engine) EntityTypes() []model.EntityType {
	return e.catalog.EntityTypes()
}

// Get returns an indexed document.
func (e *Engine) Get(entityType model.EntityType, entityID string) (model.Document, bool) {
	return e.catalog.Get(entityType, entityID)
}
