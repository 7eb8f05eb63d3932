package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
)

// JobUseCase runs enrichments asynchronously: the api queues a job, the
// worker processes it and stores the result envelope.
type JobUseCase struct {
	repo     ports.JobRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	contents ports.ContentFactory
	enricher ports.Enricher
}

func NewJobUseCase(
	repo ports.JobRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	contents ports.ContentFactory,
	enricher ports.Enricher,
) *JobUseCase {
	return &JobUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		contents: contents,
		enricher: enricher,
	}
}

// Queue stores the uploads, records the job and publishes it to the worker.
// Files saved before a failure are removed again; a job whose publish fails
// is marked failed.
func (uc *JobUseCase) Queue(ctx context.Context, uploads []ports.JobUpload, req domain.EnrichmentRequest) (*domain.EnrichmentJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "queue enrichment job", errors.New("at least one file is required"))
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	items := make([]domain.JobItem, 0, len(uploads))
	for i, upload := range uploads {
		storageKey := fmt.Sprintf("%s/%d_%s", id, i, sanitizeFilename(upload.Filename))
		if err := uc.storage.Save(ctx, storageKey, upload.Body); err != nil {
			uc.deleteKeys(id, items)
			return nil, fmt.Errorf("save to object storage: %w", err)
		}
		sourceID := strings.TrimSpace(upload.SourceID)
		if sourceID == "" {
			sourceID = domain.GenerateSourceID()
		}
		items = append(items, domain.JobItem{
			SourceID:   sourceID,
			Filename:   upload.Filename,
			MediaType:  upload.MediaType,
			StorageKey: storageKey,
		})
	}

	job := &domain.EnrichmentJob{
		ID:              id,
		Status:          domain.JobQueued,
		Actions:         req.Actions,
		Classes:         req.Classes,
		SimilarMetadata: req.SimilarMetadata,
		ExtraPayload:    req.ExtraPayload,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		uc.deleteInputs(job)
		return nil, fmt.Errorf("create enrichment job: %w", err)
	}

	if err := uc.queue.PublishEnrichmentRequested(ctx, job.ID); err != nil {
		uc.deleteInputs(job)
		return nil, uc.fail(ctx, job.ID, fmt.Errorf("publish enrichment request: %w", err))
	}

	return job, nil
}

func (uc *JobUseCase) GetByID(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	return uc.repo.GetByID(ctx, id)
}

// ProcessByID runs the enrichment of a queued job. Remote failures end in a
// failed job with the result envelope saved; only local failures are
// returned as errors.
func (uc *JobUseCase) ProcessByID(ctx context.Context, jobID string) error {
	if err := uc.repo.UpdateStatus(ctx, jobID, domain.JobRunning, ""); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}

	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job by id: %w", err)
	}
	defer uc.deleteInputs(job)

	items, err := uc.buildItems(job)
	if err != nil {
		return uc.fail(ctx, jobID, err)
	}

	result, err := uc.enricher.Enrich(ctx, items, job.Request())
	if err != nil {
		return uc.fail(ctx, jobID, fmt.Errorf("enrich: %w", err))
	}

	envelope, err := json.Marshal(result)
	if err != nil {
		return uc.fail(ctx, jobID, fmt.Errorf("encode result envelope: %w", err))
	}

	status := domain.JobSucceeded
	if !result.Conclusive() {
		status = domain.JobFailed
	}
	if err := uc.repo.SaveResult(ctx, jobID, status, envelope); err != nil {
		return fmt.Errorf("save job result: %w", err)
	}
	return nil
}

func (uc *JobUseCase) buildItems(job *domain.EnrichmentJob) ([]*domain.ContentItem, error) {
	items := make([]*domain.ContentItem, 0, len(job.Items))
	for _, stored := range job.Items {
		path, err := uc.storage.Path(stored.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("resolve stored file %s: %w", stored.StorageKey, err)
		}
		item, err := uc.contents.FromFile(stored.SourceID, path, stored.MediaType)
		if err != nil {
			slog.Warn("job_item_skipped", "job_id", job.ID, "source_id", stored.SourceID, "error", err.Error())
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build job items", errors.New("no usable content in job"))
	}
	return items, nil
}

func (uc *JobUseCase) fail(ctx context.Context, jobID string, processErr error) error {
	if failErr := uc.repo.UpdateStatus(ctx, jobID, domain.JobFailed, processErr.Error()); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	return processErr
}

func (uc *JobUseCase) deleteInputs(job *domain.EnrichmentJob) {
	uc.deleteKeys(job.ID, job.Items)
}

func (uc *JobUseCase) deleteKeys(jobID string, items []domain.JobItem) {
	for _, stored := range items {
		if err := uc.storage.Delete(context.Background(), stored.StorageKey); err != nil {
			slog.Warn("job_input_delete_failed", "job_id", jobID, "storage_key", stored.StorageKey, "error", err.Error())
		}
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "content.bin"
	}
	return base
}
