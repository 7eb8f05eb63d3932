package ports

import (
	"context"
	"io"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// HTTPCaller performs single outbound calls and normalizes them into results.
// Transport failures are reported inside the result, never as errors.
type HTTPCaller interface {
	Get(ctx context.Context, url string, headers map[string]string) domain.CallResult
	Post(ctx context.Context, url string, headers map[string]string, body []byte) domain.CallResult
	Put(ctx context.Context, url string, headers map[string]string, body []byte) domain.CallResult
	UploadFile(ctx context.Context, path, url, contentType string) (domain.CallResult, error)
}

// TokenProvider hands out bearer tokens per downstream service.
type TokenProvider interface {
	Token(ctx context.Context, service domain.Service) (string, error)
	Invalidate(service domain.Service)
}

// ContentFactory builds content items from files or in-memory blobs.
type ContentFactory interface {
	FromFile(sourceID, path, mediaType string) (*domain.ContentItem, error)
	FromBlob(sourceID, name string, data []byte, mediaType string) (*domain.ContentItem, error)
	FromReader(ctx context.Context, sourceID, name string, r io.Reader, mediaType string) (*domain.ContentItem, error)
}

// JobRepository persists enrichment job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.EnrichmentJob) error
	GetByID(ctx context.Context, id string) (*domain.EnrichmentJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, status domain.JobStatus, result []byte) error
}

// ObjectStorage stores job inputs until the worker picks them up.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Path(key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes enrichment job events.
type MessageQueue interface {
	PublishEnrichmentRequested(ctx context.Context, jobID string) error
	SubscribeEnrichmentRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// OrchestrationObserver receives orchestration level events for metrics.
type OrchestrationObserver interface {
	ObserveOrchestration(kind, outcome string, seconds float64)
	ObservePollAttempt(kind string)
	ObserveItem(kind string, state domain.ItemState)
}
