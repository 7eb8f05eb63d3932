package ports

import (
	"context"
	"io"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// Enricher is the inbound contract for enrichment orchestration.
type Enricher interface {
	Enrich(ctx context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error)
	Submit(ctx context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error)
	JobResults(ctx context.Context, processingID string) (domain.CallResult, error)
	Invoke(ctx context.Context, method, path string, payload []byte) (domain.CallResult, error)
	UploadToPresigned(ctx context.Context, item *domain.ContentItem, presignedURL string) (domain.CallResult, error)
}

// Curator is the inbound contract for data curation of a single item.
type Curator interface {
	Curate(ctx context.Context, item *domain.ContentItem, opts *domain.CurationOptions) (domain.CallResult, error)
}

// PollConfigurer reads and overrides the process-wide polling budget.
type PollConfigurer interface {
	Current() domain.PollSettings
	Configured() domain.PollSettings
	Apply(maxTries, intervalMS int) (domain.PollSettings, error)
}

// JobUpload is one file handed to the asynchronous enrichment path.
type JobUpload struct {
	SourceID  string
	Filename  string
	MediaType string
	Body      io.Reader
}

// EnrichmentJobQueue queues enrichments for the worker.
type EnrichmentJobQueue interface {
	Queue(ctx context.Context, uploads []JobUpload, req domain.EnrichmentRequest) (*domain.EnrichmentJob, error)
}

// EnrichmentJobReader is the inbound read model for queued jobs.
type EnrichmentJobReader interface {
	GetByID(ctx context.Context, id string) (*domain.EnrichmentJob, error)
}

// EnrichmentJobProcessor is the inbound contract for asynchronous job processing.
type EnrichmentJobProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}
