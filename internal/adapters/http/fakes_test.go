package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/usecase"
)

type memorySource struct {
	name string
	data []byte
}

func (s *memorySource) Name() string              { return s.name }
func (s *memorySource) DeclaredMediaType() string { return "" }
func (s *memorySource) LocalFile(context.Context) (domain.LocalFile, error) {
	return domain.LocalFile{}, errors.New("not materialized in tests")
}

type contentsFake struct {
	mu        sync.Mutex
	names     []string
	types     []string
	sourceIDs []string
}

func (f *contentsFake) FromFile(sourceID, path, mediaType string) (*domain.ContentItem, error) {
	return domain.NewContentItem(sourceID, &memorySource{name: path}, mediaType)
}

func (f *contentsFake) FromBlob(sourceID, name string, data []byte, mediaType string) (*domain.ContentItem, error) {
	return domain.NewContentItem(sourceID, &memorySource{name: name, data: data}, mediaType)
}

func (f *contentsFake) FromReader(_ context.Context, sourceID, name string, r io.Reader, mediaType string) (*domain.ContentItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.names = append(f.names, name)
	f.types = append(f.types, mediaType)
	f.sourceIDs = append(f.sourceIDs, sourceID)
	f.mu.Unlock()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return domain.NewContentItem(sourceID, &memorySource{name: name, data: data}, mediaType)
}

type enricherFake struct {
	result domain.CallResult
	err    error

	items        []*domain.ContentItem
	req          domain.EnrichmentRequest
	processingID string
	method       string
	path         string
	payload      []byte
	presignedURL string
}

func (f *enricherFake) Enrich(_ context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error) {
	f.items, f.req = items, req
	return f.result, f.err
}

func (f *enricherFake) Submit(_ context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error) {
	f.items, f.req = items, req
	return f.result, f.err
}

func (f *enricherFake) JobResults(_ context.Context, processingID string) (domain.CallResult, error) {
	f.processingID = processingID
	return f.result, f.err
}

func (f *enricherFake) Invoke(_ context.Context, method, path string, payload []byte) (domain.CallResult, error) {
	f.method, f.path, f.payload = method, path, payload
	return f.result, f.err
}

func (f *enricherFake) UploadToPresigned(_ context.Context, item *domain.ContentItem, presignedURL string) (domain.CallResult, error) {
	f.items = []*domain.ContentItem{item}
	f.presignedURL = presignedURL
	return f.result, f.err
}

type curatorFake struct {
	result domain.CallResult
	err    error
	opts   *domain.CurationOptions
	item   *domain.ContentItem
}

func (f *curatorFake) Curate(_ context.Context, item *domain.ContentItem, opts *domain.CurationOptions) (domain.CallResult, error) {
	f.item, f.opts = item, opts
	return f.result, f.err
}

type jobsFake struct {
	job     *domain.EnrichmentJob
	err     error
	uploads []ports.JobUpload
	bodies  []string
}

func (f *jobsFake) Queue(_ context.Context, uploads []ports.JobUpload, req domain.EnrichmentRequest) (*domain.EnrichmentJob, error) {
	f.uploads = uploads
	for _, u := range uploads {
		data, _ := io.ReadAll(u.Body)
		f.bodies = append(f.bodies, string(data))
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EnrichmentJob{ID: "job-1", Status: domain.JobQueued, Actions: req.Actions}, nil
}

func (f *jobsFake) GetByID(_ context.Context, id string) (*domain.EnrichmentJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.job == nil || f.job.ID != id {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", errors.New("id="+id))
	}
	return f.job, nil
}

type testDeps struct {
	enricher *enricherFake
	curator  *curatorFake
	settings *usecase.PollSettingsStore
	contents *contentsFake
	jobs     *jobsFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		enricher: &enricherFake{result: domain.NewCallResult(`{"status":"OK"}`, 200, "OK")},
		curator:  &curatorFake{result: domain.NewCallResult(`{"curated":true}`, 200, "OK")},
		settings: usecase.NewPollSettingsStore(domain.DefaultPollSettings()),
		contents: &contentsFake{},
		jobs:     &jobsFake{},
	}
}

func (d *testDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, d.enricher, d.curator, d.settings, d.contents, d.jobs).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestDeps().handler(cfg)
}
