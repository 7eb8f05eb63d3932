package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
)

type jobRepoFake struct {
	jobs        map[string]*domain.EnrichmentJob
	statusCalls []domain.JobStatus
	saved       []byte
	createErr   error
}

func (f *jobRepoFake) Create(_ context.Context, job *domain.EnrichmentJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.jobs == nil {
		f.jobs = map[string]*domain.EnrichmentJob{}
	}
	copyJob := *job
	f.jobs[job.ID] = &copyJob
	return nil
}

func (f *jobRepoFake) GetByID(_ context.Context, id string) (*domain.EnrichmentJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", errors.New(id))
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *jobRepoFake) UpdateStatus(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, status)
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.Error = errMessage
	}
	return nil
}

func (f *jobRepoFake) SaveResult(_ context.Context, id string, status domain.JobStatus, result []byte) error {
	f.statusCalls = append(f.statusCalls, status)
	f.saved = result
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.Result = result
	}
	return nil
}

type storageFake struct {
	files   map[string][]byte
	deleted []string
	// failAt makes the save with this 1-based index fail.
	failAt int
	saves  int
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	f.saves++
	if f.failAt > 0 && f.saves == f.failAt {
		return errors.New("disk full")
	}
	if f.files == nil {
		f.files = map[string][]byte{}
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *storageFake) Path(key string) (string, error) { return "/data/" + key, nil }

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.files, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishEnrichmentRequested(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, jobID)
	return nil
}

func (f *queueFake) SubscribeEnrichmentRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type contentFactoryFake struct {
	invalid map[string]bool
}

func (f *contentFactoryFake) FromFile(sourceID, path, mediaType string) (*domain.ContentItem, error) {
	if f.invalid[sourceID] {
		return nil, domain.WrapError(domain.ErrInvalidInput, "from file", errors.New("unreadable"))
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return domain.NewContentItem(sourceID, &sourceFake{name: path, path: path}, mediaType)
}

func (f *contentFactoryFake) FromBlob(string, string, []byte, string) (*domain.ContentItem, error) {
	return nil, errors.New("not used")
}

func (f *contentFactoryFake) FromReader(context.Context, string, string, io.Reader, string) (*domain.ContentItem, error) {
	return nil, errors.New("not used")
}

type enricherFake struct {
	result domain.CallResult
	err    error
	items  []*domain.ContentItem
	req    domain.EnrichmentRequest
}

func (f *enricherFake) Enrich(_ context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error) {
	f.items = items
	f.req = req
	return f.result, f.err
}

func (f *enricherFake) Submit(context.Context, []*domain.ContentItem, domain.EnrichmentRequest) (domain.CallResult, error) {
	return domain.CallResult{}, nil
}

func (f *enricherFake) JobResults(context.Context, string) (domain.CallResult, error) {
	return domain.CallResult{}, nil
}

func (f *enricherFake) Invoke(context.Context, string, string, []byte) (domain.CallResult, error) {
	return domain.CallResult{}, nil
}

func (f *enricherFake) UploadToPresigned(context.Context, *domain.ContentItem, string) (domain.CallResult, error) {
	return domain.CallResult{}, nil
}

func newJobsForTest(enricher *enricherFake) (*JobUseCase, *jobRepoFake, *storageFake, *queueFake, *contentFactoryFake) {
	repo := &jobRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	contents := &contentFactoryFake{}
	return NewJobUseCase(repo, storage, queue, contents, enricher), repo, storage, queue, contents
}

func TestQueueStoresFilesAndPublishes(t *testing.T) {
	uc, repo, storage, queue, _ := newJobsForTest(&enricherFake{})

	job, err := uc.Queue(context.Background(), []ports.JobUpload{
		{SourceID: "doc-1", Filename: "my report.pdf", MediaType: "application/pdf", Body: strings.NewReader("pdf")},
		{Filename: "photo.png", Body: strings.NewReader("png")},
	}, domain.EnrichmentRequest{Actions: []string{"image-description"}})
	if err != nil {
		t.Fatalf("Queue() error = %v", err)
	}
	if job.Status != domain.JobQueued || len(job.Items) != 2 {
		t.Fatalf("unexpected job %+v", job)
	}
	if !strings.HasSuffix(job.Items[0].StorageKey, "0_my_report.pdf") {
		t.Fatalf("unexpected storage key %q", job.Items[0].StorageKey)
	}
	if !strings.HasPrefix(job.Items[1].SourceID, domain.CustomIDPrefix) {
		t.Fatalf("expected generated source id, got %q", job.Items[1].SourceID)
	}
	if len(storage.files) != 2 {
		t.Fatalf("expected 2 stored files, got %d", len(storage.files))
	}
	if _, ok := repo.jobs[job.ID]; !ok {
		t.Fatalf("job not persisted")
	}
	if len(queue.published) != 1 || queue.published[0] != job.ID {
		t.Fatalf("unexpected published ids %v", queue.published)
	}
}

func TestQueueRejectsEmptyInput(t *testing.T) {
	uc, _, _, _, _ := newJobsForTest(&enricherFake{})
	if _, err := uc.Queue(context.Background(), nil, domain.EnrichmentRequest{Actions: []string{"a"}}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func queueTwoUploads(uc *JobUseCase) (*domain.EnrichmentJob, error) {
	return uc.Queue(context.Background(), []ports.JobUpload{
		{SourceID: "doc-1", Filename: "a.pdf", Body: strings.NewReader("a")},
		{SourceID: "doc-2", Filename: "b.pdf", Body: strings.NewReader("b")},
	}, domain.EnrichmentRequest{Actions: []string{"a"}})
}

func TestQueueSaveFailureRemovesEarlierFiles(t *testing.T) {
	uc, repo, storage, queue, _ := newJobsForTest(&enricherFake{})
	storage.failAt = 2

	if _, err := queueTwoUploads(uc); err == nil {
		t.Fatalf("expected save error")
	}
	if len(storage.files) != 0 || len(storage.deleted) != 1 {
		t.Fatalf("expected first file removed, files=%v deleted=%v", storage.files, storage.deleted)
	}
	if len(repo.jobs) != 0 || len(queue.published) != 0 {
		t.Fatalf("expected no job recorded or published")
	}
}

func TestQueueCreateFailureRemovesFiles(t *testing.T) {
	uc, repo, storage, queue, _ := newJobsForTest(&enricherFake{})
	repo.createErr = errors.New("db down")

	if _, err := queueTwoUploads(uc); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected create error, got %v", err)
	}
	if len(storage.files) != 0 || len(storage.deleted) != 2 {
		t.Fatalf("expected stored files removed, files=%v deleted=%v", storage.files, storage.deleted)
	}
	if len(queue.published) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestQueuePublishFailureFailsJobAndRemovesFiles(t *testing.T) {
	uc, repo, storage, queue, _ := newJobsForTest(&enricherFake{})
	queue.err = errors.New("nats unavailable")

	if _, err := queueTwoUploads(uc); err == nil || !strings.Contains(err.Error(), "nats unavailable") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(storage.files) != 0 || len(storage.deleted) != 2 {
		t.Fatalf("expected stored files removed, files=%v deleted=%v", storage.files, storage.deleted)
	}
	if len(repo.jobs) != 1 {
		t.Fatalf("expected job recorded, got %d", len(repo.jobs))
	}
	for _, job := range repo.jobs {
		if job.Status != domain.JobFailed || !strings.Contains(job.Error, "nats unavailable") {
			t.Fatalf("expected failed job with publish error, got %+v", job)
		}
	}
}

func TestProcessByIDSavesEnvelope(t *testing.T) {
	enricher := &enricherFake{result: domain.NewCallResult(`{"status":"SUCCESS"}`, 200, "OK").WithMapping([]domain.ObjectKeyMapping{{SourceID: "doc-1", ObjectKey: "k"}})}
	uc, repo, storage, _, contents := newJobsForTest(enricher)
	contents.invalid = map[string]bool{"doc-2": true}
	repo.jobs = map[string]*domain.EnrichmentJob{"job-1": {
		ID:      "job-1",
		Status:  domain.JobQueued,
		Actions: []string{"a"},
		Items: []domain.JobItem{
			{SourceID: "doc-1", StorageKey: "job-1/0_a.pdf", MediaType: "application/pdf"},
			{SourceID: "doc-2", StorageKey: "job-1/1_b.pdf"},
		},
	}}

	if err := uc.ProcessByID(context.Background(), "job-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(enricher.items) != 1 || enricher.items[0].SourceID != "doc-1" {
		t.Fatalf("unexpected enriched items %+v", enricher.items)
	}
	if enricher.req.Actions[0] != "a" {
		t.Fatalf("job request not forwarded")
	}
	if got := repo.statusCalls; len(got) != 2 || got[0] != domain.JobRunning || got[1] != domain.JobSucceeded {
		t.Fatalf("unexpected status transitions %v", got)
	}
	parsed, err := domain.ParseCallResult(string(repo.saved))
	if err != nil || parsed.StatusCode != 200 || len(parsed.Mapping) != 1 {
		t.Fatalf("unexpected saved envelope %s (%v)", repo.saved, err)
	}
	if len(storage.deleted) != 2 {
		t.Fatalf("expected stored inputs deleted, got %v", storage.deleted)
	}
}

func TestProcessByIDInconclusiveResultFailsJob(t *testing.T) {
	enricher := &enricherFake{result: domain.NewCallResult(`{}`, 202, "Accepted")}
	uc, repo, _, _, _ := newJobsForTest(enricher)
	repo.jobs = map[string]*domain.EnrichmentJob{"job-1": {
		ID: "job-1", Actions: []string{"a"},
		Items: []domain.JobItem{{SourceID: "doc-1", StorageKey: "k", MediaType: "text/plain"}},
	}}

	if err := uc.ProcessByID(context.Background(), "job-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.jobs["job-1"].Status != domain.JobFailed || len(repo.saved) == 0 {
		t.Fatalf("expected failed job with saved envelope, got %+v", repo.jobs["job-1"])
	}
}

func TestProcessByIDEnrichErrorMarksFailed(t *testing.T) {
	enricher := &enricherFake{err: domain.WrapError(domain.ErrUnauthorized, "token", errors.New("denied"))}
	uc, repo, _, _, _ := newJobsForTest(enricher)
	repo.jobs = map[string]*domain.EnrichmentJob{"job-1": {
		ID: "job-1", Actions: []string{"a"},
		Items: []domain.JobItem{{SourceID: "doc-1", StorageKey: "k", MediaType: "text/plain"}},
	}}

	err := uc.ProcessByID(context.Background(), "job-1")
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	job := repo.jobs["job-1"]
	if job.Status != domain.JobFailed || !strings.Contains(job.Error, "denied") {
		t.Fatalf("expected failed status with message, got %+v", job)
	}
}

func TestProcessByIDUnknownJob(t *testing.T) {
	uc, repo, _, _, _ := newJobsForTest(&enricherFake{})
	repo.jobs = map[string]*domain.EnrichmentJob{}
	if err := uc.ProcessByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
