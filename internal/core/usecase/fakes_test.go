package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

type callRecord struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
	path    string
}

type callerFake struct {
	mu     sync.Mutex
	calls  []callRecord
	get    func(url string) domain.CallResult
	post   func(url string, body []byte) domain.CallResult
	put    func(url string, body []byte) domain.CallResult
	upload func(path, url, contentType string) (domain.CallResult, error)
}

func (f *callerFake) record(rec callRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
}

func (f *callerFake) Get(_ context.Context, url string, headers map[string]string) domain.CallResult {
	f.record(callRecord{method: "GET", url: url, headers: headers})
	if f.get == nil {
		return domain.NewCallResult("", 404, "Not Found")
	}
	return f.get(url)
}

func (f *callerFake) Post(_ context.Context, url string, headers map[string]string, body []byte) domain.CallResult {
	f.record(callRecord{method: "POST", url: url, headers: headers, body: body})
	if f.post == nil {
		return domain.NewCallResult("", 404, "Not Found")
	}
	return f.post(url, body)
}

func (f *callerFake) Put(_ context.Context, url string, headers map[string]string, body []byte) domain.CallResult {
	f.record(callRecord{method: "PUT", url: url, headers: headers, body: body})
	if f.put == nil {
		return domain.NewCallResult("", 404, "Not Found")
	}
	return f.put(url, body)
}

func (f *callerFake) UploadFile(_ context.Context, path, url, contentType string) (domain.CallResult, error) {
	f.record(callRecord{method: "UPLOAD", url: url, path: path, headers: map[string]string{"Content-Type": contentType}})
	if f.upload == nil {
		return domain.NewCallResult("", 200, "OK"), nil
	}
	return f.upload(path, url, contentType)
}

func (f *callerFake) count(method, urlPart string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method && strings.Contains(c.url, urlPart) {
			n++
		}
	}
	return n
}

func (f *callerFake) find(method, urlPart string) []callRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []callRecord
	for _, c := range f.calls {
		if c.method == method && strings.Contains(c.url, urlPart) {
			out = append(out, c)
		}
	}
	return out
}

type tokensFake struct {
	token       string
	err         error
	calls       int
	invalidated []domain.Service
}

func (f *tokensFake) Token(_ context.Context, _ domain.Service) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *tokensFake) Invalidate(service domain.Service) {
	f.invalidated = append(f.invalidated, service)
}

type sourceFake struct {
	name     string
	path     string
	err      error
	released int
}

func (f *sourceFake) Name() string              { return f.name }
func (f *sourceFake) DeclaredMediaType() string { return "" }
func (f *sourceFake) LocalFile(context.Context) (domain.LocalFile, error) {
	if f.err != nil {
		return domain.LocalFile{}, f.err
	}
	return domain.LocalFile{Path: f.path, Release: func() error {
		f.released++
		return nil
	}}, nil
}

func newItemFake(sourceID string, valid bool) (*domain.ContentItem, *sourceFake) {
	src := &sourceFake{name: sourceID + ".pdf", path: "/tmp/" + sourceID + ".pdf"}
	if !valid {
		src.err = errors.New("file does not exist")
	}
	item, err := domain.NewContentItem(sourceID, src, "application/pdf")
	if err != nil {
		panic(err)
	}
	return item, src
}

type observerFake struct {
	orchestrations []string
	pollAttempts   int
	items          map[domain.ItemState]int
}

func (f *observerFake) ObserveOrchestration(kind, outcome string, _ float64) {
	f.orchestrations = append(f.orchestrations, kind+":"+outcome)
}

func (f *observerFake) ObservePollAttempt(string) { f.pollAttempts++ }

func (f *observerFake) ObserveItem(_ string, state domain.ItemState) {
	if f.items == nil {
		f.items = map[domain.ItemState]int{}
	}
	f.items[state]++
}

type sleepRecorder struct {
	calls     []time.Duration
	failAfter int
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	if s.failAfter > 0 && len(s.calls) >= s.failAfter {
		return context.Canceled
	}
	return nil
}

func testSettings(maxTries int) *PollSettingsStore {
	return NewPollSettingsStore(domain.PollSettings{MaxTries: maxTries, Interval: 25 * time.Millisecond})
}
