package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/usecase"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/observability/metrics"
)

const (
	serviceName         = "api"
	multipartMemory     = 8 << 20
	octetStreamFallback = "application/octet-stream"
)

// JobService queues and reads asynchronous enrichment jobs.
type JobService interface {
	ports.EnrichmentJobQueue
	ports.EnrichmentJobReader
}

type Router struct {
	enricher ports.Enricher
	curator  ports.Curator
	settings ports.PollConfigurer
	contents ports.ContentFactory
	jobs     JobService
	metrics  *metrics.HTTPServerMetrics

	apiKey           string
	rateLimitRPS     int
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	maxUploadBytes   int64
}

// NewRouter builds the api. jobs may be nil, in which case the async job
// routes answer 503.
func NewRouter(
	cfg config.Config,
	enricher ports.Enricher,
	curator ports.Curator,
	settings ports.PollConfigurer,
	contents ports.ContentFactory,
	jobs JobService,
) *Router {
	maxUpload := int64(cfg.APIMaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &Router{
		enricher:         enricher,
		curator:          curator,
		settings:         settings,
		contents:         contents,
		jobs:             jobs,
		apiKey:           strings.TrimSpace(cfg.APIKey),
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		maxUploadBytes:   maxUpload,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/enrich", rt.enrich)
	api.HandleFunc("/v1/enrich/send", rt.sendForEnrichment)
	api.HandleFunc("/v1/enrich/results/", rt.enrichmentResults)
	api.HandleFunc("/v1/enrich/invoke", rt.invoke)
	api.HandleFunc("/v1/upload", rt.uploadFile)
	api.HandleFunc("/v1/curate", rt.curate)
	api.HandleFunc("/v1/settings/polling", rt.pollSettings)
	api.HandleFunc("/v1/jobs", rt.queueJob)
	api.HandleFunc("/v1/jobs/", rt.getJobByID)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.backpressureWait)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst)
	guarded = apiKeyMiddleware(guarded, rt.apiKey)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) enrich(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	items, req, err := rt.readEnrichmentForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer releaseItems(items)

	result, err := rt.enricher.Enrich(r.Context(), items, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) sendForEnrichment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	items, req, err := rt.readEnrichmentForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer releaseItems(items)

	result, err := rt.enricher.Submit(r.Context(), items, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) enrichmentResults(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/enrich/results/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "processing id is required"})
		return
	}
	result, err := rt.enricher.JobResults(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type invokeRequest struct {
	HTTPMethod  string          `json:"httpMethod"`
	Endpoint    string          `json:"endpoint"`
	JSONPayload json.RawMessage `json:"jsonPayload"`
}

func (rt *Router) invoke(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req invokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	payload, err := invokePayload(req.JSONPayload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := rt.enricher.Invoke(r.Context(), req.HTTPMethod, req.Endpoint, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// invokePayload accepts the payload either as embedded json or as a json
// string holding it.
func invokePayload(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil, fmt.Errorf("jsonPayload is not a valid string: %w", err)
	}
	return []byte(text), nil
}

func (rt *Router) uploadFile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := rt.parseMultipart(w, r); err != nil {
		writeError(w, err)
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one multipart field 'file' is required"})
		return
	}
	item, err := rt.itemFromPart(r, "", files[0], r.FormValue("mimeType"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer releaseItems([]*domain.ContentItem{item})

	result, err := rt.enricher.UploadToPresigned(r.Context(), item, r.FormValue("presignedUrl"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) curate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := rt.parseMultipart(w, r); err != nil {
		writeError(w, err)
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one multipart field 'file' is required"})
		return
	}

	var opts *domain.CurationOptions
	if raw := strings.TrimSpace(r.FormValue("jsonOptions")); raw != "" {
		parsed := domain.DefaultCurationOptions()
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "jsonOptions is not valid json"})
			return
		}
		opts = &parsed
	}

	item, err := rt.itemFromPart(r, r.FormValue("sourceId"), files[0], "")
	if err != nil {
		writeError(w, err)
		return
	}
	defer releaseItems([]*domain.ContentItem{item})

	result, err := rt.curator.Curate(r.Context(), item, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type pollSettingsBody struct {
	MaxTries        *int `json:"maxTries"`
	SleepIntervalMS *int `json:"sleepIntervalMs"`
}

type pollSettingsValues struct {
	MaxTries        int   `json:"maxTries"`
	SleepIntervalMS int64 `json:"sleepIntervalMs"`
}

// pollSettingsView shows the active values and, under configured, the ones
// a reset restores.
type pollSettingsView struct {
	pollSettingsValues
	Configured pollSettingsValues `json:"configured"`
}

func valuesOf(s domain.PollSettings) pollSettingsValues {
	return pollSettingsValues{MaxTries: s.MaxTries, SleepIntervalMS: s.Interval.Milliseconds()}
}

func (rt *Router) viewOf(current domain.PollSettings) pollSettingsView {
	return pollSettingsView{
		pollSettingsValues: valuesOf(current),
		Configured:         valuesOf(rt.settings.Configured()),
	}
}

func (rt *Router) pollSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.viewOf(rt.settings.Current()))
	case http.MethodPut:
		var body pollSettingsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		maxTries, interval := usecase.OverrideKeep, usecase.OverrideKeep
		if body.MaxTries != nil {
			maxTries = *body.MaxTries
		}
		if body.SleepIntervalMS != nil {
			interval = *body.SleepIntervalMS
		}
		applied, err := rt.settings.Apply(maxTries, interval)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.viewOf(applied))
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) queueJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if rt.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are disabled"})
		return
	}
	if err := rt.parseMultipart(w, r); err != nil {
		writeError(w, err)
		return
	}
	req := enrichmentRequestFromForm(r)
	files := r.MultipartForm.File["file"]
	sourceIDs, err := sourceIDsFor(r, len(files))
	if err != nil {
		writeError(w, err)
		return
	}

	uploads := make([]ports.JobUpload, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart file is unreadable"})
			return
		}
		defer f.Close()
		uploads = append(uploads, ports.JobUpload{
			SourceID:  sourceIDs[i],
			Filename:  fh.Filename,
			MediaType: declaredMediaType(fh, ""),
			Body:      f,
		})
	}

	job, err := rt.jobs.Queue(r.Context(), uploads, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getJobByID(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if rt.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are disabled"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.jobs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// readEnrichmentForm builds one content item per "file" part plus the
// request parameters. Items built before a failure are released.
func (rt *Router) readEnrichmentForm(w http.ResponseWriter, r *http.Request) ([]*domain.ContentItem, domain.EnrichmentRequest, error) {
	if err := rt.parseMultipart(w, r); err != nil {
		return nil, domain.EnrichmentRequest{}, err
	}
	req := enrichmentRequestFromForm(r)
	files := r.MultipartForm.File["file"]
	sourceIDs, err := sourceIDsFor(r, len(files))
	if err != nil {
		return nil, domain.EnrichmentRequest{}, err
	}

	items := make([]*domain.ContentItem, 0, len(files))
	for i, fh := range files {
		item, err := rt.itemFromPart(r, sourceIDs[i], fh, "")
		if err != nil {
			releaseItems(items)
			return nil, domain.EnrichmentRequest{}, err
		}
		items = append(items, item)
	}
	return items, req, nil
}

func (rt *Router) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err)
	}
	return nil
}

func (rt *Router) itemFromPart(r *http.Request, sourceID string, fh *multipart.FileHeader, explicitType string) (*domain.ContentItem, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open multipart file", err)
	}
	defer f.Close()
	return rt.contents.FromReader(r.Context(), sourceID, fh.Filename, f, declaredMediaType(fh, explicitType))
}

// declaredMediaType prefers an explicit type, then the part header. A generic
// octet-stream header is treated as unknown so the bytes get sniffed.
func declaredMediaType(fh *multipart.FileHeader, explicitType string) string {
	if t := strings.TrimSpace(explicitType); t != "" {
		return t
	}
	t := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if t == octetStreamFallback {
		return ""
	}
	return t
}

func enrichmentRequestFromForm(r *http.Request) domain.EnrichmentRequest {
	req := domain.EnrichmentRequest{
		Actions: domain.SplitList(r.FormValue("actions")),
		Classes: domain.SplitList(r.FormValue("classes")),
	}
	if raw := strings.TrimSpace(r.FormValue("similarMetadata")); raw != "" {
		req.SimilarMetadata = json.RawMessage(raw)
	}
	if raw := strings.TrimSpace(r.FormValue("extraPayload")); raw != "" {
		req.ExtraPayload = json.RawMessage(raw)
	}
	return req
}

// sourceIDsFor returns one source id per file. Without a "sourceIds" field
// every id is blank and gets generated later.
func sourceIDsFor(r *http.Request, files int) ([]string, error) {
	raw := strings.TrimSpace(r.FormValue("sourceIds"))
	if raw == "" {
		return make([]string, files), nil
	}
	ids := strings.Split(raw, ",")
	if len(ids) != files {
		return nil, domain.WrapError(domain.ErrInvalidInput, "source ids",
			fmt.Errorf("got %d source ids for %d files", len(ids), files))
	}
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	return ids, nil
}

func releaseItems(items []*domain.ContentItem) {
	for _, item := range items {
		_ = item.Release()
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
