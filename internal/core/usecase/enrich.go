package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
)

const (
	presignPath       = "/api/files/upload/presigned-url"
	processPath       = "/api/content/process"
	enrichmentKind    = "enrichment"
	jsonContentType   = "application/json"
	contentTypeHeader = "Content-Type"
)

type EnrichmentUseCase struct {
	endpoint string
	caller   ports.HTTPCaller
	tokens   ports.TokenProvider
	observer ports.OrchestrationObserver
	poller   poller
}

func NewEnrichmentUseCase(
	endpoint string,
	caller ports.HTTPCaller,
	tokens ports.TokenProvider,
	settings ports.PollConfigurer,
	observer ports.OrchestrationObserver,
) *EnrichmentUseCase {
	observer = observerOrNoop(observer)
	return &EnrichmentUseCase{
		endpoint: strings.TrimRight(endpoint, "/"),
		caller:   caller,
		tokens:   tokens,
		observer: observer,
		poller:   newPoller(settings, observer),
	}
}

// Enrich uploads every item, submits one processing job for the uploaded
// ones and polls until the job result is conclusive. The returned result
// carries the {sourceId, objectKey} mapping of items found in the job result.
func (uc *EnrichmentUseCase) Enrich(ctx context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (result domain.CallResult, err error) {
	started := time.Now()
	defer func() {
		uc.observer.ObserveOrchestration(enrichmentKind, outcomeLabel(result, err), time.Since(started).Seconds())
	}()

	submitted, err := uc.submit(ctx, items, req)
	if err != nil {
		return domain.CallResult{}, err
	}
	if submitted.Failed() {
		slog.Warn("enrichment_submit_failed", "status_code", submitted.StatusCode, "status_message", submitted.StatusMessage)
		return submitted, nil
	}

	var submission domain.ProcessSubmission
	if err := submitted.DecodeObject(&submission); err != nil {
		return submitted, fmt.Errorf("decode process submission: %w", err)
	}
	if strings.TrimSpace(submission.ProcessingID) == "" {
		return submitted, domain.WrapError(domain.ErrMalformedResponse, "decode process submission", errors.New("processingId is missing"))
	}

	final, err := uc.poller.run(ctx, enrichmentKind, func(ctx context.Context, _ int) (domain.CallResult, bool, error) {
		res, err := uc.JobResults(ctx, submission.ProcessingID)
		if err != nil {
			return res, false, err
		}
		return res, res.Conclusive(), nil
	})
	if err != nil {
		return final, err
	}
	if !final.Conclusive() {
		return final, nil
	}

	var results domain.ProcessResults
	if err := final.DecodeObject(&results); err != nil {
		return final, fmt.Errorf("decode process results: %w", err)
	}
	return final.WithMapping(domain.CorrelateResults(results, items)), nil
}

// Submit uploads every item and submits one processing job without waiting
// for it. The mapping of the uploaded items is attached to the result.
func (uc *EnrichmentUseCase) Submit(ctx context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error) {
	return uc.submit(ctx, items, req)
}

func (uc *EnrichmentUseCase) submit(ctx context.Context, items []*domain.ContentItem, req domain.EnrichmentRequest) (domain.CallResult, error) {
	if err := req.Validate(); err != nil {
		return domain.CallResult{}, err
	}
	if len(items) == 0 {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "submit enrichment", errors.New("at least one content item is required"))
	}

	if err := uc.Upload(ctx, items); err != nil {
		return domain.CallResult{}, err
	}

	payload, err := req.BuildSubmission(domain.UploadedObjectKeys(items))
	if err != nil {
		return domain.CallResult{}, err
	}

	token, err := uc.tokens.Token(ctx, domain.ServiceEnrichment)
	if err != nil {
		return domain.CallResult{}, err
	}
	headers := bearer(token)
	headers[contentTypeHeader] = jsonContentType

	result := uc.caller.Post(ctx, uc.endpoint+processPath, headers, payload)
	uc.invalidateOnUnauthorized(result)
	return result.WithMapping(domain.UploadedMapping(items)), nil
}

// JobResults fetches the current state of a processing job.
func (uc *EnrichmentUseCase) JobResults(ctx context.Context, processingID string) (domain.CallResult, error) {
	processingID = strings.TrimSpace(processingID)
	if processingID == "" {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "job results", errors.New("processing id is required"))
	}
	token, err := uc.tokens.Token(ctx, domain.ServiceEnrichment)
	if err != nil {
		return domain.CallResult{}, err
	}
	target := fmt.Sprintf("%s%s/%s/results", uc.endpoint, processPath, url.PathEscape(processingID))
	result := uc.caller.Get(ctx, target, bearer(token))
	uc.invalidateOnUnauthorized(result)
	return result, nil
}

// Upload sends every item to its own presigned URL. A failing item is marked
// failed and the batch goes on; only an authentication failure aborts it.
// Every item is released before returning.
func (uc *EnrichmentUseCase) Upload(ctx context.Context, items []*domain.ContentItem) error {
	defer releaseAll(items)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		token, err := uc.tokens.Token(ctx, domain.ServiceEnrichment)
		if err != nil {
			return err
		}
		uc.uploadItem(ctx, token, item)
		uc.observer.ObserveItem(enrichmentKind, item.State)
	}
	return nil
}

func (uc *EnrichmentUseCase) uploadItem(ctx context.Context, token string, item *domain.ContentItem) {
	presignURL := fmt.Sprintf("%s%s?contentType=%s", uc.endpoint, presignPath, url.QueryEscape(item.MediaType))
	presigned := uc.caller.Get(ctx, presignURL, bearer(token))
	uc.invalidateOnUnauthorized(presigned)
	if presigned.Failed() {
		uc.failItem(item, fmt.Sprintf("presign request failed: %d %s", presigned.StatusCode, presigned.StatusMessage))
		return
	}

	var target domain.PresignedUpload
	if err := presigned.DecodeObject(&target); err != nil {
		uc.failItem(item, fmt.Sprintf("presign response unreadable: %v", err))
		return
	}
	if target.PresignedURL == "" || target.ObjectKey == "" {
		uc.failItem(item, "presign response has no presignedUrl or objectKey")
		return
	}

	path, err := item.LocalPath(ctx)
	if err != nil {
		uc.failItem(item, fmt.Sprintf("local file unavailable: %v", err))
		return
	}

	uploaded, err := uc.caller.UploadFile(ctx, path, target.PresignedURL, item.MediaType)
	if err != nil {
		uc.failItem(item, fmt.Sprintf("upload failed: %v", err))
		return
	}
	if uploaded.Failed() {
		uc.failItem(item, fmt.Sprintf("upload failed: %d %s", uploaded.StatusCode, uploaded.StatusMessage))
		return
	}

	item.MarkUploaded(target.ObjectKey)
	slog.Debug("enrichment_item_uploaded", "source_id", item.SourceID, "object_key", target.ObjectKey)
}

func (uc *EnrichmentUseCase) failItem(item *domain.ContentItem, message string) {
	item.MarkFailed(message)
	slog.Warn("enrichment_item_failed", "source_id", item.SourceID, "name", item.Name(), "error", message)
}

// UploadToPresigned streams one item to a presigned URL the caller already
// holds. The item is released afterwards.
func (uc *EnrichmentUseCase) UploadToPresigned(ctx context.Context, item *domain.ContentItem, presignedURL string) (domain.CallResult, error) {
	if item == nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload to presigned url", errors.New("content item is required"))
	}
	defer releaseItem(item)

	if strings.TrimSpace(presignedURL) == "" {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload to presigned url", errors.New("presigned url is required"))
	}
	path, err := item.LocalPath(ctx)
	if err != nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload to presigned url", err)
	}
	return uc.caller.UploadFile(ctx, path, presignedURL, item.MediaType)
}

// Invoke sends an authenticated request to an arbitrary path of the
// enrichment service.
func (uc *EnrichmentUseCase) Invoke(ctx context.Context, method, path string, payload []byte) (domain.CallResult, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "invoke enrichment", fmt.Errorf("unsupported http method %q", method))
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "invoke enrichment", errors.New("endpoint path is required"))
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	token, err := uc.tokens.Token(ctx, domain.ServiceEnrichment)
	if err != nil {
		return domain.CallResult{}, err
	}
	headers := bearer(token)
	if strings.HasPrefix(path, processPath) {
		headers[contentTypeHeader] = jsonContentType
	}

	target := uc.endpoint + path
	var result domain.CallResult
	switch method {
	case http.MethodGet:
		result = uc.caller.Get(ctx, target, headers)
	case http.MethodPost:
		result = uc.caller.Post(ctx, target, headers, payload)
	default:
		result = uc.caller.Put(ctx, target, headers, payload)
	}
	uc.invalidateOnUnauthorized(result)
	return result, nil
}

// invalidateOnUnauthorized drops a token the service no longer accepts so the
// next call fetches a fresh one.
func (uc *EnrichmentUseCase) invalidateOnUnauthorized(result domain.CallResult) {
	if result.StatusCode == http.StatusUnauthorized {
		uc.tokens.Invalidate(domain.ServiceEnrichment)
	}
}

func releaseAll(items []*domain.ContentItem) {
	for _, item := range items {
		releaseItem(item)
	}
}

func releaseItem(item *domain.ContentItem) {
	if err := item.Release(); err != nil {
		slog.Warn("content_release_failed", "source_id", item.SourceID, "error", err.Error())
	}
}
