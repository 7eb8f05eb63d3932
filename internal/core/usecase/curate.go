package usecase

import (
	"context"
	"encoding/json"
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
	curationPresignPath = "/api/presign"
	curationStatusPath  = "/api/status"
	curationKind        = "curation"
	octetStream         = "application/octet-stream"
)

type CurationUseCase struct {
	endpoint string
	caller   ports.HTTPCaller
	tokens   ports.TokenProvider
	observer ports.OrchestrationObserver
	poller   poller
}

func NewCurationUseCase(
	endpoint string,
	caller ports.HTTPCaller,
	tokens ports.TokenProvider,
	settings ports.PollConfigurer,
	observer ports.OrchestrationObserver,
) *CurationUseCase {
	observer = observerOrNoop(observer)
	return &CurationUseCase{
		endpoint: strings.TrimRight(endpoint, "/"),
		caller:   caller,
		tokens:   tokens,
		observer: observer,
		poller:   newPoller(settings, observer),
	}
}

// Curate presigns a curation job, uploads the item, polls the job status and
// fetches the curated artifact once the job is done. Nil opts use
// domain.DefaultCurationOptions.
func (uc *CurationUseCase) Curate(ctx context.Context, item *domain.ContentItem, opts *domain.CurationOptions) (result domain.CallResult, err error) {
	started := time.Now()
	defer func() {
		uc.observer.ObserveOrchestration(curationKind, outcomeLabel(result, err), time.Since(started).Seconds())
	}()

	if item == nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "curate", errors.New("content item is required"))
	}
	defer releaseItem(item)

	options := domain.DefaultCurationOptions()
	if opts != nil {
		options = *opts
	}
	if err := options.Validate(); err != nil {
		return domain.CallResult{}, err
	}
	options.JSONSchema = domain.JSONSchema(strings.ToUpper(string(options.JSONSchema)))

	token, err := uc.tokens.Token(ctx, domain.ServiceCuration)
	if err != nil {
		return domain.CallResult{}, err
	}

	presign, presigned, err := uc.presign(ctx, token, options)
	if err != nil || presigned.Failed() {
		return presigned, err
	}

	path, err := item.LocalPath(ctx)
	if err != nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "curate", err)
	}
	uploaded, err := uc.caller.UploadFile(ctx, path, presign.PutURL, octetStream)
	if err != nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "curate", err)
	}
	if uploaded.Failed() {
		item.MarkFailed(fmt.Sprintf("upload failed: %d %s", uploaded.StatusCode, uploaded.StatusMessage))
		uc.observer.ObserveItem(curationKind, item.State)
		slog.Warn("curation_upload_failed", "job_id", presign.JobID, "status_code", uploaded.StatusCode)
		return uploaded, nil
	}
	item.MarkUploaded(presign.JobID)
	uc.observer.ObserveItem(curationKind, item.State)

	return uc.poller.run(ctx, curationKind, func(ctx context.Context, attempt int) (domain.CallResult, bool, error) {
		return uc.checkStatus(ctx, presign, attempt)
	})
}

func (uc *CurationUseCase) presign(ctx context.Context, token string, options domain.CurationOptions) (domain.CurationPresign, domain.CallResult, error) {
	body, err := json.Marshal(options)
	if err != nil {
		return domain.CurationPresign{}, domain.CallResult{}, fmt.Errorf("encode curation options: %w", err)
	}
	headers := bearer(token)
	headers[contentTypeHeader] = jsonContentType

	result := uc.caller.Post(ctx, uc.endpoint+curationPresignPath, headers, body)
	uc.invalidateOnUnauthorized(result)
	if result.Failed() {
		slog.Warn("curation_presign_failed", "status_code", result.StatusCode, "status_message", result.StatusMessage)
		return domain.CurationPresign{}, result, nil
	}

	var presign domain.CurationPresign
	if err := result.DecodeObject(&presign); err != nil {
		return domain.CurationPresign{}, result, fmt.Errorf("decode curation presign: %w", err)
	}
	if presign.JobID == "" || presign.PutURL == "" || presign.GetURL == "" {
		return domain.CurationPresign{}, result, domain.WrapError(domain.ErrMalformedResponse, "decode curation presign", errors.New("job_id, put_url and get_url are required"))
	}
	return presign, result, nil
}

// checkStatus polls the job once. A "done" status fetches the artifact; a
// successful fetch ends the loop.
func (uc *CurationUseCase) checkStatus(ctx context.Context, presign domain.CurationPresign, attempt int) (domain.CallResult, bool, error) {
	token, err := uc.tokens.Token(ctx, domain.ServiceCuration)
	if err != nil {
		return domain.CallResult{}, false, err
	}

	target := fmt.Sprintf("%s%s/%s", uc.endpoint, curationStatusPath, url.PathEscape(presign.JobID))
	result := uc.caller.Get(ctx, target, bearer(token))
	uc.invalidateOnUnauthorized(result)
	if result.Failed() {
		return result, false, nil
	}

	var status domain.CurationStatus
	if err := result.DecodeObject(&status); err != nil {
		return result, false, fmt.Errorf("decode curation status: %w", err)
	}
	if status.JobID != presign.JobID {
		slog.Warn("curation_job_mismatch", "attempt", attempt, "expected", presign.JobID, "received", status.JobID)
		return domain.NewCallResult(
			domain.EmptyJSONObject,
			domain.StatusJobMismatch,
			fmt.Sprintf("job id mismatch: expected %s, received %s", presign.JobID, status.JobID),
		), false, nil
	}
	if !status.Done() {
		return result, false, nil
	}

	artifact := uc.caller.Get(ctx, presign.GetURL, nil)
	if artifact.Succeeded() {
		return artifact, true, nil
	}
	slog.Warn("curation_fetch_failed", "job_id", presign.JobID, "status_code", artifact.StatusCode)
	return result, false, nil
}

func (uc *CurationUseCase) invalidateOnUnauthorized(result domain.CallResult) {
	if result.StatusCode == http.StatusUnauthorized {
		uc.tokens.Invalidate(domain.ServiceCuration)
	}
}
