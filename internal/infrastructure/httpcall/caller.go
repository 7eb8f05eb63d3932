package httpcall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/resilience"
)

const discardLimit = 64 << 10

// Recorder observes every outbound call.
type Recorder interface {
	ObserveOutbound(method, host string, statusCode int, seconds float64)
}

// Caller executes single HTTP calls and normalizes them into
// domain.CallResult values. Transport failures never surface as errors.
type Caller struct {
	httpClient *http.Client
	executor   *resilience.Executor
	recorder   Recorder
}

func New(timeout time.Duration, executor *resilience.Executor, recorder Recorder) *Caller {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Caller{
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		recorder:   recorder,
	}
}

// Get retries transport failures and gateway statuses through the executor.
func (c *Caller) Get(ctx context.Context, rawURL string, headers map[string]string) domain.CallResult {
	if c.executor == nil {
		return c.do(ctx, http.MethodGet, rawURL, headers, nil, 0)
	}

	var result domain.CallResult
	err := c.executor.Execute(ctx, "GET "+hostOf(rawURL), func(ctx context.Context) error {
		result = c.do(ctx, http.MethodGet, rawURL, headers, nil, 0)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case result.StatusCode == domain.StatusTransportError:
			return errors.New(result.StatusMessage)
		case resilience.RetryableStatus(result.StatusCode):
			return &resilience.StatusError{StatusCode: result.StatusCode}
		}
		return nil
	}, resilience.ClassifyHTTP)
	if err != nil && resilience.IsCircuitOpen(err) {
		return domain.TransportFailure(fmt.Errorf("GET %s: %w", hostOf(rawURL), err))
	}
	return result
}

func (c *Caller) Post(ctx context.Context, rawURL string, headers map[string]string, body []byte) domain.CallResult {
	return c.do(ctx, http.MethodPost, rawURL, headers, bytes.NewReader(body), int64(len(body)))
}

func (c *Caller) Put(ctx context.Context, rawURL string, headers map[string]string, body []byte) domain.CallResult {
	return c.do(ctx, http.MethodPut, rawURL, headers, bytes.NewReader(body), int64(len(body)))
}

// UploadFile streams the file at path as a PUT body with its exact length.
// The error return is reserved for a path that is not a readable regular
// file.
func (c *Caller) UploadFile(ctx context.Context, path, rawURL, contentType string) (domain.CallResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload file", err)
	}
	if info.IsDir() {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload file", fmt.Errorf("%s is a directory", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.CallResult{}, domain.WrapError(domain.ErrInvalidInput, "upload file", err)
	}
	defer f.Close()

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}
	headers := map[string]string{"Content-Type": contentType}
	return c.do(ctx, http.MethodPut, rawURL, headers, body, info.Size()), nil
}

func (c *Caller) do(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader, contentLength int64) domain.CallResult {
	started := time.Now()
	result := c.roundTrip(ctx, method, rawURL, headers, body, contentLength)
	if c.recorder != nil {
		c.recorder.ObserveOutbound(method, hostOf(rawURL), result.StatusCode, time.Since(started).Seconds())
	}
	return result
}

func (c *Caller) roundTrip(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader, contentLength int64) domain.CallResult {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return domain.TransportFailure(fmt.Errorf("create %s request: %w", method, err))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil && body != http.NoBody {
		req.ContentLength = contentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransportFailure(err)
	}
	defer resp.Body.Close()

	message := statusMessage(resp)
	if !domain.IsHTTPSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, discardLimit))
		return domain.NewCallResult(domain.EmptyJSONObject, resp.StatusCode, message)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TransportFailure(fmt.Errorf("read %s response: %w", method, err))
	}
	return domain.NewCallResult(string(data), resp.StatusCode, message)
}

func statusMessage(resp *http.Response) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg == "" {
		return http.StatusText(resp.StatusCode)
	}
	return msg
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
