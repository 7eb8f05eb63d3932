package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/config"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

func TestEnrichMapsDomainInvalidInputTo400(t *testing.T) {
	deps := newTestDeps()
	deps.enricher.err = domain.WrapError(domain.ErrInvalidInput, "enrichment request", errors.New("at least one action is required"))
	handler := deps.handler(config.Config{})

	req := multipartRequest(t, "/v1/enrich", nil, formFile{name: "one.txt", body: "hello"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAuthFailureMapsToBadGateway(t *testing.T) {
	deps := newTestDeps()
	deps.enricher.err = domain.WrapError(domain.ErrUnauthorized, "token", errors.New("invalid_client"))
	handler := deps.handler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/enrich/results/p-1", nil))

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestGetJobByIDReturns404ForNotFound(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrJobNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrMalformedResponse, "op", errors.New("x")), http.StatusBadGateway},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUploadTooLargeIsRejected(t *testing.T) {
	deps := newTestDeps()
	handler := deps.handler(config.Config{APIMaxUploadMB: 1})

	req := multipartRequest(t, "/v1/upload", map[string]string{"presignedUrl": "https://x"},
		formFile{name: "big.bin", body: strings.Repeat("a", 2<<20)})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge && res.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized upload to be rejected, got %d", res.Code)
	}
	if deps.enricher.presignedURL != "" {
		t.Fatalf("enricher should not be called")
	}
}
