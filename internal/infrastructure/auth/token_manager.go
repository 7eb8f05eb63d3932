package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
)

const (
	tokenPath  = "/connect/token"
	grantType  = "client_credentials"
	tokenScope = "environment_authorization"
)

// Recorder observes token refreshes.
type Recorder interface {
	ObserveTokenRefresh(service, outcome string)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// slot holds the cached token of one service. Its mutex serializes refreshes
// so concurrent callers never fetch twice.
type slot struct {
	mu          sync.Mutex
	credentials domain.ClientCredentials
	token       domain.BearerToken
}

// TokenManager obtains client-credentials tokens from the shared auth
// endpoint and caches one per service until it expires.
type TokenManager struct {
	endpoint string
	caller   ports.HTTPCaller
	recorder Recorder
	slots    map[domain.Service]*slot
	now      func() time.Time
}

func NewTokenManager(
	endpoint string,
	credentials map[domain.Service]domain.ClientCredentials,
	caller ports.HTTPCaller,
	recorder Recorder,
) *TokenManager {
	slots := map[domain.Service]*slot{
		domain.ServiceEnrichment: {credentials: credentials[domain.ServiceEnrichment]},
		domain.ServiceCuration:   {credentials: credentials[domain.ServiceCuration]},
	}
	return &TokenManager{
		endpoint: strings.TrimRight(endpoint, "/"),
		caller:   caller,
		recorder: recorder,
		slots:    slots,
		now:      time.Now,
	}
}

// Token returns the cached token of service, fetching a new one when there is
// none or it has expired.
func (m *TokenManager) Token(ctx context.Context, service domain.Service) (string, error) {
	s, err := m.slot(service)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Usable(m.now()) {
		return s.token.Value, nil
	}

	token, err := m.fetch(ctx, service, s.credentials)
	if err != nil {
		s.token = domain.BearerToken{}
		m.observe(service, "failure")
		return "", err
	}
	s.token = token
	m.observe(service, "success")
	return token.Value, nil
}

// Invalidate drops the cached token of service.
func (m *TokenManager) Invalidate(service domain.Service) {
	s, err := m.slot(service)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.token = domain.BearerToken{}
	s.mu.Unlock()
}

func (m *TokenManager) slot(service domain.Service) (*slot, error) {
	if err := service.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "token", err)
	}
	return m.slots[service], nil
}

func (m *TokenManager) fetch(ctx context.Context, service domain.Service, credentials domain.ClientCredentials) (domain.BearerToken, error) {
	op := fmt.Sprintf("fetch %s token", service)
	if !credentials.Complete() {
		slog.Error("auth_credentials_missing", "auth_service", string(service))
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, errors.New("client credentials are not configured"))
	}
	if m.endpoint == "" {
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, errors.New("auth endpoint is not configured"))
	}

	form := url.Values{}
	form.Set("client_id", credentials.ClientID)
	form.Set("client_secret", credentials.ClientSecret)
	form.Set("grant_type", grantType)
	form.Set("scope", tokenScope)

	headers := map[string]string{
		"Accept":       "*/*",
		"Content-Type": "application/x-www-form-urlencoded",
	}
	requestedAt := m.now()
	result := m.caller.Post(ctx, m.endpoint+tokenPath, headers, []byte(form.Encode()))
	if result.Failed() {
		slog.Error("auth_token_request_failed",
			"auth_service", string(service),
			"status_code", result.StatusCode,
			"status_message", result.StatusMessage,
		)
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, fmt.Errorf("token endpoint returned %d %s", result.StatusCode, result.StatusMessage))
	}

	var response tokenResponse
	if err := result.DecodeObject(&response); err != nil {
		slog.Error("auth_token_response_invalid", "auth_service", string(service), "error", err.Error())
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, err)
	}
	if response.Error != "" {
		slog.Error("auth_token_rejected",
			"auth_service", string(service),
			"error", response.Error,
			"error_description", response.ErrorDescription,
		)
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, fmt.Errorf("%s: %s", response.Error, response.ErrorDescription))
	}
	if response.AccessToken == "" {
		return domain.BearerToken{}, domain.WrapError(domain.ErrUnauthorized, op, domain.WrapError(domain.ErrMalformedResponse, op, errors.New("access_token is missing")))
	}

	lifetime := time.Duration(response.ExpiresIn) * time.Second
	if lifetime <= domain.TokenSafetyMargin {
		slog.Warn("auth_token_short_lived", "auth_service", string(service), "expires_in", response.ExpiresIn)
	}
	return domain.NewBearerToken(response.AccessToken, lifetime, requestedAt), nil
}

func (m *TokenManager) observe(service domain.Service, outcome string) {
	if m.recorder != nil {
		m.recorder.ObserveTokenRefresh(string(service), outcome)
	}
}
