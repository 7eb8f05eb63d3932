package domain

import (
	"fmt"
	"time"
)

// Service identifies one of the remote downstream services. Each one has its
// own credentials and its own cached token.
type Service string

const (
	ServiceEnrichment Service = "enrichment"
	ServiceCuration   Service = "curation"
)

func (s Service) Validate() error {
	switch s {
	case ServiceEnrichment, ServiceCuration:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedService, string(s))
	}
}

// TokenSafetyMargin is subtracted from the lifetime the server declares.
const TokenSafetyMargin = 15 * time.Second

type BearerToken struct {
	Value     string
	ExpiresAt time.Time
}

func NewBearerToken(value string, expiresIn time.Duration, now time.Time) BearerToken {
	return BearerToken{
		Value:     value,
		ExpiresAt: now.Add(expiresIn - TokenSafetyMargin),
	}
}

func (t BearerToken) Usable(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

func (c ClientCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
