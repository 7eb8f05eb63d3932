package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// StatusTransportError marks a call that never produced an HTTP status.
	StatusTransportError = -1
	// StatusJobMismatch marks a curation status response for another job.
	StatusJobMismatch = -2

	EmptyJSONObject = "{}"
)

type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeHTTPFailure
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeHTTPFailure:
		return "http_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// ObjectKeyMapping binds a caller source id to the object key the service
// assigned to the uploaded content.
type ObjectKeyMapping struct {
	SourceID  string `json:"sourceId"`
	ObjectKey string `json:"objectKey"`
}

// CallResult is the normalized outcome of one HTTP call, or the aggregated
// outcome of an orchestration.
type CallResult struct {
	StatusCode    int
	StatusMessage string
	Body          string
	Mapping       []ObjectKeyMapping
}

func NewCallResult(body string, statusCode int, statusMessage string) CallResult {
	if strings.TrimSpace(body) == "" {
		body = EmptyJSONObject
	}
	return CallResult{
		StatusCode:    statusCode,
		StatusMessage: statusMessage,
		Body:          body,
	}
}

func TransportFailure(err error) CallResult {
	msg := "transport error"
	if err != nil {
		msg = err.Error()
	}
	return NewCallResult(EmptyJSONObject, StatusTransportError, msg)
}

func IsHTTPSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func (r CallResult) Succeeded() bool { return IsHTTPSuccess(r.StatusCode) }

func (r CallResult) Failed() bool { return !r.Succeeded() }

// Conclusive reports a final 200 OK. A 202 Accepted from a job endpoint is
// still in progress and does not carry the full response.
func (r CallResult) Conclusive() bool { return r.StatusCode == 200 }

func (r CallResult) Outcome() Outcome {
	switch {
	case r.StatusCode < 0:
		return OutcomeTransportFailure
	case r.Succeeded():
		return OutcomeSucceeded
	default:
		return OutcomeHTTPFailure
	}
}

func (r CallResult) body() string {
	trimmed := strings.TrimSpace(r.Body)
	if trimmed == "" {
		return EmptyJSONObject
	}
	return trimmed
}

func (r CallResult) IsJSONObject() bool {
	return strings.HasPrefix(r.body(), "{")
}

func (r CallResult) IsJSONArray() bool {
	return strings.HasPrefix(r.body(), "[")
}

// Text returns an opaque string response without its surrounding quotes.
func (r CallResult) Text() string {
	out := strings.TrimPrefix(r.Body, `"`)
	return strings.TrimSuffix(out, `"`)
}

func (r CallResult) DecodeObject(v any) error {
	if !r.IsJSONObject() {
		return WrapError(ErrNotJSON, "decode object", fmt.Errorf("response is an opaque string, use Text()"))
	}
	if err := json.Unmarshal([]byte(r.body()), v); err != nil {
		return WrapError(ErrMalformedResponse, "decode object", err)
	}
	return nil
}

func (r CallResult) DecodeArray(v any) error {
	if !r.IsJSONArray() {
		return WrapError(ErrNotJSON, "decode array", fmt.Errorf("response is not a json array, use Text()"))
	}
	if err := json.Unmarshal([]byte(r.body()), v); err != nil {
		return WrapError(ErrMalformedResponse, "decode array", err)
	}
	return nil
}

func (r CallResult) WithMapping(mapping []ObjectKeyMapping) CallResult {
	r.Mapping = mapping
	return r
}

type callResultEnvelope struct {
	Response        json.RawMessage    `json:"response"`
	ResponseCode    int                `json:"responseCode"`
	ResponseMessage string             `json:"responseMessage"`
	Mapping         []ObjectKeyMapping `json:"objectKeysMapping"`
}

// MarshalJSON renders the result envelope returned to callers.
func (r CallResult) MarshalJSON() ([]byte, error) {
	raw := []byte(r.body())
	if !json.Valid(raw) {
		quoted, err := json.Marshal(r.Text())
		if err != nil {
			return nil, err
		}
		raw = quoted
	}
	return json.Marshal(callResultEnvelope{
		Response:        raw,
		ResponseCode:    r.StatusCode,
		ResponseMessage: r.StatusMessage,
		Mapping:         r.Mapping,
	})
}

func (r *CallResult) UnmarshalJSON(data []byte) error {
	var env callResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	body := EmptyJSONObject
	if trimmed := bytes.TrimSpace(env.Response); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		body = string(trimmed)
	}
	*r = CallResult{
		StatusCode:    env.ResponseCode,
		StatusMessage: env.ResponseMessage,
		Body:          body,
		Mapping:       env.Mapping,
	}
	return nil
}

// ParseCallResult rebuilds a result from its envelope JSON.
func ParseCallResult(envelope string) (CallResult, error) {
	var out CallResult
	if err := json.Unmarshal([]byte(envelope), &out); err != nil {
		return CallResult{}, WrapError(ErrInvalidInput, "parse call result", err)
	}
	return out, nil
}

func (r CallResult) String() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("status=%d message=%q", r.StatusCode, r.StatusMessage)
	}
	return string(raw)
}
