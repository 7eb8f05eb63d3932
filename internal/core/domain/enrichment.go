package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EnrichmentRequest carries what the caller asks the service to do with the
// uploaded content.
type EnrichmentRequest struct {
	Actions []string
	Classes []string
	// SimilarMetadata is a JSON array passed through as kSimilarMetadata.
	SimilarMetadata json.RawMessage
	// ExtraPayload is a JSON object whose top-level keys are merged into the
	// submission, shadowing the built-in ones.
	ExtraPayload json.RawMessage
}

func (r EnrichmentRequest) Validate() error {
	if len(r.Actions) == 0 {
		return WrapError(ErrInvalidInput, "enrichment request", errors.New("at least one action is required"))
	}
	if raw := trimRaw(r.SimilarMetadata); len(raw) > 0 {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return WrapError(ErrInvalidInput, "enrichment request", fmt.Errorf("similar metadata must be a json array: %w", err))
		}
	}
	if raw := trimRaw(r.ExtraPayload); len(raw) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return WrapError(ErrInvalidInput, "enrichment request", fmt.Errorf("extra payload must be a json object: %w", err))
		}
	}
	return nil
}

// BuildSubmission renders the job submission payload for the given object
// keys.
func (r EnrichmentRequest) BuildSubmission(objectKeys []string) ([]byte, error) {
	payload := map[string]any{
		"objectKeys":       nonNil(objectKeys),
		"actions":          nonNil(r.Actions),
		"classes":          nonNil(r.Classes),
		"kSimilarMetadata": json.RawMessage("[]"),
	}
	if raw := trimRaw(r.SimilarMetadata); len(raw) > 0 {
		payload["kSimilarMetadata"] = json.RawMessage(raw)
	}
	if raw := trimRaw(r.ExtraPayload); len(raw) > 0 {
		var extra map[string]json.RawMessage
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, WrapError(ErrInvalidInput, "build submission", err)
		}
		for key, value := range extra {
			payload[key] = value
		}
	}
	return json.Marshal(payload)
}

// SplitList parses a comma separated parameter, dropping blanks.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func trimRaw(raw json.RawMessage) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return []byte(trimmed)
}

type PresignedUpload struct {
	PresignedURL string `json:"presignedUrl"`
	ObjectKey    string `json:"objectKey"`
}

type ProcessSubmission struct {
	ProcessingID string `json:"processingId"`
}

type ProcessResultEntry struct {
	ObjectKey string `json:"objectKey"`
}

type ProcessResults struct {
	Status  string               `json:"status"`
	Results []ProcessResultEntry `json:"results"`
}

// CorrelateResults maps every result entry back to the item whose object key
// matches. Entries with no matching item are skipped.
func CorrelateResults(results ProcessResults, items []*ContentItem) []ObjectKeyMapping {
	byKey := make(map[string]*ContentItem, len(items))
	for _, item := range items {
		if item.Succeeded() {
			if _, seen := byKey[item.ObjectKey]; !seen {
				byKey[item.ObjectKey] = item
			}
		}
	}
	mapping := make([]ObjectKeyMapping, 0, len(results.Results))
	for _, entry := range results.Results {
		item, ok := byKey[entry.ObjectKey]
		if !ok {
			continue
		}
		mapping = append(mapping, ObjectKeyMapping{SourceID: item.SourceID, ObjectKey: entry.ObjectKey})
	}
	return mapping
}
