package domain

import (
	"encoding/json"
	"testing"
)

func TestBuildSubmissionDefaults(t *testing.T) {
	req := EnrichmentRequest{Actions: []string{"image-description"}}
	raw, err := req.BuildSubmission(nil)
	if err != nil {
		t.Fatalf("BuildSubmission() error = %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"objectKeys", "classes", "kSimilarMetadata"} {
		if string(payload[key]) != "[]" {
			t.Fatalf("expected %s=[], got %s", key, payload[key])
		}
	}
	if string(payload["actions"]) != `["image-description"]` {
		t.Fatalf("unexpected actions %s", payload["actions"])
	}
}

func TestBuildSubmissionMergesExtraPayload(t *testing.T) {
	req := EnrichmentRequest{
		Actions:         []string{"text-classification"},
		Classes:         []string{"cat", "dog"},
		SimilarMetadata: json.RawMessage(`[{"k":"v"}]`),
		ExtraPayload:    json.RawMessage(`{"maxWordCount": 50, "classes": ["override"]}`),
	}
	raw, err := req.BuildSubmission([]string{"k1", "k2"})
	if err != nil {
		t.Fatalf("BuildSubmission() error = %v", err)
	}
	var payload struct {
		ObjectKeys       []string         `json:"objectKeys"`
		Classes          []string         `json:"classes"`
		KSimilarMetadata []map[string]any `json:"kSimilarMetadata"`
		MaxWordCount     int              `json:"maxWordCount"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.ObjectKeys) != 2 {
		t.Fatalf("expected 2 object keys, got %v", payload.ObjectKeys)
	}
	if len(payload.Classes) != 1 || payload.Classes[0] != "override" {
		t.Fatalf("expected caller classes to shadow built-in, got %v", payload.Classes)
	}
	if payload.MaxWordCount != 50 {
		t.Fatalf("expected merged maxWordCount, got %d", payload.MaxWordCount)
	}
	if len(payload.KSimilarMetadata) != 1 {
		t.Fatalf("expected passthrough similar metadata, got %v", payload.KSimilarMetadata)
	}
}

func TestEnrichmentRequestValidate(t *testing.T) {
	if err := (EnrichmentRequest{}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without actions, got %v", err)
	}
	bad := EnrichmentRequest{Actions: []string{"a"}, SimilarMetadata: json.RawMessage(`{"x":1}`)}
	if err := bad.Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-array metadata, got %v", err)
	}
	bad = EnrichmentRequest{Actions: []string{"a"}, ExtraPayload: json.RawMessage(`[1]`)}
	if err := bad.Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-object extra payload, got %v", err)
	}
}

func TestCorrelateResultsSkipsUnknownKeys(t *testing.T) {
	a, _ := NewContentItem("a", &sourceFake{name: "a"}, "text/plain")
	b, _ := NewContentItem("b", &sourceFake{name: "b"}, "text/plain")
	a.MarkUploaded("key-a")
	b.MarkFailed("nope")

	mapping := CorrelateResults(ProcessResults{Results: []ProcessResultEntry{
		{ObjectKey: "key-a"},
		{ObjectKey: "key-unknown"},
	}}, []*ContentItem{a, b})
	if len(mapping) != 1 || mapping[0].SourceID != "a" {
		t.Fatalf("unexpected mapping %+v", mapping)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,,c ")
	if len(got) != 3 || got[1] != "b" {
		t.Fatalf("unexpected split %v", got)
	}
	if SplitList("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
