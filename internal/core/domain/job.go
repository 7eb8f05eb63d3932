package domain

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobItem is one stored input of an asynchronous enrichment job.
type JobItem struct {
	SourceID   string `json:"source_id"`
	Filename   string `json:"filename"`
	MediaType  string `json:"media_type"`
	StorageKey string `json:"storage_key"`
}

// EnrichmentJob is the ledger record of an enrichment queued for the worker.
type EnrichmentJob struct {
	ID              string          `json:"id"`
	Status          JobStatus       `json:"status"`
	Actions         []string        `json:"actions"`
	Classes         []string        `json:"classes"`
	SimilarMetadata json.RawMessage `json:"similar_metadata,omitempty"`
	ExtraPayload    json.RawMessage `json:"extra_payload,omitempty"`
	Items           []JobItem       `json:"items"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (j *EnrichmentJob) Request() EnrichmentRequest {
	return EnrichmentRequest{
		Actions:         j.Actions,
		Classes:         j.Classes,
		SimilarMetadata: j.SimilarMetadata,
		ExtraPayload:    j.ExtraPayload,
	}
}
