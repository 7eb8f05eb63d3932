package domain

import (
	"fmt"
	"strings"
)

type JSONSchema string

const (
	JSONSchemaMDAST    JSONSchema = "MDAST"
	JSONSchemaFull     JSONSchema = "FULL"
	JSONSchemaPipeline JSONSchema = "PIPELINE"
)

type Normalization struct {
	Quotations bool `json:"quotations"`
}

// CurationOptions is the body of the curation presign request.
type CurationOptions struct {
	Normalization Normalization `json:"normalization"`
	Chunking      bool          `json:"chunking"`
	Embedding     bool          `json:"embedding"`
	JSONSchema    JSONSchema    `json:"json_schema"`
}

func DefaultCurationOptions() CurationOptions {
	return CurationOptions{
		Normalization: Normalization{Quotations: true},
		Chunking:      true,
		Embedding:     true,
		JSONSchema:    JSONSchemaPipeline,
	}
}

func (o CurationOptions) Validate() error {
	switch JSONSchema(strings.ToUpper(string(o.JSONSchema))) {
	case JSONSchemaMDAST, JSONSchemaFull, JSONSchemaPipeline:
		return nil
	default:
		return WrapError(ErrInvalidInput, "curation options", fmt.Errorf("json_schema must be MDAST, FULL or PIPELINE, got %q", o.JSONSchema))
	}
}

type CurationPresign struct {
	JobID  string `json:"job_id"`
	PutURL string `json:"put_url"`
	GetURL string `json:"get_url"`
}

type CurationStatus struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

func (s CurationStatus) Done() bool {
	return strings.EqualFold(s.Status, "done")
}
