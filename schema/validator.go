// Package payloadschema validates incoming submission payloads against the
// embedded JSON Schema before anything touches the pipeline.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed submission.schema.json
var submissionSchemaJSON string

// Submission is the decoded v1 submission payload.
type Submission struct {
	PayloadVersion string         `json:"payload_version"`
	CompanyID      string         `json:"company_id"`
	SourceType     string         `json:"source_type"`
	Source         string         `json:"source"`
	Title          string         `json:"title,omitempty"`
	BodyText       string         `json:"body_text,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Prefilled      map[string]any `json:"prefilled,omitempty"`
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSubmissionPayload checks the raw payload against the schema and
// the semantic rules the schema cannot express.
func ValidateSubmissionPayload(payload json.RawMessage) (*Submission, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var sub Submission
	if err := json.Unmarshal(normalized, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&sub); err != nil {
		return nil, err
	}

	return &sub, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("submission.schema.json", strings.NewReader(submissionSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("submission.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(sub *Submission) error {
	if sub == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(sub.CompanyID) == "" {
		return fmt.Errorf("company_id must not be empty")
	}
	if strings.TrimSpace(sub.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}

	// An email must carry its dedup key; the other shapes must carry
	// something to ingest.
	switch sub.SourceType {
	case "email":
		if strings.TrimSpace(sub.MessageID) == "" {
			return fmt.Errorf("message_id is required for email submissions")
		}
	case "periodic_feed":
		if strings.TrimSpace(sub.Title) == "" {
			return fmt.Errorf("title is required for periodic_feed submissions")
		}
	}
	if strings.TrimSpace(sub.BodyText) == "" && strings.TrimSpace(sub.Title) == "" {
		return fmt.Errorf("one of body_text or title must be present")
	}

	return nil
}
