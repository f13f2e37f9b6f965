// internal/schema/envelope.go
// Package schema validates the shape of inbound request envelopes before
// they reach the router. Validation is structural only: request_type
// membership and criteria semantics are the router's and compiler's
// concern, so their failures map to the right error codes.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is the JSON Schema for the request envelope. The three
// correlation fields are required; payload fields are typed but optional
// because they vary by request type.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["request_id", "request_type", "device_key"],
	"properties": {
		"request_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"request_type": {"type": "string", "minLength": 1},
		"device_key": {
			"type": "string",
			"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
		},
		"criteria": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["field", "op"],
				"properties": {
					"field": {"type": "string"},
					"op": {"type": "string"}
				}
			}
		},
		"sort": {"type": "string"},
		"seed": {"type": "integer", "minimum": 0},
		"limit": {"type": "integer"},
		"cursor": {"type": "string"},
		"content_id": {"type": "integer"},
		"intent": {"type": "string"},
		"emoji": {"type": "string"}
	}
}`

// Validator checks request envelopes against the wire schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the envelope schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks raw envelope bytes against the schema. It returns a
// single client-safe message describing the first violations, or nil when
// the envelope is well-formed.
func (v *Validator) Validate(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("envelope is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for i, desc := range result.Errors() {
		if i == 3 {
			messages = append(messages, "...")
			break
		}
		messages = append(messages, desc.String())
	}
	return fmt.Errorf("invalid envelope: %s", strings.Join(messages, "; "))
}
