package flowstore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/flowcanvas/errors"
)

// documentSchema accepts both the canonical schema and version 0
// documents, which lack schemaVersion and may carry nulls.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": {"type": ["string", "null"]},
    "name": {"type": ["string", "null"]},
    "description": {"type": ["string", "null"]},
    "schemaVersion": {"type": "integer", "minimum": 0},
    "version": {"type": "integer", "minimum": 0},
    "createdAt": {"type": ["string", "null"]},
    "updatedAt": {"type": ["string", "null"]},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "instructionId", "x", "y"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "instructionId": {"type": "string"},
          "name": {"type": ["string", "null"]},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "params": {"type": ["object", "null"]},
          "description": {"type": ["string", "null"]}
        }
      }
    },
    "edges": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id", "source", "target"],
        "properties": {
          "id": {"type": "string"},
          "source": {"type": "string"},
          "target": {"type": "string"},
          "sourcePort": {"type": ["string", "null"]},
          "targetPort": {"type": ["string", "null"]},
          "label": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks raw JSON against the document schema before it is
// decoded. The returned error lists every violation.
func ValidateDocument(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "ValidateDocument", "compile schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"flowstore", "ValidateDocument", "parse document")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
		"flowstore", "ValidateDocument", "schema validation")
}
