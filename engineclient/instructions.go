package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
)

// Instructions fetches the instruction catalogue. The engine answers with
// categories of items; a flat list of instructions is accepted too.
func (c *Client) Instructions(ctx context.Context) ([]catalogue.Instruction, error) {
	body, err := c.get(ctx, "api/instructions", "instructions")
	if err != nil {
		return nil, err
	}
	payload, err := unwrap(body, "Instructions")
	if err != nil {
		return nil, err
	}

	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []catalogue.Instruction
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "engineclient", "Instructions", "response decode")
		}
		return items, nil
	}

	var doc catalogue.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "engineclient", "Instructions", "response decode")
	}
	return doc.Flatten(), nil
}

// CatalogueSource adapts the client's instruction endpoint to
// catalogue.Source.
func (c *Client) CatalogueSource() catalogue.Source {
	return catalogue.SourceFunc(c.Instructions)
}
