package engineclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
)

const flowsPath = "api/data-process"

// Save stores doc on the engine. The engine assigns an id to new flows;
// the id is written back into doc.
func (c *Client) Save(ctx context.Context, doc *flowstore.FlowDocument) (string, error) {
	if doc == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "engineclient", "Save", "nil document")
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	data, err := flowstore.Encode(doc)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, request{method: http.MethodPost, path: flowsPath + "/save", endpoint: "save", body: data})
	if err != nil {
		return "", err
	}

	var resp struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := decodeInto(body, "Save", &resp); err != nil {
		return "", err
	}
	id := firstNonEmpty(resp.ID, doc.ID)
	if id == "" {
		return "", errors.WrapInvalid(fmt.Errorf("%w: engine returned no flow id", errors.ErrInvalidData), "engineclient", "Save", "response check")
	}
	doc.ID = id
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = flowstore.SchemaVersion
	}
	c.logger.Info("Flow saved", "flow_id", id, "name", doc.Name, "nodes", len(doc.Nodes))
	return id, nil
}

// Load fetches a flow. Documents in older layouts are migrated.
func (c *Client) Load(ctx context.Context, id string) (*flowstore.FlowDocument, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrFlowNotFound, "engineclient", "Load", "empty id")
	}
	body, err := c.get(ctx, flowsPath+"/"+url.PathEscape(id), "load")
	if err != nil {
		return nil, mapNotFound(err, id, "Load")
	}
	payload, err := unwrap(body, "Load")
	if err != nil {
		return nil, err
	}
	doc, err := flowstore.Decode(payload)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

// flowListing is the subset of a listed flow the client reads. The engine
// lists whole flows, so node counts come from the nodes array.
type flowListing struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     int64             `json:"version"`
	Nodes       []json.RawMessage `json:"nodes"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
	CreatedAtS  string            `json:"created_at"`
	UpdatedAtS  string            `json:"updated_at"`
}

// List returns summaries of the flows stored on the engine, most recently
// updated first.
func (c *Client) List(ctx context.Context) ([]flowstore.Summary, error) {
	body, err := c.get(ctx, flowsPath+"/list", "list")
	if err != nil {
		return nil, err
	}
	var items []flowListing
	if err := decodeInto(body, "List", &items); err != nil {
		return nil, err
	}

	out := make([]flowstore.Summary, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		out = append(out, flowstore.Summary{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			NodeCount:   len(it.Nodes),
			Version:     it.Version,
			CreatedAt:   parseTime(firstNonEmpty(it.CreatedAt, it.CreatedAtS)),
			UpdatedAt:   parseTime(firstNonEmpty(it.UpdatedAt, it.UpdatedAtS)),
		})
	}
	flowstore.SortSummaries(out)
	return out, nil
}

// Delete removes a flow from the engine.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrFlowNotFound, "engineclient", "Delete", "empty id")
	}
	_, err := c.do(ctx, request{method: http.MethodDelete, path: flowsPath + "/flows/" + url.PathEscape(id), endpoint: "delete"})
	if err != nil {
		return mapNotFound(err, id, "Delete")
	}
	c.logger.Info("Flow deleted", "flow_id", id)
	return nil
}

func mapNotFound(err error, id, method string) error {
	var se *StatusError
	if stderrors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowNotFound, id), "engineclient", method, "flow lookup")
	}
	return err
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts RFC 3339 and the naive timestamps the engine writes.
// Naive times are taken as UTC. Unparseable values give the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
