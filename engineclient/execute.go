package engineclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"

	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
)

// executeData is the data member of an execute envelope.
type executeData struct {
	Result        any     `json:"result"`
	ExecutionTime float64 `json:"execution_time"`
	Status        string  `json:"status"`
	FlowID        string  `json:"flow_id"`
}

// Execute submits doc for execution.
//
// A refused flow is returned as *flowengine.ValidationError. A run that
// the engine accepted but could not finish is a result with Success false
// and a nil error.
func (c *Client) Execute(ctx context.Context, doc *flowstore.FlowDocument) (*flowengine.ExecutionResult, error) {
	if doc == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "engineclient", "Execute", "nil document")
	}
	data, err := flowstore.Encode(doc)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, request{method: http.MethodPost, path: flowsPath + "/execute", endpoint: "execute", body: data})
	if err != nil {
		var se *StatusError
		if stderrors.As(err, &se) && (se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnprocessableEntity) {
			return nil, &flowengine.ValidationError{Message: se.Detail, Issues: se.Issues}
		}
		return nil, err
	}

	res, err := decodeExecute(body)
	if err != nil {
		return nil, err
	}
	if res.Pending && res.FlowID == "" {
		res.FlowID = doc.ID
	}
	c.logger.Info("Flow executed", "flow_id", firstNonEmpty(res.FlowID, doc.ID),
		"success", res.Success, "pending", res.Pending, "execution_time", res.ExecutionTime)
	return res, nil
}

func decodeExecute(body []byte) (*flowengine.ExecutionResult, error) {
	env, ok := parseEnvelope(body)
	if !ok {
		var result any
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "engineclient", "Execute", "response decode")
		}
		return &flowengine.ExecutionResult{Success: true, Data: result}, nil
	}

	if !*env.Success && !env.hasData() {
		return nil, &flowengine.ValidationError{Message: env.failureMessage(), Issues: parseIssues(env.Errors)}
	}

	res := &flowengine.ExecutionResult{Success: *env.Success, Message: env.failureMessage()}
	if !env.hasData() {
		return res, nil
	}

	var data executeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		// Data that is not an object is the result itself.
		var raw any
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "engineclient", "Execute", "response decode")
		}
		res.Data = raw
		return res, nil
	}
	res.Data = data.Result
	res.ExecutionTime = data.ExecutionTime
	res.FlowID = data.FlowID
	if res.Success && flowengine.ParseRunStatus(data.Status) == flowengine.RunRunning {
		res.Pending = true
	}
	return res, nil
}

// parseIssues reads an optional errors array of strings or
// {"code","message","node_id"} objects.
func parseIssues(raw json.RawMessage) []flowengine.Issue {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var issues []flowengine.Issue
	if err := json.Unmarshal(raw, &issues); err == nil {
		return issues
	}
	var msgs []string
	if err := json.Unmarshal(raw, &msgs); err == nil {
		issues = make([]flowengine.Issue, 0, len(msgs))
		for _, m := range msgs {
			issues = append(issues, flowengine.Issue{Message: m})
		}
		return issues
	}
	return nil
}

// Status reports the engine-side state of the run for flowID.
func (c *Client) Status(ctx context.Context, flowID string) (*flowengine.StatusReport, error) {
	if flowID == "" {
		return nil, errors.WrapInvalid(errors.ErrFlowNotFound, "engineclient", "Status", "empty flow id")
	}
	body, err := c.get(ctx, flowsPath+"/execute/status/"+url.PathEscape(flowID), "status")
	if err != nil {
		return nil, err
	}

	var data struct {
		Status     string `json:"status"`
		StatusText string `json:"status_text"`
		Result     any    `json:"result"`
		Message    string `json:"message"`
	}
	if err := decodeInto(body, "Status", &data); err != nil {
		return nil, err
	}
	report := &flowengine.StatusReport{
		Status:  flowengine.ParseRunStatus(data.Status),
		Message: firstNonEmpty(data.Message, data.StatusText),
		Data:    data.Result,
	}
	if env, ok := parseEnvelope(body); ok && report.Message == "" {
		report.Message = env.Message
	}
	return report, nil
}

// Terminate asks the engine to stop the run for flowID.
func (c *Client) Terminate(ctx context.Context, flowID string) error {
	if flowID == "" {
		return errors.WrapInvalid(errors.ErrFlowNotFound, "engineclient", "Terminate", "empty flow id")
	}
	body, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     flowsPath + "/execute/terminate",
		endpoint: "terminate",
		body:     map[string]string{"flow_id": flowID},
	})
	if err != nil {
		return err
	}
	if _, err := unwrap(body, "Terminate"); err != nil {
		return err
	}
	c.logger.Info("Termination requested", "flow_id", flowID)
	return nil
}

// HistoryEntry is one past run of a flow.
type HistoryEntry map[string]any

// History returns the recorded runs of flowID, as the engine reports them.
func (c *Client) History(ctx context.Context, flowID string) ([]HistoryEntry, error) {
	if flowID == "" {
		return nil, errors.WrapInvalid(errors.ErrFlowNotFound, "engineclient", "History", "empty flow id")
	}
	body, err := c.get(ctx, flowsPath+"/execution-history/"+url.PathEscape(flowID), "history")
	if err != nil {
		return nil, mapNotFound(err, flowID, "History")
	}
	var entries []HistoryEntry
	if err := decodeInto(body, "History", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
