package flowengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
)

// Executor runs flow documents on the remote engine.
type Executor interface {
	// Execute submits doc. A nil error means the engine accepted the
	// request; the result says whether the run finished or is still
	// pending. Rejections the engine reports as validation problems are
	// returned as *ValidationError.
	Execute(ctx context.Context, doc *flowstore.FlowDocument) (*ExecutionResult, error)

	// Status reports the progress of the run for flowID.
	Status(ctx context.Context, flowID string) (*StatusReport, error)

	// Terminate asks the engine to stop the run for flowID. It does not
	// wait for the run to stop.
	Terminate(ctx context.Context, flowID string) error
}

// Engine is the full remote engine: flow storage plus execution.
type Engine interface {
	flowstore.Store
	Executor
}

// ExecutionResult is the engine's answer to Execute.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`

	// ExecutionTime is the engine-reported run time in seconds.
	ExecutionTime float64 `json:"execution_time,omitempty"`

	// Pending is set when the engine accepted the run but has not finished
	// it. Progress is then followed through Status.
	Pending bool `json:"pending,omitempty"`

	// FlowID identifies the run for Status and Terminate when the submitted
	// document had no id.
	FlowID string `json:"flow_id,omitempty"`
}

// RunStatus is the engine-side state of a run.
type RunStatus string

// Engine run states
const (
	RunIdle       RunStatus = "idle"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunTerminated RunStatus = "terminated"
)

// ParseRunStatus maps engine status strings, including the synonyms the
// engine has used over time, onto RunStatus.
func ParseRunStatus(s string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "executing", "pending", "started":
		return RunRunning
	case "completed", "success", "succeeded", "finished":
		return RunCompleted
	case "failed", "error", "failure":
		return RunFailed
	case "terminated", "stopped", "cancelled", "canceled":
		return RunTerminated
	default:
		return RunIdle
	}
}

// Terminal reports whether s ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunTerminated
}

// StatusReport is the engine's answer to Status.
type StatusReport struct {
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// Issue is one server-side validation finding. Issues are not tied to
// form fields and may reference nodes, edges or the flow as a whole.
type Issue struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

// ValidationError is returned when the engine refuses a flow as invalid.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		if e.Message != "" {
			return e.Message
		}
		return errors.ErrServerValidation.Error()
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(msgs, "; "))
	}
	return strings.Join(msgs, "; ")
}

// Is matches errors.ErrServerValidation.
func (e *ValidationError) Is(target error) bool {
	return target == errors.ErrServerValidation
}
