package engineclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/flowcanvas/errors"
)

// envelope is the {"success", "data", "message"} wrapper some endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Detail  string          `json:"detail"`
	Errors  json.RawMessage `json:"errors"`
}

// failureMessage picks the most specific text the engine gave.
func (e *envelope) failureMessage() string {
	return firstNonEmpty(e.Message, e.Error, e.Detail)
}

// hasData reports whether data is present and not null.
func (e *envelope) hasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseEnvelope reports whether body is an envelope. Objects with a
// boolean "success" key count as enveloped; anything else is bare.
func parseEnvelope(body []byte) (*envelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, false
	}
	if _, ok := keys["success"]; !ok {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Success == nil {
		return nil, false
	}
	return &env, true
}

// unwrap returns the payload of body, which may be enveloped or bare. An
// envelope reporting failure becomes an invalid error carrying the
// engine's message.
func unwrap(body []byte, method string) (json.RawMessage, error) {
	env, ok := parseEnvelope(body)
	if !ok {
		return body, nil
	}
	if !*env.Success {
		msg := env.failureMessage()
		if msg == "" {
			msg = "engine reported failure"
		}
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidData, msg), "engineclient", method, "engine call")
	}
	if env.hasData() {
		return env.Data, nil
	}
	// Success envelope without data carries its fields at the top level.
	return body, nil
}

// decodeInto unwraps body and decodes the payload into v.
func decodeInto(body []byte, method string, v any) error {
	payload, err := unwrap(body, method)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "engineclient", method, "response decode")
	}
	return nil
}
