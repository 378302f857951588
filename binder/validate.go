package binder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
)

// Field error codes
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeMin      = "min"
	CodeMax      = "max"
	CodePattern  = "pattern"
)

// FieldError is a client-side validation failure scoped to one parameter.
type FieldError struct {
	NodeID  string `json:"node_id,omitempty"`
	Field   string `json:"field"`
	Label   string `json:"label"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldErrors collects validation failures. A non-empty FieldErrors is an
// error that matches errors.ErrClientValidation.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(fe))
	for i, e := range fe {
		msgs[i] = e.Message
	}
	return fmt.Sprintf("%s: %s", errors.ErrClientValidation, strings.Join(msgs, "; "))
}

// Is matches errors.ErrClientValidation.
func (fe FieldErrors) Is(target error) bool {
	return target == errors.ErrClientValidation
}

// Err returns fe as an error, or nil when empty.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ByField indexes the errors by parameter name.
func (fe FieldErrors) ByField() map[string]FieldError {
	out := make(map[string]FieldError, len(fe))
	for _, e := range fe {
		out[e.Field] = e
	}
	return out
}

// Validate checks every field against its schema and records the message on
// the field. It is advisory; the engine validates again at execution time.
func (f *FormModel) Validate() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out FieldErrors
	for i := range f.fields {
		fld := &f.fields[i]
		fld.Error = ""
		if fe, bad := f.check(fld.Spec, fld.Value); bad {
			fe.NodeID = f.nodeID
			fld.Error = fe.Message
			out = append(out, fe)
		}
	}
	return out
}

// Validate is shorthand for form.Validate.
func Validate(form *FormModel) FieldErrors {
	return form.Validate()
}

func (f *FormModel) check(spec catalogue.ParamSpec, value any) (FieldError, bool) {
	label := spec.DisplayLabel()
	fail := func(code, msg string) (FieldError, bool) {
		return FieldError{Field: spec.Name, Label: label, Code: code, Message: msg}, true
	}

	if isEmpty(value) {
		if spec.Required {
			return fail(CodeRequired, label+" is required")
		}
		return FieldError{}, false
	}

	v := spec.Validation
	switch {
	case spec.Type.Numeric():
		n, ok := toFloat(value)
		if !ok {
			return fail(CodeType, label+" must be a number")
		}
		if v != nil && v.Min != nil && n < *v.Min {
			return fail(CodeMin, fmt.Sprintf("%s must be at least %s", label, formatNumber(*v.Min)))
		}
		if v != nil && v.Max != nil && n > *v.Max {
			return fail(CodeMax, fmt.Sprintf("%s must be at most %s", label, formatNumber(*v.Max)))
		}
	case spec.Type.Textual():
		if v == nil || v.Pattern == "" {
			break
		}
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			f.logger.Warn("Unusable validation pattern", "param", spec.Name, "pattern", v.Pattern, "error", err)
			break
		}
		if !re.MatchString(fmt.Sprint(value)) {
			msg := v.Message
			if msg == "" {
				msg = label + " format is invalid"
			}
			return fail(CodePattern, msg)
		}
	}
	return FieldError{}, false
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
