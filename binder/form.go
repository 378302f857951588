package binder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
)

// Legacy parameter keys that older flows used for a path-reference value.
// They are consulted in this order before the schema default.
var pathReferenceFallbacks = []string{"sourceDataPath", "sheetPath"}

// Writer persists a single parameter on the owning node. *flowgraph.Graph
// satisfies it.
type Writer interface {
	SetParam(nodeID, name string, value any) error
}

// Field is one bound parameter.
type Field struct {
	Spec  catalogue.ParamSpec
	Value any
	Error string
}

// FormModel is the bound, editable view of a node's parameters. Values held
// by the form are copies; the node in the graph stays the single owner.
type FormModel struct {
	mu            sync.RWMutex
	nodeID        string
	instructionID string
	fields        []Field
	index         map[string]int
	writer        Writer
	observers     []func(name string, value any)
	logger        *slog.Logger
}

// Option configures Bind.
type Option func(*FormModel)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FormModel) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// OnChange registers fn to run after every successful UpdateValue.
func OnChange(fn func(name string, value any)) Option {
	return func(f *FormModel) {
		if fn != nil {
			f.observers = append(f.observers, fn)
		}
	}
}

// Bind resolves every parameter of inst against the node's stored values.
// Precedence is stored value, then schema default, then the type's zero
// value. Stored keys the schema does not declare are left on the node and
// ignored here.
func Bind(node flowgraph.Node, inst catalogue.Instruction, writer Writer, opts ...Option) *FormModel {
	f := &FormModel{
		nodeID:        node.ID,
		instructionID: inst.ID,
		fields:        make([]Field, 0, len(inst.Params)),
		index:         make(map[string]int, len(inst.Params)),
		writer:        writer,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, spec := range inst.Params {
		spec.Type, _ = catalogue.ParseParamType(string(spec.Type))
		f.index[spec.Name] = len(f.fields)
		f.fields = append(f.fields, Field{
			Spec:  spec,
			Value: flowgraph.CloneValue(resolve(spec, node.Params)),
		})
	}
	return f
}

func resolve(spec catalogue.ParamSpec, stored map[string]any) any {
	if v, ok := stored[spec.Name]; ok && v != nil {
		return v
	}
	if spec.Type == catalogue.TypePathReference {
		for _, key := range pathReferenceFallbacks {
			if v, ok := stored[key]; ok && v != nil {
				return v
			}
		}
	}
	if spec.DefaultValue != nil {
		return spec.DefaultValue
	}
	return ZeroValue(spec.Type)
}

// ZeroValue returns the empty value for a parameter type.
func ZeroValue(t catalogue.ParamType) any {
	switch t {
	case catalogue.TypeString, catalogue.TypeTextarea, catalogue.TypePathReference:
		return ""
	case catalogue.TypeNumber:
		return 0.0
	case catalogue.TypeBoolean:
		return false
	case catalogue.TypeRange:
		return []any{0.0, 100.0}
	default:
		return nil
	}
}

// NodeID returns the id of the bound node.
func (f *FormModel) NodeID() string { return f.nodeID }

// InstructionID returns the id of the bound instruction.
func (f *FormModel) InstructionID() string { return f.instructionID }

// Fields returns the bound fields in schema order.
func (f *FormModel) Fields() []Field {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Field, len(f.fields))
	for i, fld := range f.fields {
		fld.Value = flowgraph.CloneValue(fld.Value)
		out[i] = fld
	}
	return out
}

// Field returns the named field.
func (f *FormModel) Field(name string) (Field, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i, ok := f.index[name]
	if !ok {
		return Field{}, false
	}
	fld := f.fields[i]
	fld.Value = flowgraph.CloneValue(fld.Value)
	return fld, true
}

// Values returns a copy of every bound value keyed by parameter name.
func (f *FormModel) Values() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]any, len(f.fields))
	for _, fld := range f.fields {
		out[fld.Spec.Name] = flowgraph.CloneValue(fld.Value)
	}
	return out
}

// UpdateValue sets a field and writes it through to the node immediately.
// The field's previous validation message is cleared.
func (f *FormModel) UpdateValue(name string, value any) error {
	f.mu.Lock()
	i, ok := f.index[name]
	if !ok {
		f.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownField, name),
			"FormModel", "UpdateValue", "field lookup")
	}
	if f.writer != nil {
		if err := f.writer.SetParam(f.nodeID, name, value); err != nil {
			f.mu.Unlock()
			return errors.Wrap(err, "FormModel", "UpdateValue", "write-through")
		}
	}
	f.fields[i].Value = flowgraph.CloneValue(value)
	f.fields[i].Error = ""
	observers := append([]func(string, any){}, f.observers...)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(name, flowgraph.CloneValue(value))
	}
	return nil
}

// Flush writes every bound value to the node. It is used before a run so the
// engine sees resolved defaults for fields the user never touched.
func (f *FormModel) Flush() error {
	if f.writer == nil {
		return nil
	}
	for _, fld := range f.Fields() {
		if err := f.writer.SetParam(f.nodeID, fld.Spec.Name, fld.Value); err != nil {
			return errors.Wrap(err, "FormModel", "Flush", "write-through")
		}
	}
	return nil
}
