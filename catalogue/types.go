package catalogue

import (
	"encoding/json"
	"sort"
	"strings"
)

// ParamType tags the variant of a parameter. Form handling dispatches on it.
type ParamType string

// Parameter types
const (
	TypeString        ParamType = "string"
	TypeNumber        ParamType = "number"
	TypeBoolean       ParamType = "boolean"
	TypeSelect        ParamType = "select"
	TypeFile          ParamType = "file"
	TypeRange         ParamType = "range"
	TypeColumn        ParamType = "column"
	TypeTextarea      ParamType = "textarea"
	TypePathReference ParamType = "path-reference"
)

// paramTypeAliases maps older wire names onto their canonical type.
var paramTypeAliases = map[string]ParamType{
	"select_excelpath": TypePathReference,
	"path_reference":   TypePathReference,
	"text":             TypeString,
	"int":              TypeNumber,
	"float":            TypeNumber,
	"bool":             TypeBoolean,
}

// ParseParamType resolves a wire type name. Unknown names resolve to
// TypeString and ok is false.
func ParseParamType(s string) (ParamType, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch t := ParamType(name); t {
	case TypeString, TypeNumber, TypeBoolean, TypeSelect, TypeFile,
		TypeRange, TypeColumn, TypeTextarea, TypePathReference:
		return t, true
	case "":
		return TypeString, true
	}
	if t, ok := paramTypeAliases[name]; ok {
		return t, true
	}
	return TypeString, false
}

// Numeric reports whether min/max validation applies.
func (t ParamType) Numeric() bool {
	return t == TypeNumber
}

// Textual reports whether pattern validation applies.
func (t ParamType) Textual() bool {
	return t == TypeString || t == TypeTextarea
}

// Validation holds optional constraints for numeric and string parameters.
type Validation struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Option is one choice of a select parameter.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// ParamSpec describes one parameter of an instruction.
type ParamSpec struct {
	Name         string      `json:"name" yaml:"name" validate:"required"`
	Type         ParamType   `json:"type" yaml:"type"`
	Label        string      `json:"label" yaml:"label"`
	Required     bool        `json:"required" yaml:"required"`
	DefaultValue any         `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Validation   *Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
	Options      []Option    `json:"options,omitempty" yaml:"options,omitempty"`
	Description  string      `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder  string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Multiple     bool        `json:"multiple,omitempty" yaml:"multiple,omitempty"`
}

// DisplayLabel returns Label, or Name when no label is set.
func (p ParamSpec) DisplayLabel() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Name
}

// UnmarshalJSON accepts the backend's snake_case default_value as well.
func (p *ParamSpec) UnmarshalJSON(data []byte) error {
	type plain ParamSpec
	var wire struct {
		plain
		LegacyDefault any `json:"default_value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = ParamSpec(wire.plain)
	if p.DefaultValue == nil && wire.LegacyDefault != nil {
		p.DefaultValue = wire.LegacyDefault
	}
	return nil
}

// Instruction is an immutable catalogue entry.
type Instruction struct {
	ID           string      `json:"id" yaml:"id" validate:"required"`
	Name         string      `json:"name" yaml:"name" validate:"required"`
	Description  string      `json:"description,omitempty" yaml:"description,omitempty"`
	Category     string      `json:"category" yaml:"category"`
	CategoryName string      `json:"category_name,omitempty" yaml:"category_name,omitempty"`
	Params       []ParamSpec `json:"params" yaml:"params" validate:"dive"`
	Color        string      `json:"color,omitempty" yaml:"color,omitempty"`
	SortOrder    int         `json:"sort_order" yaml:"sort_order"`
	InputPorts   int         `json:"inputPorts,omitempty" yaml:"inputPorts,omitempty" validate:"gte=0"`
	OutputPorts  int         `json:"outputPorts,omitempty" yaml:"outputPorts,omitempty" validate:"gte=0"`

	// Active defaults to true when absent.
	Active *bool `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

// UnmarshalJSON accepts category_id in place of category.
func (i *Instruction) UnmarshalJSON(data []byte) error {
	type plain Instruction
	var wire struct {
		plain
		CategoryID string `json:"category_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*i = Instruction(wire.plain)
	if i.Category == "" {
		i.Category = wire.CategoryID
	}
	return nil
}

// IsActive reports whether the instruction may be placed on a canvas.
func (i Instruction) IsActive() bool {
	return i.Active == nil || *i.Active
}

// Param returns the spec named name.
func (i Instruction) Param(name string) (ParamSpec, bool) {
	for _, p := range i.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Defaults returns the declared default of every parameter that has one.
func (i Instruction) Defaults() map[string]any {
	out := make(map[string]any, len(i.Params))
	for _, p := range i.Params {
		if p.DefaultValue != nil {
			out[p.Name] = p.DefaultValue
		}
	}
	return out
}

// Category groups instructions for the palette.
type Category struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	SortOrder   int           `json:"sort_order" yaml:"sort_order"`
	Items       []Instruction `json:"items" yaml:"items"`
}

// UnmarshalJSON accepts "instructions" as the item list key.
func (c *Category) UnmarshalJSON(data []byte) error {
	type plain Category
	var wire struct {
		plain
		Instructions []Instruction `json:"instructions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Category(wire.plain)
	if len(c.Items) == 0 {
		c.Items = wire.Instructions
	}
	return nil
}

// Document is the file and wire shape of a catalogue.
type Document struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

// Flatten returns every instruction with its category fields filled from
// the enclosing category. Categories are taken in sort order.
func (d Document) Flatten() []Instruction {
	cats := append([]Category(nil), d.Categories...)
	sort.SliceStable(cats, func(a, b int) bool { return cats[a].SortOrder < cats[b].SortOrder })

	var out []Instruction
	for _, c := range cats {
		for _, item := range c.Items {
			if item.Category == "" {
				item.Category = c.ID
			}
			if item.CategoryName == "" {
				item.CategoryName = c.Name
			}
			out = append(out, item)
		}
	}
	return out
}
