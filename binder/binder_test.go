package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
)

func ptr[T any](v T) *T { return &v }

func TestBind_Precedence(t *testing.T) {
	types := []struct {
		typ      catalogue.ParamType
		stored   any
		fallback any
		zero     any
	}{
		{catalogue.TypeString, "stored", "default", ""},
		{catalogue.TypeTextarea, "stored", "default", ""},
		{catalogue.TypePathReference, "a.xlsx", "b.xlsx", ""},
		{catalogue.TypeNumber, 7.0, 3.0, 0.0},
		{catalogue.TypeBoolean, true, true, false},
		{catalogue.TypeSelect, "x", "y", nil},
		{catalogue.TypeColumn, "B", "A", nil},
		{catalogue.TypeFile, "f.csv", "g.csv", nil},
		{catalogue.TypeRange, []any{1.0, 2.0}, []any{5.0, 6.0}, []any{0.0, 100.0}},
	}

	for _, tt := range types {
		t.Run(string(tt.typ), func(t *testing.T) {
			inst := catalogue.Instruction{ID: "i", Params: []catalogue.ParamSpec{
				{Name: "p", Type: tt.typ, DefaultValue: tt.fallback},
			}}

			stored := Bind(flowgraph.Node{ID: "n", Params: map[string]any{"p": tt.stored}}, inst, nil)
			assert.Equal(t, tt.stored, stored.Values()["p"], "stored value wins")

			def := Bind(flowgraph.Node{ID: "n"}, inst, nil)
			assert.Equal(t, tt.fallback, def.Values()["p"], "default when nothing stored")

			inst.Params[0].DefaultValue = nil
			zero := Bind(flowgraph.Node{ID: "n", Params: map[string]any{"p": nil}}, inst, nil)
			assert.Equal(t, tt.zero, zero.Values()["p"], "type zero value last")
		})
	}
}

func TestBind_PathReferenceFallbacks(t *testing.T) {
	inst := catalogue.Instruction{ID: "i", Params: []catalogue.ParamSpec{
		{Name: "source", Type: "select_excelpath", DefaultValue: "default.xlsx"},
	}}

	tests := []struct {
		name   string
		params map[string]any
		want   any
	}{
		{"own key", map[string]any{"source": "own", "sourceDataPath": "legacy"}, "own"},
		{"sourceDataPath", map[string]any{"sourceDataPath": "legacy", "sheetPath": "sheet"}, "legacy"},
		{"sheetPath", map[string]any{"sheetPath": "sheet"}, "sheet"},
		{"default", map[string]any{}, "default.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := Bind(flowgraph.Node{ID: "n", Params: tt.params}, inst, nil)
			assert.Equal(t, tt.want, form.Values()["source"])
		})
	}
}

func TestBind_StoredEmptyStringIsAValue(t *testing.T) {
	inst := catalogue.Instruction{Params: []catalogue.ParamSpec{{Name: "p", Type: catalogue.TypeString, DefaultValue: "d"}}}
	form := Bind(flowgraph.Node{Params: map[string]any{"p": ""}}, inst, nil)
	assert.Equal(t, "", form.Values()["p"])
}

func TestUpdateValue_WritesThrough(t *testing.T) {
	g := flowgraph.New()
	node := g.AddNode("filter", port.Point{}, map[string]any{"expr": "a > 1"})
	inst := catalogue.Instruction{ID: "filter", Params: []catalogue.ParamSpec{
		{Name: "expr", Type: catalogue.TypeString, Label: "Expression", Required: true},
	}}

	var notified []string
	form := Bind(node, inst, g, OnChange(func(name string, _ any) { notified = append(notified, name) }))

	require.NoError(t, form.UpdateValue("expr", "b < 2"))

	stored, ok := g.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, "b < 2", stored.Params["expr"])
	assert.Equal(t, []string{"expr"}, notified)

	err := form.UpdateValue("nope", 1)
	assert.ErrorIs(t, err, errors.ErrUnknownField)
	assert.True(t, errors.IsInvalid(err))
}

func TestUpdateValue_NodeGone(t *testing.T) {
	g := flowgraph.New()
	node := g.AddNode("filter", port.Point{}, nil)
	inst := catalogue.Instruction{Params: []catalogue.ParamSpec{{Name: "expr", Type: catalogue.TypeString}}}
	form := Bind(node, inst, g)

	g.RemoveNode(node.ID)
	err := form.UpdateValue("expr", "x")
	assert.ErrorIs(t, err, errors.ErrNodeNotFound)

	f, _ := form.Field("expr")
	assert.Equal(t, "", f.Value, "failed write-through leaves the form unchanged")
}

func TestUpdateValue_NoAliasing(t *testing.T) {
	g := flowgraph.New()
	node := g.AddNode("i", port.Point{}, nil)
	inst := catalogue.Instruction{Params: []catalogue.ParamSpec{{Name: "cols", Type: catalogue.TypeColumn}}}
	form := Bind(node, inst, g)

	cols := []any{"A", "B"}
	require.NoError(t, form.UpdateValue("cols", cols))
	cols[0] = "Z"

	stored, _ := g.Node(node.ID)
	assert.Equal(t, []any{"A", "B"}, stored.Params["cols"])
	assert.Equal(t, []any{"A", "B"}, form.Values()["cols"])
}

func TestValidate(t *testing.T) {
	specs := []catalogue.ParamSpec{
		{Name: "name", Label: "Name", Type: catalogue.TypeString, Required: true},
		{Name: "rows", Label: "Rows", Type: catalogue.TypeNumber,
			Validation: &catalogue.Validation{Min: ptr(1.0), Max: ptr(10.0)}},
		{Name: "code", Label: "Code", Type: catalogue.TypeString,
			Validation: &catalogue.Validation{Pattern: `^[A-Z]{3}$`, Message: "Code must be three capitals"}},
		{Name: "sheet", Label: "Sheet", Type: catalogue.TypeTextarea,
			Validation: &catalogue.Validation{Pattern: `^\w+$`}},
		{Name: "enabled", Label: "Enabled", Type: catalogue.TypeBoolean, Required: true},
	}
	inst := catalogue.Instruction{ID: "i", Params: specs}

	tests := []struct {
		name   string
		params map[string]any
		want   map[string]string
	}{
		{
			name:   "all valid",
			params: map[string]any{"name": "x", "rows": "5", "code": "ABC", "sheet": "s1", "enabled": false},
			want:   map[string]string{},
		},
		{
			name:   "required missing",
			params: map[string]any{"name": "", "rows": 5, "enabled": true},
			want:   map[string]string{"name": CodeRequired},
		},
		{
			name:   "not a number",
			params: map[string]any{"name": "x", "rows": "many", "enabled": true},
			want:   map[string]string{"rows": CodeType},
		},
		{
			name:   "below min",
			params: map[string]any{"name": "x", "rows": 0, "enabled": true},
			want:   map[string]string{"rows": CodeMin},
		},
		{
			name:   "above max",
			params: map[string]any{"name": "x", "rows": 11.5, "enabled": true},
			want:   map[string]string{"rows": CodeMax},
		},
		{
			name:   "pattern with message and default message",
			params: map[string]any{"name": "x", "rows": 5, "code": "abc", "sheet": "two words", "enabled": true},
			want:   map[string]string{"code": CodePattern, "sheet": CodePattern},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := Bind(flowgraph.Node{ID: "n", Params: tt.params}, inst, nil)
			errs := form.Validate()

			got := map[string]string{}
			for field, fe := range errs.ByField() {
				got[field] = fe.Code
				assert.Equal(t, "n", fe.NodeID)
			}
			assert.Equal(t, tt.want, got)
			if len(tt.want) == 0 {
				assert.NoError(t, errs.Err())
			} else {
				assert.ErrorIs(t, errs.Err(), errors.ErrClientValidation)
			}
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	inst := catalogue.Instruction{Params: []catalogue.ParamSpec{
		{Name: "name", Label: "Name", Type: catalogue.TypeString, Required: true},
		{Name: "code", Label: "Code", Type: catalogue.TypeString,
			Validation: &catalogue.Validation{Pattern: `^\d+$`, Message: "digits only"}},
		{Name: "sheet", Label: "Sheet", Type: catalogue.TypeString,
			Validation: &catalogue.Validation{Pattern: `^\d+$`}},
	}}
	form := Bind(flowgraph.Node{Params: map[string]any{"code": "x", "sheet": "y"}}, inst, nil)
	byField := form.Validate().ByField()

	assert.Equal(t, "Name is required", byField["name"].Message)
	assert.Equal(t, "digits only", byField["code"].Message)
	assert.Equal(t, "Sheet format is invalid", byField["sheet"].Message)

	f, _ := form.Field("name")
	assert.Equal(t, "Name is required", f.Error)

	require.NoError(t, form.UpdateValue("name", "set"))
	f, _ = form.Field("name")
	assert.Empty(t, f.Error, "editing clears the field message")
}

func TestFlush(t *testing.T) {
	g := flowgraph.New()
	node := g.AddNode("i", port.Point{}, nil)
	inst := catalogue.Instruction{Params: []catalogue.ParamSpec{
		{Name: "rows", Type: catalogue.TypeNumber, DefaultValue: 10.0},
		{Name: "range", Type: catalogue.TypeRange},
	}}
	form := Bind(node, inst, g)
	require.NoError(t, form.Flush())

	stored, _ := g.Node(node.ID)
	assert.Equal(t, 10.0, stored.Params["rows"])
	assert.Equal(t, []any{0.0, 100.0}, stored.Params["range"])
}
