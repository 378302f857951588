package testutil

import (
	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/flowstore"
)

// Instruction ids used by the fixtures.
const (
	InstReadExcel  = "read_excel"
	InstFilterRows = "filter_rows"
	InstExportCSV  = "export_csv"
)

func ptr[T any](v T) *T { return &v }

// Instructions returns a small catalogue covering every parameter type.
func Instructions() []catalogue.Instruction {
	return []catalogue.Instruction{
		{
			ID:        InstReadExcel,
			Name:      "Read Excel",
			Category:  "input",
			SortOrder: 1,
			Params: []catalogue.ParamSpec{
				{Name: "file", Type: catalogue.TypeFile, Label: "File", Required: true},
				{Name: "sheet", Type: catalogue.TypePathReference, Label: "Sheet", DefaultValue: "Sheet1"},
				{Name: "header_row", Type: catalogue.TypeNumber, Label: "Header row", DefaultValue: 1.0,
					Validation: &catalogue.Validation{Min: ptr(0.0), Max: ptr(100.0)}},
			},
		},
		{
			ID:        InstFilterRows,
			Name:      "Filter Rows",
			Category:  "transform",
			SortOrder: 2,
			Params: []catalogue.ParamSpec{
				{Name: "column", Type: catalogue.TypeColumn, Label: "Column", Required: true},
				{Name: "expression", Type: catalogue.TypeString, Label: "Expression",
					Validation: &catalogue.Validation{Pattern: `^[a-z_]+\s*(==|!=|>|<)\s*.+$`, Message: "Expression must look like col > 1"}},
				{Name: "mode", Type: catalogue.TypeSelect, Label: "Mode", DefaultValue: "keep",
					Options: []catalogue.Option{{Label: "Keep", Value: "keep"}, {Label: "Drop", Value: "drop"}}},
				{Name: "window", Type: catalogue.TypeRange, Label: "Window"},
				{Name: "case_sensitive", Type: catalogue.TypeBoolean, Label: "Case sensitive"},
			},
		},
		{
			ID:        InstExportCSV,
			Name:      "Export CSV",
			Category:  "output",
			SortOrder: 3,
			Params: []catalogue.ParamSpec{
				{Name: "path", Type: catalogue.TypeString, Label: "Output path", Required: true},
				{Name: "notes", Type: catalogue.TypeTextarea, Label: "Notes"},
			},
		},
	}
}

// CatalogueSource serves Instructions.
func CatalogueSource() catalogue.StaticSource {
	return catalogue.StaticSource(Instructions())
}

// Document returns a valid three-node linear flow over the fixture
// catalogue: read -> filter -> export.
func Document() *flowstore.FlowDocument {
	return &flowstore.FlowDocument{
		Name:          "fixture flow",
		Description:   "read, filter and export",
		SchemaVersion: flowstore.SchemaVersion,
		Nodes: []flowstore.NodeDoc{
			{ID: "read", InstructionID: InstReadExcel, Name: "Read Excel", X: 0, Y: 0,
				Params: map[string]any{"file": map[string]any{"files": []any{map[string]any{"name": "in.xlsx", "size": 2048.0}}}}},
			{ID: "filter", InstructionID: InstFilterRows, Name: "Filter Rows", X: 300, Y: 0,
				Params: map[string]any{"column": "age", "expression": "age > 30"}},
			{ID: "export", InstructionID: InstExportCSV, Name: "Export CSV", X: 600, Y: 0,
				Params: map[string]any{"path": "out.csv"}},
		},
		Edges: []flowstore.EdgeDoc{
			{ID: "e1", Source: "read", Target: "filter", SourcePort: "output", TargetPort: "input"},
			{ID: "e2", Source: "filter", Target: "export", SourcePort: "output", TargetPort: "input"},
		},
	}
}

// LegacyDocumentJSON is a version 0 flow: no schemaVersion, null edges
// and an array-shaped file list using the old key names.
const LegacyDocumentJSON = `{
  "id": "legacy-1",
  "name": "legacy flow",
  "description": null,
  "nodes": [
    {"id": "read", "instructionId": "read_excel", "x": 10, "y": 20,
     "params": {"file": [{"fileName": "old.xlsx", "fileSize": 512}], "sourceDataPath": "Data"}},
    {"id": "gone", "instructionId": "removed_instruction", "x": 300, "y": 20, "params": null}
  ],
  "edges": [
    {"id": "e1", "source": "read", "target": "gone", "sourcePort": "right", "targetPort": "left", "label": null},
    {"id": "e2", "source": "read", "target": "missing"}
  ]
}`
