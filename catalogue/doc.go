// Package catalogue caches instruction definitions for the editor.
//
// A Catalogue wraps a Source (the engine's REST endpoint, a YAML/JSON file,
// or a static list) and fetches it once per session. After the first Load the
// contents are read-only; Invalidate drops them and Refresh replaces them.
//
// Definitions are normalised on load: parameter type aliases such as
// "select_excelpath" resolve to their canonical ParamType, unknown types
// become TypeString with a warning, and definitions that fail struct
// validation are skipped rather than failing the whole catalogue.
//
//	cat, err := catalogue.New(catalogue.FileSource{Path: "instructions.yaml"})
//	if err != nil {
//	    return err
//	}
//	inst, err := cat.Get(ctx, "read_excel")
package catalogue
