package flowstore

// Migrate upgrades doc to SchemaVersion in place and reports whether it
// changed anything. Documents already at SchemaVersion are left untouched.
//
// Version 0 stored data-source file lists as bare arrays of file objects.
// Version 1 always uses {"files": [...]} with each file carrying name,
// original_name, size and file_name.
func Migrate(doc *FlowDocument) bool {
	if doc.SchemaVersion >= SchemaVersion {
		return false
	}
	for i := range doc.Nodes {
		params := doc.Nodes[i].Params
		for key, value := range params {
			if migrated, ok := migrateFileList(value); ok {
				params[key] = migrated
			}
		}
	}
	doc.SchemaVersion = SchemaVersion
	return true
}

// migrateFileList converts either file-list shape to the canonical object.
func migrateFileList(value any) (any, bool) {
	switch v := value.(type) {
	case []any:
		if !isLegacyFileArray(v) {
			return nil, false
		}
		return map[string]any{"files": normalizeFiles(v)}, true
	case map[string]any:
		files, ok := v["files"].([]any)
		if !ok || !allObjects(files) {
			return nil, false
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = item
		}
		out["files"] = normalizeFiles(files)
		return out, true
	}
	return nil, false
}

// isLegacyFileArray requires a file-name key on every element, so ordinary
// lists of objects such as column mappings are not rewritten.
func isLegacyFileArray(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := m["fileName"]; ok {
			continue
		}
		if _, ok := m["file_name"]; ok {
			continue
		}
		return false
	}
	return true
}

func allObjects(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func normalizeFiles(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		file := item.(map[string]any)
		n := make(map[string]any, len(file)+4)
		for k, v := range file {
			n[k] = v
		}
		displayName := firstTruthy(file["fileName"], file["name"], file["file_name"])
		n["name"] = displayName
		n["original_name"] = displayName
		n["size"] = firstTruthy(file["fileSize"], file["size"], file["file_size"], 0.0)
		n["file_name"] = firstTruthy(file["file_name"], file["fileName"], file["name"])
		out = append(out, n)
	}
	return out
}

// firstTruthy returns the first value that is neither nil, "", 0 nor
// false. The last candidate is returned when none qualify.
func firstTruthy(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
		case float64:
			if val == 0 {
				continue
			}
		case bool:
			if !val {
				continue
			}
		}
		return v
	}
	return values[len(values)-1]
}
