package engine

import "strings"

// Inference records one parameter the mediator filled in.
type Inference struct {
	Param string
	From  string // alias key, or "recent_file"
	Value any
}

// parameterAliases maps a canonical parameter to spellings models commonly
// use instead.
var parameterAliases = []struct {
	canonical string
	aliases   []string
}{
	{"path", []string{"file_path", "filePath", "filename", "file", "filepath"}},
	{"command", []string{"cmd", "shell_command", "script"}},
	{"query", []string{"q", "search", "search_query"}},
	{"content", []string{"text", "body", "contents"}},
}

// InferParameters fills commonly omitted or misspelled parameters of a call.
// Only parameters the tool schema declares are filled. args is not modified.
func InferParameters(tool Tool, args map[string]any, files *FileTracker) (map[string]any, []Inference) {
	props := tool.schemaProperties()
	if len(props) == 0 {
		return args, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	var inferred []Inference
	for _, pa := range parameterAliases {
		canonical := pa.canonical
		if !props[canonical] || hasValue(out, canonical) {
			continue
		}
		for _, alias := range pa.aliases {
			if !hasValue(out, alias) {
				continue
			}
			out[canonical] = out[alias]
			if !props[alias] {
				delete(out, alias)
			}
			inferred = append(inferred, Inference{Param: canonical, From: alias, Value: out[canonical]})
			break
		}
	}

	if props["path"] && !hasValue(out, "path") && isEditTool(tool.Name) && files != nil {
		if recent := files.MostRecentCreated(); recent != "" {
			out["path"] = recent
			inferred = append(inferred, Inference{Param: "path", From: "recent_file", Value: recent})
		}
	}

	if len(inferred) == 0 {
		return args, nil
	}
	return out, inferred
}

func isEditTool(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "edit") || strings.Contains(n, "update") || strings.Contains(n, "append")
}

func hasValue(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}
