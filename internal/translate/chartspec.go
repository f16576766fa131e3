package translate

import (
	"encoding/json"
	"regexp"
	"strings"

	"notebridge/internal/notebook"
)

// specFromMap builds a chart spec from a structured action input
func specFromMap(m map[string]any) *notebook.ChartSpec {
	spec := &notebook.ChartSpec{
		Type:  stringField(m, "type", "chartType"),
		X:     stringField(m, "x", "xAxis"),
		Y:     stringField(m, "y", "yAxis"),
		Title: stringField(m, "title"),
	}

	spec.SourceBlockID = stringField(m, "sourceBlockId", "source", "dataSource")

	if raw, ok := m["data"]; ok {
		if rows, ok := rowsFromAny(raw); ok {
			spec.Data = rows
		}
	}
	if spec.Data == nil {
		// Non-nil empty dataset is the placeholder backfill repairs later.
		spec.Data = []map[string]any{}
	}

	return spec
}

// parseChartSpec interprets free-form content as a declarative chart
// specification: first as strict JSON, then with a permissive pass that
// tolerates unquoted keys, single quotes, and trailing commas, since those
// are the shapes agents actually emit.
func parseChartSpec(content string) (*notebook.ChartSpec, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
		return specFromMap(m), true
	}

	relaxed := relaxExpression(trimmed)
	if err := json.Unmarshal([]byte(relaxed), &m); err == nil {
		return specFromMap(m), true
	}

	return nil, false
}

var (
	unquotedKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// relaxExpression rewrites a loose object-literal expression into JSON
func relaxExpression(s string) string {
	s = strings.ReplaceAll(s, "'", `"`)
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, `$1`)
	return s
}

// codeTokens are prefixes that mark content as executable code rather than a
// chart specification. Upstream agents have been observed to label code as
// "visualization"; this classifier recovers those, best-effort.
var codeTokens = []string{
	"import ",
	"from ",
	"def ",
	"class ",
	"plt.",
	"px.",
	"sns.",
	"alt.",
	"fig =",
	"fig=",
	"print(",
}

// looksLikeCode reports whether content lexically resembles executable code
func looksLikeCode(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range codeTokens {
			if strings.HasPrefix(line, tok) {
				return true
			}
		}
		return false
	}
	return false
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func rowsFromAny(v any) ([]map[string]any, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}

	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}
