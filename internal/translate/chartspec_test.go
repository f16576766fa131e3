package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChartSpecStrictJSON(t *testing.T) {
	spec, ok := parseChartSpec(`{"type":"bar","x":"month","y":"total","title":"Totals"}`)
	require.True(t, ok)
	assert.Equal(t, "bar", spec.Type)
	assert.Equal(t, "month", spec.X)
	assert.Equal(t, "Totals", spec.Title)
	assert.True(t, spec.Placeholder())
}

func TestParseChartSpecPermissive(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"single quotes", `{'type': 'line', 'x': 'week'}`},
		{"unquoted keys", `{type: "line", x: "week"}`},
		{"trailing comma", `{"type": "line", "x": "week",}`},
		{"all at once", `{type: 'line', x: 'week',}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := parseChartSpec(tt.content)
			require.True(t, ok)
			assert.Equal(t, "line", spec.Type)
			assert.Equal(t, "week", spec.X)
		})
	}
}

func TestParseChartSpecInlineData(t *testing.T) {
	spec, ok := parseChartSpec(`{"type":"bar","data":[{"month":"Jan","n":3},{"month":"Feb","n":5}]}`)
	require.True(t, ok)
	require.Len(t, spec.Data, 2)
	assert.False(t, spec.Placeholder())
}

func TestParseChartSpecRejectsNonObjects(t *testing.T) {
	for _, content := range []string{
		"plot enrollment by month",
		"[1,2,3]",
		"",
		"import matplotlib",
	} {
		_, ok := parseChartSpec(content)
		assert.False(t, ok, "content %q must not parse as a spec", content)
	}
}

func TestLooksLikeCode(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"import pandas as pd", true},
		{"from collections import Counter", true},
		{"def risk(df):\n    return df", true},
		{"plt.plot(x, y)", true},
		{"px.bar(df, x='month')", true},
		{"sns.heatmap(corr)", true},
		{"fig = px.line(df)", true},
		{"# comment first\nimport numpy", true},
		{"{\"type\":\"bar\"}", false},
		{"a bar chart of enrollment", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, looksLikeCode(tt.content), "content: %q", tt.content)
	}
}
