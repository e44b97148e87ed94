package main

import (
	"bytes"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTokenLimit sets tokenLimit for the duration of a test.
func withTokenLimit(t *testing.T, limit int) {
	t.Helper()
	previous := tokenLimit
	tokenLimit = limit
	t.Cleanup(func() { tokenLimit = previous })
}

func TestGetAvailableTokensForContent(t *testing.T) {
	tmpl := template.Must(template.New("test").Parse("Template with {{.Var1}} and {{.Content}}"))

	tests := []struct {
		name      string
		limit     int
		wantCount int
		wantErr   bool
	}{
		{name: "disabled token limit", limit: 0, wantCount: -1},
		{name: "template exceeds limit", limit: 2, wantErr: true},
		{name: "available tokens calculation", limit: 100, wantCount: 85},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			withTokenLimit(t, tc.limit)

			count, err := getAvailableTokensForContent(tmpl, map[string]interface{}{"Var1": "test"})
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantCount, count)
		})
	}
}

func TestTruncateContentByTokens(t *testing.T) {
	withTokenLimit(t, 100)

	tests := []struct {
		name            string
		content         string
		availableTokens int
		wantTruncated   bool
	}{
		{
			name:            "no truncation needed",
			content:         "short content",
			availableTokens: 20,
		},
		{
			name:            "disabled by token limit",
			content:         "any content",
			availableTokens: -1,
		},
		{
			name:            "truncation needed",
			content:         "ORDER PO-778 Eastern Harvest 1 Harbour Rd Salmon 20 cartons Prawns 5 kg Squid 1 tray deliver on 13 Feb 2025 before noon",
			availableTokens: 10,
			wantTruncated:   true,
		},
		{
			name:            "empty content",
			content:         "",
			availableTokens: 10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := truncateContentByTokens(tc.content, tc.availableTokens)
			require.NoError(t, err)

			if tc.wantTruncated {
				assert.Less(t, len(result), len(tc.content), "Content should be truncated")
				assert.True(t, len(tc.content) > 0 && tc.content[:len(result)] == result, "Truncation keeps a prefix")
			} else {
				assert.Equal(t, tc.content, result, "Content should not be truncated")
			}
		})
	}
}

func TestTokenLimitWithExtractionPrompt(t *testing.T) {
	withTokenLimit(t, 0)
	tmpl, err := parsePromptTemplate("extraction", defaultExtractionTemplate)
	require.NoError(t, err)

	data := extractionPromptData("")
	available, err := getAvailableTokensForContent(tmpl, data)
	require.NoError(t, err)
	assert.Equal(t, -1, available)

	content := "Salmon 20 cartons"
	truncated, err := truncateContentByTokens(content, available)
	require.NoError(t, err)
	data["Content"] = truncated

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, data))
	assert.Contains(t, buf.String(), content)
}
