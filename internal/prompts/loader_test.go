package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	ClearCache()

	tests := []struct {
		name    string
		set     string
		key     string
		wantErr string
	}{
		{"continuity key", Continuity, "extractive-system", ""},
		{"map-reduce key", MapReduce, "reduce-bundle-system", ""},
		{"unknown set", "nonexistent.json", "extractive-system", "failed to read prompt file"},
		{"unknown key", Continuity, "nonexistent-key", "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Get(tt.set, tt.key)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tmpl)
		})
	}
}

func TestMustGet(t *testing.T) {
	ClearCache()

	assert.Contains(t, MustGet(Continuity, "extractive-system"), "STRICT JSON")
	assert.Panics(t, func() { MustGet(MapReduce, "primer-system") })
}

func TestGet_CachesParsedSet(t *testing.T) {
	ClearCache()

	_, err := Get(Continuity, "primer-system")
	require.NoError(t, err)
	setsMu.RLock()
	_, cached := sets[Continuity]
	setsMu.RUnlock()
	assert.True(t, cached)

	ClearCache()
	setsMu.RLock()
	assert.Empty(t, sets)
	setsMu.RUnlock()
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"fills", "Title: {{.Title}} [C{{.ChunkID}}]", map[string]string{"Title": "Migration", "ChunkID": "3"}, "Title: Migration [C3]"},
		{"repeated", "{{.Title}} / {{.Title}}", map[string]string{"Title": "T"}, "T / T"},
		{"missing value kept", "Words: {{.Words}}", map[string]string{}, "Words: {{.Words}}"},
		{"values not re-expanded", "{{.Bullets}} {{.Title}}", map[string]string{"Bullets": "{{.Title}}", "Title": "T"}, "{{.Title}} T"},
		{"no placeholders", "plain text", map[string]string{"Title": "T"}, "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.tmpl, tt.vars))
		})
	}
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List(MapReduce)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"map-bullets-system", "map-bullets-user",
		"reduce-bundle-system", "reduce-bundle-user",
		"reduce-deep-system", "reduce-deep-user",
	}, keys)
}

func TestPromptSets_RequiredKeys(t *testing.T) {
	ClearCache()

	required := map[string][]string{
		Continuity: {
			"extractive-system", "extractive-user",
			"compress-system", "compress-second-system", "compress-user",
			"primer-system", "primer-user",
			"deep-facts-system", "deep-facts-user", "deep-actions-user",
			"repair-row-system", "repair-row-user",
			"repair-document-system", "repair-document-user",
		},
		MapReduce: {
			"map-bullets-system", "map-bullets-user",
			"reduce-bundle-system", "reduce-bundle-user",
			"reduce-deep-system", "reduce-deep-user",
		},
	}

	for set, keys := range required {
		for _, key := range keys {
			t.Run(set+"/"+key, func(t *testing.T) {
				tmpl, err := Get(set, key)
				require.NoError(t, err)
				assert.NotEmpty(t, tmpl)
			})
		}
	}
}

func TestFormat_ExtractivePrompt(t *testing.T) {
	prompt := Format(MustGet(Continuity, "extractive-system"), map[string]string{"ChunkID": "7"})
	assert.Contains(t, prompt, "[C7]")
	assert.NotContains(t, prompt, "{{.ChunkID}}")
}
