package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bundleObj  = `{"context_recap":"Moving the event store to Postgres","decisions":["Use Postgres [C1]"]}`
	bulletsObj = `{"bullets":[{"text":"Decision: keep 200ms budget","quote":"keep the API latency budget at 200ms","id":"C2"}]}`
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare bundle", bundleObj, bundleObj},
		{"json fence", "```json\n" + bundleObj + "\n```", bundleObj},
		{"untagged fence", "```\n" + bulletsObj + "\n```", bulletsObj},
		{"other language tag", "```jsonc\n" + bulletsObj + "\n```", bulletsObj},
		{"fence on one line", "```" + bulletsObj + "```", bulletsObj},
		{"prose before bundle", "Here is the continuity bundle:\n\n" + bundleObj, bundleObj},
		{"prose after bullets", bulletsObj + "\n\nLet me know if more bullets are needed.", bulletsObj},
		{"fence after prose", "Sure.\n```json\n" + bundleObj + "\n```\nDone.", bundleObj},
		{"reference tag before object", "Sources [S1] and [S2] give:\n" + bundleObj, bundleObj},
		{"bare array of bullets", "Bullets: [\"Fact: 200ms budget\",\"Decision: Postgres\"] end", `["Fact: 200ms budget","Decision: Postgres"]`},
		{"braces inside strings", `Output {"recap":"keep {title} and ] as text"}`, `{"recap":"keep {title} and ] as text"}`},
		{"escaped quotes", `{"quote":"he said \"ship it\" [C3]"} trailing`, `{"quote":"he said \"ship it\" [C3]"}`},
		{"truncated bundle", `  {"context_recap":"cut off`, `{"context_recap":"cut off`},
		{"no json", "  I could not produce a bundle.  ", "I could not produce a bundle."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestCleanJSONBlock_DecodesBullets(t *testing.T) {
	var payload struct {
		Bullets []struct {
			Text  string `json:"text"`
			Quote string `json:"quote"`
			ID    string `json:"id"`
		} `json:"bullets"`
	}
	raw := "Extracted bullets follow.\n```json\n" + bulletsObj + "\n```"
	require.NoError(t, json.Unmarshal([]byte(CleanJSONBlock(raw)), &payload))
	require.Len(t, payload.Bullets, 1)
	assert.Equal(t, "C2", payload.Bullets[0].ID)
}

func TestBalancedPrefix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"object", `{"a":[1,{"b":2}]} rest`, `{"a":[1,{"b":2}]}`},
		{"array", `[[1],[2]] rest`, `[[1],[2]]`},
		{"mismatched closer", `{"a":1]`, ""},
		{"unclosed", `{"a":[1,2}`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, balancedPrefix(tt.input))
		})
	}
}
