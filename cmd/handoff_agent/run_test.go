package main

import (
	"os/exec"
	"testing"

	"github.com/jonathan/continuity-handoff/internal/chunking"
	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConversation_JSON(t *testing.T) {
	path := writeTemp(t, "thread.json", `[
		{"role": "user", "content": "Plan the migration"},
		{"role": "assistant", "content": "Start with the schema"}
	]`)

	messages, err := readConversation(path, "")
	require.NoError(t, err)
	assert.Equal(t, []chunking.Message{
		{Role: "user", Content: "Plan the migration"},
		{Role: "assistant", Content: "Start with the schema"},
	}, messages)
}

func TestReadConversation_HTML(t *testing.T) {
	path := writeTemp(t, "thread.html", `<html><body>
		<div data-message-author-role="user"><p>Which index should we add?</p></div>
		<div data-message-author-role="assistant"><p>A composite index on thread_id.</p></div>
	</body></html>`)

	messages, err := readConversation("", path)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Contains(t, messages[0].Content, "Which index")
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestReadConversation_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{name: "missing file", json: "nope.json", wantErr: "failed to read conversation file"},
		{name: "not an array", json: writeTemp(t, "bad.json", `{"role": "user"}`), wantErr: "failed to parse conversation JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readConversation(tt.json, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "db-migration", titleFromPath("/tmp/exports/db-migration.json"))
	assert.Equal(t, "notes", titleFromPath("notes"))
}

func TestNewRunOutput(t *testing.T) {
	res := &pipeline.Result{
		Text:             "# Handoff",
		Revision:         pipeline.RevisionContinuity,
		Model:            "gemini-2.5-pro",
		Tokens:           420,
		CoverageBySource: 0.5,
		FallbackReason:   pipeline.ReasonContinuityFallback,
		Score:            types.QualityScore{Composite: 0.93},
		Gate:             types.GateResult{Pass: true},
	}

	out := newRunOutput(res)
	assert.Equal(t, "# Handoff", out.Text)
	assert.Equal(t, pipeline.RevisionContinuity, out.Revision)
	assert.Equal(t, 420, out.Tokens)
	assert.InDelta(t, 0.5, out.CoverageBySource, 1e-9)
	assert.Equal(t, pipeline.ReasonContinuityFallback, out.FallbackReason)
	assert.True(t, out.Gate.Pass)
}

func TestRunCommand_InputFlags(t *testing.T) {
	binaryPath := getBinaryPath(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "neither", args: []string{"run"}},
		{name: "both", args: []string{"run", "--file", "a.json", "--html", "a.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := exec.Command(binaryPath, tt.args...).CombinedOutput()
			assert.Error(t, err)
			assert.Contains(t, string(output), "exactly one of --file or --html must be provided")
		})
	}
}
