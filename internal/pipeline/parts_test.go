package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/types"
)

func TestCoalesce(t *testing.T) {
	tests := []struct {
		n      int
		groups int
	}{
		{0, 0},
		{10, 10},
		{60, 60},
		{61, 31},
		{101, 34},
		{141, 36},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d chunks", tt.n), func(t *testing.T) {
			chunks := make([]string, tt.n)
			for i := range chunks {
				chunks[i] = fmt.Sprintf("chunk %d", i)
			}
			got := Coalesce(chunks)
			assert.Len(t, got, tt.groups)
			if tt.n > 0 {
				assert.True(t, strings.HasPrefix(got[0], "chunk 0"))
				assert.True(t, strings.HasSuffix(got[len(got)-1], fmt.Sprintf("chunk %d", tt.n-1)))
			}
		})
	}
}

func TestMapConcurrency(t *testing.T) {
	assert.Equal(t, 10, MapConcurrency(types.PlanFree, 10))
	assert.Equal(t, 15, MapConcurrency(types.PlanFree, 40))
	assert.Equal(t, 30, MapConcurrency(types.PlanVault, 40))
	assert.Equal(t, 1, MapConcurrency(types.PlanVault, 0))
}

func TestReduceBudgetFor(t *testing.T) {
	free := ReduceBudgetFor(types.PlanFree)
	assert.Equal(t, ReduceBudget{Max: 1400, BundleMax: 630, DeepMax: 1120, DeepWords: "500-800"}, free)

	vault := ReduceBudgetFor(types.PlanVault)
	assert.Equal(t, ReduceBudget{Max: 3200, BundleMax: 1200, DeepMax: 2200, DeepWords: "900-1300"}, vault)
}

func TestDigestBullets(t *testing.T) {
	out := DigestBullets(mapDigestJSON)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "- Objective: Move the event store to Postgres before launch", lines[0])
	assert.Contains(t, out, "- Decision: Use Postgres for the event store")
	assert.Equal(t, "- Term: ES = event store", lines[len(lines)-1])
	assert.True(t, MapOK(out))

	assert.Empty(t, DigestBullets("not json"))
	assert.Empty(t, DigestBullets(`{"facts":["  "]}`))
}

func TestMapOK(t *testing.T) {
	long := strings.Repeat("x", 60)
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"three bullets", "- " + long + "\n* " + long + "\n• b", true},
		{"two bullets", "- " + long + "\n- " + long, false},
		{"too short", "- a\n- b\n- c", false},
		{"prose", strings.Repeat("words ", 40), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapOK(tt.text))
		})
	}
}

func TestUsableMaps(t *testing.T) {
	good := "- Fact: the API latency budget is 200ms per write\n- Decision: use Postgres for events"
	maps := []string{good, "", "- tiny", "Map segment 3 has nothing: " + good}

	got := UsableMaps(maps)
	assert.Equal(t, []string{good}, got)
	assert.Equal(t, 1, countUsable(maps))
}

func TestRawSegments(t *testing.T) {
	chunks := make([]string, 12)
	for i := range chunks {
		chunks[i] = strings.Repeat("y", 1500)
	}
	got := rawSegments(chunks)
	require.Len(t, got, rawSourceChunks)
	assert.Len(t, got[0], rawSourceChars)
}

func TestFastPathSource(t *testing.T) {
	bullets := []types.ExtractiveBullet{
		{Text: "Chose Postgres", Quote: "use Postgres", SourceID: "[C1]"},
		{Text: "Budget 200ms", SourceID: "[C2]"},
		{Text: "Third", SourceID: "[C3]"},
	}
	got := fastPathSource(bullets, 2)
	assert.Equal(t, "Chose Postgres \"use Postgres\" [C1]\nBudget 200ms [C2]", got)
}

func TestBudget(t *testing.T) {
	b := NewBudget(steppingClock(50*time.Second), 60*time.Second, 45*time.Second)
	assert.True(t, b.FastPath())
	assert.False(t, b.Expired())
	assert.Equal(t, 10*time.Second, b.Remaining())

	b = NewBudget(steppingClock(70*time.Second), 60*time.Second, 45*time.Second)
	assert.True(t, b.Expired())
	assert.Equal(t, time.Duration(0), b.Remaining())

	b = NewBudget(steppingClock(time.Hour), 0, 0)
	assert.False(t, b.FastPath())
	assert.False(t, b.Expired())
}

func TestReporter(t *testing.T) {
	events := &eventLog{}
	r := NewReporter(events.add, nil)

	r.Step(steps.StepStart, "go")
	r.Begin(RevisionContinuity)
	r.Step(steps.StepSelect, "")
	r.Chunks(steps.StepExtract, 1, 2)
	r.Chunks(steps.StepExtract, 2, 2)
	r.Step(steps.StepExtract, "")
	r.Step(steps.StepPrimer, "")
	assert.True(t, r.done(steps.StepStart))
	assert.True(t, r.done(steps.StepPrimer))

	// a fallback variant restarts its steps but percent never goes back
	r.Begin(RevisionMapReduce)
	assert.True(t, r.done(steps.StepStart))
	assert.False(t, r.done(steps.StepPrimer))
	r.Chunks(steps.StepMap, 1, 4)

	all := events.all()
	require.Len(t, all, 7)
	assert.Equal(t, 22, all[2].Percent)
	assert.Equal(t, 1, all[2].Processed)
	assert.Equal(t, 70, all[5].Percent)
	assert.Equal(t, 70, all[6].Percent)
	assert.Equal(t, RevisionMapReduce, all[6].Variant)
	assert.Equal(t, 70, r.Percent())
}
