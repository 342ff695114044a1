package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/llm/llmtest"
)

const testTitle = "Event store migration"

// decisionChunks each carry one quotable decision sentence
var decisionChunks = []struct {
	chunk string
	quote string
}{
	{
		chunk: "user: We decided to use Postgres for the event store because it handles durability well.\n\nassistant: Agreed, Postgres it is.",
		quote: "We decided to use Postgres for the event store",
	},
	{
		chunk: "user: The decision is to keep the API latency budget at 200ms for every write.\n\nassistant: I will keep that in mind.",
		quote: "keep the API latency budget at 200ms",
	},
	{
		chunk: "user: We approved finishing the migration before the March launch.\n\nassistant: Then the scripts come first.",
		quote: "finishing the migration before the March launch",
	},
}

func chunkTexts() []string {
	out := make([]string, len(decisionChunks))
	for i, c := range decisionChunks {
		out[i] = c.chunk
	}
	return out
}

// Markers identifying each prompt by its system text
const (
	markExtract      = "Extract 1-2 bullets"
	markCompress     = "Compress the extracted bullets"
	markCompress2    = "SECOND COMPRESSION PASS"
	markPrimer       = "Produce STRICT JSON ONLY for the PRIMER"
	markDeep         = "DEEP CONTEXT PART ONLY"
	markRowRepair    = "Output an object containing ONLY"
	markDocRepair    = "Repair this continuity handoff"
	markMapDigest    = "condense one slice of a conversation"
	markMapBullets   = "precise mapper"
	markReduceBundle = "continuity PRIMER bundle with REQUIRED keys"
	markReduceDeep   = "DEEP CONTEXT ONLY"
)

var errScripted = errors.New("scripted failure")

func validRows() []map[string]any {
	actions := []string{
		"Draft migration plan producing plan.md",
		"Write event table migration producing 001_events.sql",
		"Benchmark write path producing bench.csv",
		"Configure replication producing replicas.yaml",
		"Document rollback steps producing rollback.md",
		"Review latency budget producing latency.md",
	}
	rows := make([]map[string]any, len(actions))
	for i, a := range actions {
		rows[i] = map[string]any{
			"action":   a,
			"owner":    "Engineering",
			"deps":     "Postgres access",
			"effort_h": 3,
			"impact":   "▲",
			"rollback": "Revert the migration branch",
			"evidence": fmt.Sprintf("[C%d]", i%3+1),
		}
	}
	return rows
}

// bundleJSON returns a complete primer bundle; mutate may edit it first
func bundleJSON(mutate func(map[string]any)) string {
	b := map[string]any{
		"system_instructions": []string{"Continue planning the event store migration"},
		"receiving_guide":     []string{"Read the decisions before proposing changes"},
		"user_profile": map[string]any{
			"language":      "English",
			"style":         []string{"concise"},
			"wants":         []string{"tradeoffs"},
			"avoid":         []string{"filler"},
			"detail_level":  "high",
			"format_prefs":  []string{"tables"},
			"target_models": []string{"gpt"},
		},
		"context_recap":  "The team is moving the event store to Postgres before the March launch.",
		"key_facts":      []string{"The API latency budget is 200ms per write"},
		"decisions":      []string{"Use Postgres for the event store"},
		"constraints":    []string{"Migration finishes before the March launch"},
		"active_work":    []string{"Writing the migration scripts"},
		"open_questions": []string{"How many read replicas are needed"},
		"next_actions":   validRows(),
		"first_task": map[string]any{
			"bullets":    []string{"Open the migration plan", "List the event tables", "Estimate row counts"},
			"acceptance": []string{"Plan lists every table", "Row counts recorded", "Owner assigned", "Rollback documented"},
		},
		"injection_templates": map[string]any{
			"gpt":    "Continue the Postgres event store migration plan.",
			"claude": "Continue the Postgres event store migration plan.",
			"gemini": "Continue the Postgres event store migration plan.",
		},
	}
	if mutate != nil {
		mutate(b)
	}
	raw, _ := json.Marshal(b)
	return string(raw)
}

const deepText = "- Postgres was chosen for durability [C1]\n- The API latency budget is 200ms [C2]\n- The migration must finish before launch [C3]"

const mapDigestJSON = `{"objectives":["Move the event store to Postgres before launch"],` +
	`"facts":["The API latency budget is 200ms per write","Postgres handles durability for the event store"],` +
	`"decisions":["Use Postgres for the event store"],"risks":["Launch date is fixed in March"],` +
	`"next_actions":["Write the migration scripts"],"terms":{"ES":"event store"}}`

// script is a scripted completion service keyed by prompt marker
type script struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]bool
}

func newScript() *script {
	return &script{
		responses: map[string]string{
			markCompress:     "Key Facts: Postgres chosen [C1]; latency budget 200ms [C2]; finish before launch [C3]",
			markCompress2:    "Postgres chosen [C1]; 200ms budget [C2]",
			markPrimer:       bundleJSON(nil),
			markDeep:         deepText,
			markRowRepair:    `{"action":"Draft rollout plan producing rollout.md"}`,
			markDocRepair:    "",
			markMapDigest:    mapDigestJSON,
			markMapBullets:   "- Objective: move to Postgres\n- Fact: 200ms budget\n- Decision: Postgres for events\n- Risk: fixed launch date in March",
			markReduceBundle: bundleJSON(nil),
			markReduceDeep:   "- Postgres chosen [S1]\n- Latency budget 200ms [S2]\n- Migration before launch [S3]",
		},
		failures: map[string]bool{markDocRepair: true},
	}
}

func (s *script) set(mark, response string) *script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[mark] = response
	delete(s.failures, mark)
	return s
}

func (s *script) fail(marks ...string) *script {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range marks {
		s.failures[m] = true
	}
	return s
}

func (s *script) respond(_ string, req llm.Request) (string, error) {
	if strings.Contains(req.System, markExtract) {
		s.mu.Lock()
		failed := s.failures[markExtract]
		s.mu.Unlock()
		if failed {
			return "", errScripted
		}
		return extractResponse(req.Prompt), nil
	}

	// ordered so that a marker never shadows a more specific one
	marks := []string{
		markDocRepair, markRowRepair, markCompress2, markCompress, markPrimer,
		markDeep, markMapBullets, markReduceBundle, markReduceDeep, markMapDigest,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range marks {
		if strings.Contains(req.System, m) || (req.System == "" && strings.Contains(req.Prompt, m)) {
			if s.failures[m] {
				return "", errScripted
			}
			return s.responses[m], nil
		}
	}
	return "", errScripted
}

// extractResponse returns one bullet quoting the known decision in the chunk
func extractResponse(prompt string) string {
	for _, c := range decisionChunks {
		if strings.Contains(prompt, c.quote) {
			raw, _ := json.Marshal(map[string]any{
				"bullets": []map[string]string{{"text": "Decision: " + c.quote, "quote": c.quote, "id": "C0"}},
			})
			return string(raw)
		}
	}
	return `{"bullets":[]}`
}

func newTestClient(s *script) *llmtest.Client {
	c := llmtest.New(llm.ProviderOpenAI)
	c.Respond = s.respond
	return c
}

func testDeps(c *llmtest.Client) Deps {
	return Deps{
		Clients:  c.Clients(),
		Embedder: embedding.NewHashProvider(),
		Policy:   config.DefaultPolicy(),
	}
}

// callsMatching counts recorded requests whose system or prompt contains mark
func callsMatching(c *llmtest.Client, mark string) int {
	n := 0
	for _, call := range c.Calls() {
		if strings.Contains(call.Request.System, mark) || strings.Contains(call.Request.Prompt, mark) {
			n++
		}
	}
	return n
}

// steppingClock returns start on the first call and start+after afterwards
func steppingClock(after time.Duration) func() time.Time {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	return func() time.Time {
		if calls.Add(1) == 1 {
			return start
		}
		return start.Add(after)
	}
}

// eventLog collects progress events
type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) add(ev ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProgressEvent(nil), l.events...)
}
