package pipeline

import (
	"sync"

	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step      string `json:"step"`
	Stage     string `json:"stage"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	Variant   string `json:"variant,omitempty"`
	Processed int    `json:"processed,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// partialFloor and partialCeil bound the percent reported while chunks are
// being extracted or mapped
const (
	partialFloor = 5
	partialCeil  = 40
)

// Reporter turns step completions into progress events. Reported percent
// never decreases, including across a fallback to another variant.
// Callbacks run while the reporter's lock is held and must not call back into it.
type Reporter struct {
	mu         sync.Mutex
	onProgress ProgressCallback
	log        *logger.Logger
	variant    string
	completed  map[string]bool
	percent    int
}

// NewReporter creates a Reporter. cb may be nil.
func NewReporter(cb ProgressCallback, log *logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Reporter{onProgress: cb, log: log, completed: map[string]bool{}}
}

// Begin starts a variant. Step history is reset except for the start step.
func (r *Reporter) Begin(variant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variant = variant
	started := r.completed[steps.StepStart]
	r.completed = map[string]bool{steps.StepStart: started}
}

// Step marks a step complete and emits its percent
func (r *Reporter) Step(step, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := steps.ValidateDependencies(r.completed, step); err != nil {
		r.log.Warn("pipeline step out of order", "variant", r.variant, "error", err.Error())
	}
	r.completed[step] = true

	def := steps.StepRegistry[step]
	r.emit(ProgressEvent{Step: step, Stage: def.Stage, Percent: def.Percent, Message: message})
}

// Chunks reports partial progress of the extract or map step, scaled
// between 5 and 40 percent
func (r *Reporter) Chunks(step string, done, total int) {
	if total <= 0 {
		return
	}
	pct := partialFloor + (partialCeil-partialFloor)*done/total

	r.mu.Lock()
	defer r.mu.Unlock()
	def := steps.StepRegistry[step]
	r.emit(ProgressEvent{Step: step, Stage: def.Stage, Percent: pct, Processed: done, Total: total})
}

// Percent returns the highest percent reported so far
func (r *Reporter) Percent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.percent
}

// done reports whether step has completed in the current variant
func (r *Reporter) done(step string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[step]
}

func (r *Reporter) emit(ev ProgressEvent) {
	if ev.Percent < r.percent {
		ev.Percent = r.percent
	}
	r.percent = ev.Percent
	ev.Variant = r.variant
	if r.onProgress != nil {
		r.onProgress(ev)
	}
}
