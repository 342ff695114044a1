// Package steps defines the handoff pipeline steps, the job stage and progress
// percent each one reports, and the order they may complete in.
package steps

import (
	"fmt"

	"github.com/jonathan/continuity-handoff/internal/types"
)

// Step names
const (
	StepStart    = "start"
	StepSelect   = "select"
	StepExtract  = "extract"
	StepMap      = "map"
	StepCompress = "compress"
	StepPrimer   = "primer"
	StepReduce   = "reduce"
	StepEnforce  = "enforce"
	StepScore    = "score"
	StepAssemble = "assemble"
	StepFinal    = "final"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Stage        string // job stage reported while the step runs
	Percent      int    // job percent once the step completes
	Dependencies []string
	// AnyOf is satisfied when at least one listed step has completed
	AnyOf []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	StepStart: {
		Name:    StepStart,
		Stage:   types.StageMapping,
		Percent: 5,
	},
	StepSelect: {
		Name:         StepSelect,
		Stage:        types.StageMapping,
		Percent:      8,
		Dependencies: []string{StepStart},
	},
	StepExtract: {
		Name:         StepExtract,
		Stage:        types.StageMapping,
		Percent:      40,
		Dependencies: []string{StepSelect},
	},
	StepMap: {
		Name:         StepMap,
		Stage:        types.StageMapping,
		Percent:      40,
		Dependencies: []string{StepStart},
	},
	StepCompress: {
		Name:         StepCompress,
		Stage:        types.StageReduce,
		Percent:      60,
		Dependencies: []string{StepExtract},
	},
	StepPrimer: {
		Name:         StepPrimer,
		Stage:        types.StageReduce,
		Percent:      70,
		Dependencies: []string{StepExtract},
	},
	StepReduce: {
		Name:         StepReduce,
		Stage:        types.StageReduce,
		Percent:      70,
		Dependencies: []string{StepMap},
	},
	StepEnforce: {
		Name:    StepEnforce,
		Stage:   types.StageReduce,
		Percent: 85,
		AnyOf:   []string{StepPrimer, StepReduce},
	},
	StepScore: {
		Name:         StepScore,
		Stage:        types.StageReduce,
		Percent:      85,
		Dependencies: []string{StepEnforce},
	},
	StepAssemble: {
		Name:         StepAssemble,
		Stage:        types.StageReduce,
		Percent:      95,
		Dependencies: []string{StepScore},
	},
	StepFinal: {
		Name:    StepFinal,
		Stage:   types.StageFinal,
		Percent: 100,
	},
}

// Percent returns the completion percent of a step, or 0 for unknown steps
func Percent(step string) int {
	return StepRegistry[step].Percent
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks that the step's dependencies are in completed
func ValidateDependencies(completed map[string]bool, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	if len(def.AnyOf) > 0 {
		found := false
		for _, dep := range def.AnyOf {
			if completed[dep] {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, def.AnyOf...)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}
