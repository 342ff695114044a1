package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobUpdate_Apply(t *testing.T) {
	job := &Job{Stage: StageMapping, Status: StatusRunning, Percent: 40}

	JobUpdate{
		Stage:   Ptr(StageReduce),
		Percent: Ptr(70),
		Score:   &QualityScore{Composite: 0.92, ActionValidity: 1, EvidenceDensity: 0.8, PrimerCoverage: 1},
	}.Apply(job)

	assert.Equal(t, StageReduce, job.Stage)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 70, job.Percent)
	assert.Equal(t, 0.92, job.ContinuityScore)
	assert.Equal(t, 0.8, job.EvidenceDensity)
	assert.False(t, job.UpdatedAt.IsZero())
}

func TestJobUpdate_PercentMonotonic(t *testing.T) {
	job := &Job{Percent: 70}
	JobUpdate{Percent: Ptr(40)}.Apply(job)
	assert.Equal(t, 70, job.Percent)
}

func TestJob_HasResult(t *testing.T) {
	var nilJob *Job
	assert.False(t, nilJob.HasResult())
	assert.False(t, (&Job{}).HasResult())
	assert.True(t, (&Job{Result: NoInputResult}).HasResult())
}

func TestIsOwnerRole(t *testing.T) {
	assert.True(t, IsOwnerRole("Engineering"))
	assert.False(t, IsOwnerRole("engineering"))
	assert.False(t, IsOwnerRole("dev"))
	assert.Len(t, RequiredBundleKeys, 12)
}

func TestCheckpoint_Text(t *testing.T) {
	assert.Equal(t, "quick", Checkpoint{QuickSummary: "quick", Summary: "long"}.Text())
	assert.Equal(t, "long", Checkpoint{Summary: "long"}.Text())
}
