package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/schemas"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
	embedded "github.com/jonathan/continuity-handoff/schemas"
)

// recallLimit caps the checkpoints loaded into a run's recall pool
const recallLimit = 50

// Pipeline runs one handoff. *pipeline.Runner implements it.
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Input, revision string, onProgress pipeline.ProgressCallback) (*pipeline.Result, error)
}

// StartRequest is the input of Service.Start
type StartRequest struct {
	Title    string
	ThreadID string
	Chunks   []string
	Plan     string
	UserID   string
	Revision string
	// OnProgress, when set, also receives every pipeline progress event
	OnProgress pipeline.ProgressCallback
}

// StartMeta describes a started job
type StartMeta struct {
	Model           string `json:"model"`
	TokenEstimate   int    `json:"token_estimate"`
	CheckpointCount int    `json:"checkpoint_count"`
	Revision        string `json:"zt_rev"`
}

// CheckpointRequest is the input of Service.SaveCheckpoint. A zero
// CheckpointNumber takes the next number for the thread.
type CheckpointRequest struct {
	ThreadID         string
	Chunks           []string
	FromMsgIdx       *int
	ToMsgIdx         *int
	CheckpointNumber int
	Summary          string
}

// Service starts pipeline runs in the background and serves their status
type Service struct {
	pipeline    Pipeline
	store       Store
	checkpoints CheckpointStore
	policy      config.Policy
	log         *logger.Logger
	wg          sync.WaitGroup
}

// NewService creates a Service. checkpoints may be nil, in which case runs
// get no recall pool and SaveCheckpoint is unavailable.
func NewService(p Pipeline, store Store, checkpoints CheckpointStore, policy config.Policy, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		pipeline:    p,
		store:       store,
		checkpoints: checkpoints,
		policy:      policy.MergeWithDefaults(config.DefaultPolicy()),
		log:         log.With("service", "JobService"),
	}
}

// Start records a new job and runs the pipeline for it in the background.
// Zero chunks finish the job immediately with the "(no input)" result.
func (s *Service) Start(ctx context.Context, req StartRequest) (*types.Job, StartMeta, error) {
	plan := req.Plan
	if plan != types.PlanVault {
		plan = types.PlanFree
	}
	revision := req.Revision
	if !pipeline.KnownRevision(revision) {
		revision = pipeline.DefaultRevision
	}

	tokens := 0
	for _, c := range req.Chunks {
		tokens += textutil.EstimateTokens(c)
	}

	recall, count := s.recall(ctx, req.ThreadID)
	now := time.Now()
	job := &types.Job{
		ID:              uuid.New(),
		UserID:          req.UserID,
		ThreadID:        req.ThreadID,
		Title:           req.Title,
		Plan:            plan,
		Revision:        revision,
		Stage:           types.StageMapping,
		Status:          types.StatusRunning,
		Percent:         steps.Percent(steps.StepStart),
		TotalChunks:     len(req.Chunks),
		Model:           llm.DefaultConfig(plan).GetModel(llm.TierAdvanced),
		TokenEstimate:   tokens,
		CheckpointCount: count,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(req.Chunks) == 0 {
		job.Stage = types.StageFinal
		job.Status = types.StatusDone
		job.Percent = 100
		job.Result = types.NoInputResult
	}
	meta := StartMeta{
		Model:           job.Model,
		TokenEstimate:   job.TokenEstimate,
		CheckpointCount: job.CheckpointCount,
		Revision:        job.Revision,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, meta, fmt.Errorf("failed to create job: %w", err)
	}
	s.log.Info("job started",
		"job_id", job.ID.String(),
		"plan", plan,
		"revision", revision,
		"chunks", len(req.Chunks),
		"token_estimate", tokens)
	if len(req.Chunks) == 0 {
		return job, meta, nil
	}

	in := pipeline.Input{
		JobID:           job.ID.String(),
		Title:           req.Title,
		ThreadID:        req.ThreadID,
		Plan:            plan,
		Chunks:          req.Chunks,
		Recall:          recall,
		CheckpointCount: count,
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(runCtx, job.ID, in, revision, req.OnProgress)
	}()
	return job, meta, nil
}

// Wait blocks until every background run has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) execute(ctx context.Context, id uuid.UUID, in pipeline.Input, revision string, onProgress pipeline.ProgressCallback) {
	log := s.log.With("job_id", id.String())

	res, err := s.pipeline.Run(ctx, in, revision, func(ev pipeline.ProgressEvent) {
		if onProgress != nil {
			onProgress(ev)
		}
		if ev.Stage == types.StageFinal {
			return
		}
		u := types.JobUpdate{Stage: types.Ptr(ev.Stage), Percent: types.Ptr(ev.Percent)}
		if ev.Total > 0 {
			u.ProcessedChunks = types.Ptr(ev.Processed)
		}
		if _, uerr := s.store.UpdateJob(ctx, id, u); uerr != nil {
			log.Warn("progress update failed", "error", uerr.Error())
		}
	})
	if err != nil {
		log.Error("pipeline failed", "error", err.Error())
		_, uerr := s.store.UpdateJob(ctx, id, types.JobUpdate{
			Status: types.Ptr(types.StatusFailed),
			Error:  types.Ptr(err.Error()),
		})
		if uerr != nil {
			log.Warn("failure update failed", "error", uerr.Error())
		}
		return
	}

	u := types.JobUpdate{
		Stage:            types.Ptr(types.StageFinal),
		Status:           types.Ptr(types.StatusDone),
		Percent:          types.Ptr(100),
		ProcessedChunks:  types.Ptr(len(in.Chunks)),
		Result:           types.Ptr(res.Text),
		Revision:         types.Ptr(res.Revision),
		Score:            &res.Score,
		CoverageBySource: types.Ptr(res.CoverageBySource),
		FallbackReason:   types.Ptr(res.FallbackReason),
		GateReasons:      res.Gate.Reasons,
		BundleHash:       types.Ptr(res.BundleHash),
		Trimmed:          types.Ptr(res.Trimmed),
		Injection:        types.Ptr(res.Injection),
	}
	if res.Model != "" {
		u.Model = types.Ptr(res.Model)
	}
	if _, uerr := s.store.UpdateJob(ctx, id, u); uerr != nil {
		log.Error("completion update failed", "error", uerr.Error())
		return
	}
	log.Info("job done",
		"revision", res.Revision,
		"composite", res.Score.Composite,
		"fallback_reason", res.FallbackReason)
}

// Status returns the current job record. It has no side effects.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return s.store.GetJob(ctx, id)
}

// AwaitResult polls the job until it is final with a result whose length is
// unchanged across two consecutive reads. It returns ErrJobFailed for a failed
// job and ErrResultTimeout when the wait cap is reached first.
func (s *Service) AwaitResult(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	poll := config.Duration(s.policy.ResultPollMS)
	ctx, cancel := context.WithTimeout(ctx, config.Duration(s.policy.ResultTimeoutMS))
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastLen := -1
	for {
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrResultTimeout
			}
			return nil, err
		}
		if job.Status == types.StatusFailed {
			return job, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
		}
		if job.Stage == types.StageFinal && job.HasResult() {
			if len(job.Result) == lastLen {
				return job, nil
			}
			lastLen = len(job.Result)
		} else {
			lastLen = -1
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrResultTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveCheckpoint stores older conversation text as a checkpoint of its thread
func (s *Service) SaveCheckpoint(ctx context.Context, req CheckpointRequest) (*types.Checkpoint, error) {
	if s.checkpoints == nil {
		return nil, ErrCheckpointsUnavailable
	}
	text := strings.TrimSpace(strings.Join(req.Chunks, "\n\n"))
	if text == "" {
		return nil, fmt.Errorf("%w: no content", ErrInvalidCheckpoint)
	}

	number := req.CheckpointNumber
	if number <= 0 {
		next, err := s.checkpoints.NextCheckpointNumber(ctx, req.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("failed to number checkpoint: %w", err)
		}
		number = next
	}

	cp := &types.Checkpoint{
		ThreadID:         req.ThreadID,
		CheckpointNumber: number,
		FromMsgIdx:       req.FromMsgIdx,
		ToMsgIdx:         req.ToMsgIdx,
		Summary:          req.Summary,
		QuickSummary:     textutil.TruncateRunes(text, types.QuickSummaryChars),
		ContentHash:      textutil.ContentHash(text),
		ApproxTokens:     textutil.EstimateTokens(text),
		TotalMessages:    len(req.Chunks),
		CreatedAt:        time.Now().UTC(),
	}
	if err := schemas.ValidateValue(embedded.Checkpoint, cp); err != nil {
		return nil, err
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.log.Info("checkpoint saved",
		"thread_id", cp.ThreadID,
		"checkpoint_number", cp.CheckpointNumber,
		"approx_tokens", cp.ApproxTokens)
	return cp, nil
}

// recall loads the thread's checkpoint summaries. Errors degrade to no recall.
func (s *Service) recall(ctx context.Context, threadID string) ([]string, int) {
	if s.checkpoints == nil || threadID == "" {
		return nil, 0
	}
	count, err := s.checkpoints.CountCheckpoints(ctx, threadID)
	if err != nil {
		s.log.Warn("checkpoint count failed", "thread_id", threadID, "error", err.Error())
		return nil, 0
	}
	list, err := s.checkpoints.ListCheckpoints(ctx, threadID, recallLimit)
	if err != nil {
		s.log.Warn("checkpoint list failed", "thread_id", threadID, "error", err.Error())
		return nil, count
	}
	recall := make([]string, 0, len(list))
	for _, cp := range list {
		if t := cp.Text(); t != "" {
			recall = append(recall, t)
		}
	}
	return recall, count
}
