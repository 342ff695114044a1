package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/continuity-handoff/internal/jobs"
	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/server/middleware"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// StartRequest is the body of POST /handoff/start and /handoff/stream
type StartRequest struct {
	Title    string   `json:"title" validate:"required,max=500"`
	ThreadID string   `json:"threadId" validate:"max=200"`
	Chunks   []string `json:"chunks" validate:"max=5000"`
	Plan     string   `json:"plan" validate:"omitempty,oneof=free vault"`
	UserID   string   `json:"userId" validate:"max=200"`
	Revision string   `json:"revision" validate:"max=40"`
}

// StartResponse is returned by POST /handoff/start
type StartResponse struct {
	OK    bool           `json:"ok"`
	JobID string         `json:"job_id"`
	Meta  jobs.StartMeta `json:"meta"`
}

// Progress counts processed chunks
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// StatusResponse is returned by GET /handoff/status
type StatusResponse struct {
	OK        bool     `json:"ok"`
	JobID     string   `json:"job_id"`
	Status    string   `json:"status"`
	Stage     string   `json:"stage"`
	Percent   int      `json:"percent"`
	Progress  Progress `json:"progress"`
	HasResult bool     `json:"has_result"`
	Result    string   `json:"result,omitempty"`
	Revision  string   `json:"zt_rev,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ResultMeta describes a finished job
type ResultMeta struct {
	Model            string   `json:"model"`
	TokenEstimate    int      `json:"token_estimate"`
	CheckpointCount  int      `json:"checkpoint_count"`
	Revision         string   `json:"zt_rev"`
	ContinuityScore  float64  `json:"continuity_score"`
	ActionValidity   float64  `json:"action_validity"`
	EvidenceDensity  float64  `json:"evidence_density"`
	PrimerCoverage   float64  `json:"primer_coverage"`
	CoverageBySource float64  `json:"coverage_by_source"`
	FallbackReason   string   `json:"fallback_reason,omitempty"`
	GateReasons      []string `json:"gate_reasons,omitempty"`
	BundleHash       string   `json:"bundle_hash,omitempty"`
	Trimmed          bool     `json:"trimmed"`
}

// ResultResponse is returned by the blocking result fetch
type ResultResponse struct {
	OK        bool       `json:"ok"`
	JobID     string     `json:"job_id"`
	Meta      ResultMeta `json:"meta"`
	Result    string     `json:"result"`
	Injection string     `json:"injection,omitempty"`
}

// ResultRequest is the body of POST /handoff/result
type ResultRequest struct {
	Job string `json:"job" validate:"required"`
}

// CheckpointRequest is the body of POST /checkpoints
type CheckpointRequest struct {
	ThreadID         string   `json:"threadId" validate:"required,max=200"`
	Chunks           []string `json:"chunks" validate:"required,min=1,max=5000"`
	FromMsgIdx       *int     `json:"fromMsgIdx" validate:"omitempty,min=0"`
	ToMsgIdx         *int     `json:"toMsgIdx" validate:"omitempty,min=0"`
	CheckpointNumber int      `json:"checkpointNumber" validate:"min=0"`
	Summary          string   `json:"summary"`
}

// CheckpointResponse is returned by POST /checkpoints
type CheckpointResponse struct {
	OK               bool   `json:"ok"`
	CheckpointNumber int    `json:"checkpoint_number"`
	ContentHash      string `json:"content_hash"`
}

// handleStart starts a pipeline run and returns the job id immediately
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}

	job, meta, err := s.jobs.Start(r.Context(), s.startRequest(r.Context(), req, nil))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, StartResponse{OK: true, JobID: job.ID.String(), Meta: meta})
}

// handleStatus reports job progress. It has no side effects.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(r.Context(), r.URL.Query().Get("job"))
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := StatusResponse{
		OK:        true,
		JobID:     job.ID.String(),
		Status:    job.Status,
		Stage:     job.Stage,
		Percent:   job.Percent,
		Progress:  Progress{Processed: job.ProcessedChunks, Total: job.TotalChunks},
		HasResult: job.HasResult(),
		Revision:  job.Revision,
		Error:     job.Error,
	}
	if job.Status == types.StatusDone {
		resp.Result = job.Result
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleResult blocks until the job's result is final and stable
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("job")
	if r.Method == http.MethodPost {
		var req ResultRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, err)
			return
		}
		raw = req.Job
	}

	job, err := s.ownedJob(r.Context(), raw)
	if err != nil {
		s.fail(w, err)
		return
	}
	job, err = s.jobs.AwaitResult(r.Context(), job.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resultResponse(job))
}

// handleStream starts a pipeline run and streams its progress as SSE
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}

	events := make(chan pipeline.ProgressEvent, 64)
	onProgress := func(ev pipeline.ProgressEvent) {
		select {
		case events <- ev:
		default:
		}
	}
	job, meta, err := s.jobs.Start(r.Context(), s.startRequest(r.Context(), req, onProgress))
	if err != nil {
		s.fail(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sse.WriteEvent(EventStarted, StartResponse{OK: true, JobID: job.ID.String(), Meta: meta}); err != nil {
		return
	}

	type outcome struct {
		job *types.Job
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		j, err := s.jobs.AwaitResult(r.Context(), job.ID)
		done <- outcome{j, err}
	}()

	for {
		select {
		case ev := <-events:
			if err := sse.WriteEvent(EventProgress, ev); err != nil {
				return
			}
		case out := <-done:
			for drained := false; !drained; {
				select {
				case ev := <-events:
					sse.WriteEvent(EventProgress, ev) //nolint:errcheck
				default:
					drained = true
				}
			}
			if out.err != nil {
				sse.WriteError(out.err.Error())
				return
			}
			sse.WriteEvent(EventComplete, resultResponse(out.job)) //nolint:errcheck
			return
		}
	}
}

// handleSaveCheckpoint stores older conversation text for a thread's recall pool
func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req CheckpointRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}

	cp, err := s.jobs.SaveCheckpoint(r.Context(), jobs.CheckpointRequest{
		ThreadID:         req.ThreadID,
		Chunks:           req.Chunks,
		FromMsgIdx:       req.FromMsgIdx,
		ToMsgIdx:         req.ToMsgIdx,
		CheckpointNumber: req.CheckpointNumber,
		Summary:          req.Summary,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CheckpointResponse{OK: true, CheckpointNumber: cp.CheckpointNumber, ContentHash: cp.ContentHash})
}

// decode reads a size-capped JSON body into v and validates it
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return tooLarge
		}
		return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// startRequest builds the service request. An authenticated user overrides
// the body's userId.
func (s *Server) startRequest(ctx context.Context, req StartRequest, onProgress pipeline.ProgressCallback) jobs.StartRequest {
	userID := req.UserID
	if id, ok := middleware.UserID(ctx); ok {
		userID = id
	}
	return jobs.StartRequest{
		Title:      strings.TrimSpace(req.Title),
		ThreadID:   req.ThreadID,
		Chunks:     req.Chunks,
		Plan:       req.Plan,
		UserID:     userID,
		Revision:   req.Revision,
		OnProgress: onProgress,
	}
}

// ownedJob loads a job by id. Jobs of other authenticated users are reported
// as not found.
func (s *Server) ownedJob(ctx context.Context, raw string) (*types.Job, error) {
	if raw == "" {
		return nil, &ErrValidation{Field: "job", Message: "required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &ErrValidation{Field: "job", Message: "not a valid job id"}
	}
	job, err := s.jobs.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if user, ok := middleware.UserID(ctx); ok && job.UserID != "" && job.UserID != user {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, raw)
	}
	return job, nil
}

func resultResponse(job *types.Job) ResultResponse {
	return ResultResponse{
		OK:    true,
		JobID: job.ID.String(),
		Meta: ResultMeta{
			Model:            job.Model,
			TokenEstimate:    job.TokenEstimate,
			CheckpointCount:  job.CheckpointCount,
			Revision:         job.Revision,
			ContinuityScore:  job.ContinuityScore,
			ActionValidity:   job.ActionValidity,
			EvidenceDensity:  job.EvidenceDensity,
			PrimerCoverage:   job.PrimerCoverage,
			CoverageBySource: job.CoverageBySource,
			FallbackReason:   job.FallbackReason,
			GateReasons:      job.GateReasons,
			BundleHash:       job.BundleHash,
			Trimmed:          job.Trimmed,
		},
		Result:    job.Result,
		Injection: job.Injection,
	}
}
