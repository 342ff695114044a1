package types

import "time"

// QuickSummaryChars bounds Checkpoint.QuickSummary
const QuickSummaryChars = 700

// Checkpoint is a saved capsule of older conversation text for one thread.
// Checkpoint summaries form the recall pool used to backfill evidence.
type Checkpoint struct {
	ThreadID         string    `json:"thread_id"`
	CheckpointNumber int       `json:"checkpoint_number"`
	FromMsgIdx       *int      `json:"from_msg_idx,omitempty"`
	ToMsgIdx         *int      `json:"to_msg_idx,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	QuickSummary     string    `json:"quick_summary"`
	ContentHash      string    `json:"content_hash"`
	ApproxTokens     int       `json:"approx_tokens"`
	TotalMessages    int       `json:"total_messages"`
	CreatedAt        time.Time `json:"created_at"`
}

// Text returns the best available summary text
func (c Checkpoint) Text() string {
	if c.QuickSummary != "" {
		return c.QuickSummary
	}
	return c.Summary
}
