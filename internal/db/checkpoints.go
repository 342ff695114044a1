package db

import (
	"context"
	"fmt"

	"github.com/jonathan/continuity-handoff/internal/types"
)

// -----------------------------------------------------------------------------
// Checkpoint Methods (implements jobs.CheckpointStore)
// -----------------------------------------------------------------------------

// NextCheckpointNumber returns one more than the highest number saved for the thread
func (db *DB) NextCheckpointNumber(ctx context.Context, threadID string) (int, error) {
	var next int
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(checkpoint_number), 0) + 1 FROM checkpoints WHERE thread_id = $1`,
		threadID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next checkpoint number: %w", err)
	}
	return next, nil
}

// SaveCheckpoint inserts a checkpoint or replaces the one with the same number
func (db *DB) SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, checkpoint_number, from_msg_idx, to_msg_idx, summary,
		                          quick_summary, content_hash, approx_tokens, total_messages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (thread_id, checkpoint_number) DO UPDATE SET
		   from_msg_idx = $3, to_msg_idx = $4, summary = $5, quick_summary = $6,
		   content_hash = $7, approx_tokens = $8, total_messages = $9, created_at = $10`,
		cp.ThreadID, cp.CheckpointNumber, cp.FromMsgIdx, cp.ToMsgIdx, cp.Summary,
		cp.QuickSummary, cp.ContentHash, cp.ApproxTokens, cp.TotalMessages, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", cp.CheckpointNumber, err)
	}
	return nil
}

// ListCheckpoints returns up to limit checkpoints of a thread, newest first
func (db *DB) ListCheckpoints(ctx context.Context, threadID string, limit int) ([]types.Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT thread_id, checkpoint_number, from_msg_idx, to_msg_idx, summary,
		        quick_summary, content_hash, approx_tokens, total_messages, created_at
		 FROM checkpoints WHERE thread_id = $1
		 ORDER BY checkpoint_number DESC LIMIT $2`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var list []types.Checkpoint
	for rows.Next() {
		var cp types.Checkpoint
		if err := rows.Scan(&cp.ThreadID, &cp.CheckpointNumber, &cp.FromMsgIdx, &cp.ToMsgIdx, &cp.Summary,
			&cp.QuickSummary, &cp.ContentHash, &cp.ApproxTokens, &cp.TotalMessages, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}

// CountCheckpoints returns the number of checkpoints saved for the thread
func (db *DB) CountCheckpoints(ctx context.Context, threadID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM checkpoints WHERE thread_id = $1`, threadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return n, nil
}
