package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

const (
	InputText  = "text"
	InputFile  = "file"
	InputImage = "image"
)

// BrainRequest is one durable unit of routed work.
type BrainRequest struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	WorkspaceID      string    `json:"workspaceId"`
	InputType        string    `json:"inputType"`
	Query            string    `json:"query"`
	FileID           string    `json:"fileId,omitempty"`
	Mode             string    `json:"mode,omitempty"`
	TargetLanguage   string    `json:"targetLanguage,omitempty"`
	RequestedLobe    string    `json:"requestedLobe"`
	SelectedLobe     string    `json:"selectedLobe,omitempty"`
	RouterReason     string    `json:"routerReason,omitempty"`
	RouterConfidence float64   `json:"routerConfidence,omitempty"`
	Status           string    `json:"status"`
	Output           string    `json:"output,omitempty"`
	Error            string    `json:"error,omitempty"`
	ClaimedAt        time.Time `json:"claimedAt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type CreateJobParams struct {
	UserID         string
	WorkspaceID    string
	Query          string
	FileID         string
	Mode           string
	TargetLanguage string
	RequestedLobe  string
	InputType      string
}

func (e *Engine) CreateJob(ctx context.Context, p CreateJobParams) (*BrainRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	req := &BrainRequest{
		ID:             e.newID(),
		UserID:         p.UserID,
		WorkspaceID:    p.WorkspaceID,
		InputType:      p.InputType,
		Query:          p.Query,
		FileID:         p.FileID,
		Mode:           p.Mode,
		TargetLanguage: p.TargetLanguage,
		RequestedLobe:  p.RequestedLobe,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = "General"
	}
	if req.InputType == "" {
		req.InputType = InputText
	}
	if req.RequestedLobe == "" {
		req.RequestedLobe = "auto"
	}

	var fileID any
	if req.FileID != "" {
		fileID = req.FileID
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO brain_requests
			(id, user_id, workspace_id, input_type, query, file_id, mode, target_language, requested_lobe, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.UserID, req.WorkspaceID, req.InputType, req.Query, fileID,
		req.Mode, req.TargetLanguage, req.RequestedLobe, req.Status,
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return req, nil
}

func (e *Engine) GetJob(ctx context.Context, id string) (*BrainRequest, error) {
	row := e.db.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return req, nil
}

// ClaimPending atomically transitions one pending request to
// processing and returns it. The conditional UPDATE guarantees at most
// one claimer wins even with concurrent workers: a claim succeeds only
// if the row is still pending at update time.
func (e *Engine) ClaimPending(ctx context.Context) (*BrainRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim begin: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM brain_requests WHERE status = ? ORDER BY id LIMIT 1`,
		StatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("claim select: %w", err)
	}

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		UPDATE brain_requests
		SET status = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusProcessing, now, now, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim affected: %w", err)
	}
	if affected != 1 {
		// Lost the race to another claimer.
		return nil, ErrNoPending
	}

	row := tx.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("claim read back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim commit: %w", err)
	}
	return req, nil
}

func (e *Engine) SetRouting(ctx context.Context, id, lobe, reason string, confidence float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.ExecContext(ctx, `
		UPDATE brain_requests
		SET selected_lobe = ?, router_reason = ?, router_confidence = ?, updated_at = ?
		WHERE id = ?
	`, lobe, reason, confidence, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set routing: %w", err)
	}
	return nil
}

func (e *Engine) CompleteJob(ctx context.Context, id, output string) error {
	return e.finishJob(ctx, id, StatusDone, output, "")
}

func (e *Engine) FailJob(ctx context.Context, id, message string) error {
	return e.finishJob(ctx, id, StatusError, "", message)
}

func (e *Engine) finishJob(ctx context.Context, id, status, output, errMsg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.db.ExecContext(ctx, `
		UPDATE brain_requests
		SET status = ?, output = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, output, errMsg, formatTime(time.Now()), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("finish job %s: not in processing state", id)
	}
	return nil
}

// ReapStale requeues requests stuck in processing longer than maxAge,
// using the same conditional-update primitive as the claim. Returns
// the number of requeued requests.
func (e *Engine) ReapStale(ctx context.Context, maxAge time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-maxAge))
	res, err := e.db.ExecContext(ctx, `
		UPDATE brain_requests
		SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?
	`, StatusPending, formatTime(time.Now()), StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap affected: %w", err)
	}
	return int(affected), nil
}

const selectRequest = `
	SELECT id, user_id, workspace_id, input_type, query, file_id, mode, target_language,
	       requested_lobe, selected_lobe, router_reason, router_confidence,
	       status, output, error, claimed_at, created_at, updated_at
	FROM brain_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*BrainRequest, error) {
	var req BrainRequest
	var fileID, selectedLobe, reason, output, errMsg, claimedAt sql.NullString
	var confidence sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&req.ID, &req.UserID, &req.WorkspaceID, &req.InputType, &req.Query,
		&fileID, &req.Mode, &req.TargetLanguage, &req.RequestedLobe,
		&selectedLobe, &reason, &confidence,
		&req.Status, &output, &errMsg, &claimedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.FileID = fileID.String
	req.SelectedLobe = selectedLobe.String
	req.RouterReason = reason.String
	req.RouterConfidence = confidence.Float64
	req.Output = output.String
	req.Error = errMsg.String
	if claimedAt.Valid {
		req.ClaimedAt = parseTime(claimedAt.String)
	}
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return &req, nil
}
