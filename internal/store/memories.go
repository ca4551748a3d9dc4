package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	MemoryAnswer  = "answer"
	MemoryFact    = "fact"
	MemorySummary = "summary"
	MemoryOther   = "other"
)

// Memory is a derived knowledge unit owned by exactly one user. The
// vector is empty until the stream consumer enriches it.
type Memory struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	WorkspaceID    string    `json:"workspaceId"`
	Content        string    `json:"content"`
	Context        string    `json:"context,omitempty"`
	Types          string    `json:"types"`
	BrainReqID     string    `json:"brainReqId,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Vector         []byte    `json:"-"`
	DecayRate      int       `json:"decayRate"`
	NextReviewDate time.Time `json:"nextReviewDate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// Similarity is set by vector recall, never persisted.
	Similarity float64 `json:"similarity,omitempty"`
}

type AddMemoryParams struct {
	UserID      string
	WorkspaceID string
	Content     string
	Context     string
	Types       string
	BrainReqID  string
	Tags        []string
}

func (e *Engine) AddMemory(ctx context.Context, p AddMemoryParams) (*Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	mem := &Memory{
		ID:             e.newID(),
		UserID:         p.UserID,
		WorkspaceID:    p.WorkspaceID,
		Content:        p.Content,
		Context:        p.Context,
		Types:          p.Types,
		BrainReqID:     p.BrainReqID,
		Tags:           p.Tags,
		NextReviewDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mem.WorkspaceID == "" {
		mem.WorkspaceID = "General"
	}
	if mem.Types == "" {
		mem.Types = MemoryAnswer
	}

	var tagsJSON any
	if len(mem.Tags) > 0 {
		b, err := json.Marshal(mem.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = string(b)
	}
	var reqID any
	if mem.BrainReqID != "" {
		reqID = mem.BrainReqID
	}

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO memories
			(id, user_id, workspace_id, content, context, types, brain_req_id, tags, decay_rate, next_review_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, mem.ID, mem.UserID, mem.WorkspaceID, mem.Content, mem.Context, mem.Types,
		reqID, tagsJSON, formatTime(now), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("add memory: %w", err)
	}
	return mem, nil
}

func (e *Engine) GetMemory(ctx context.Context, userID, id string) (*Memory, error) {
	row := e.db.QueryRowContext(ctx, selectMemory+` WHERE id = ? AND user_id = ?`, id, userID)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return mem, nil
}

func (e *Engine) ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := e.db.QueryContext(ctx,
		selectMemory+` WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories is the lexical path: case-insensitive substring match
// on content and context, most recent first.
func (e *Engine) SearchMemories(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := e.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = ?
		  AND (lower(content) LIKE ? OR lower(context) LIKE ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, needle, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (e *Engine) DeleteMemory(ctx context.Context, userID, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMemoryVector stores the embedding and appends enrichment tags.
// Keyed on memory id so re-delivery of the same event converges on the
// same final state.
func (e *Engine) SetMemoryVector(ctx context.Context, id string, vector []byte, tags []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row := e.db.QueryRowContext(ctx, `SELECT tags FROM memories WHERE id = ?`, id)
	var existing sql.NullString
	if err := row.Scan(&existing); err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("set vector read tags: %w", err)
	}

	merged := mergeTags(decodeTags(existing), tags)
	var tagsJSON any
	if len(merged) > 0 {
		b, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = string(b)
	}

	_, err := e.db.ExecContext(ctx, `
		UPDATE memories SET vector = ?, tags = ?, updated_at = ? WHERE id = ?
	`, vector, tagsJSON, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set vector: %w", err)
	}
	return nil
}

// VectorCandidates returns memories of the user that already carry an
// embedding, newest first, capped to the given pool size.
func (e *Engine) VectorCandidates(ctx context.Context, userID string, pool int) ([]Memory, error) {
	if pool <= 0 {
		pool = 50
	}
	rows, err := e.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = ? AND vector IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, pool)
	if err != nil {
		return nil, fmt.Errorf("vector candidates: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ReviewMemory applies the spaced-repetition update: a score of 3 or
// more deepens the decay rate by one, anything lower resets it. The
// next review lands 2^decayRate days out, or immediately at rate 0.
func (e *Engine) ReviewMemory(ctx context.Context, userID, id string, score int) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	row := e.db.QueryRowContext(ctx,
		`SELECT decay_rate FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	var decay int
	if err := row.Scan(&decay); err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	} else if err != nil {
		return time.Time{}, fmt.Errorf("review read: %w", err)
	}

	if score >= 3 {
		decay++
	} else {
		decay = 0
	}

	now := time.Now().UTC()
	next := now
	if decay > 0 {
		next = now.Add(time.Duration(1<<uint(decay)) * 24 * time.Hour)
	}

	_, err := e.db.ExecContext(ctx, `
		UPDATE memories SET decay_rate = ?, next_review_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, decay, formatTime(next), formatTime(now), id, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("review update: %w", err)
	}
	return next, nil
}

// RecentMemories returns memories created within the window, newest
// first, for the dream consolidation job.
func (e *Engine) RecentMemories(ctx context.Context, userID string, since time.Time, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := e.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SampleOlderMemories picks up to limit random memories created before
// the cutoff.
func (e *Engine) SampleOlderMemories(ctx context.Context, userID string, before time.Time, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 2
	}
	rows, err := e.db.QueryContext(ctx, selectMemory+`
		WHERE user_id = ? AND created_at < ?
		ORDER BY RANDOM()
		LIMIT ?
	`, userID, formatTime(before), limit)
	if err != nil {
		return nil, fmt.Errorf("sample older memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// MemoryOwners lists distinct user ids holding at least one memory.
func (e *Engine) MemoryOwners(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("memory owners: %w", err)
	}
	defer rows.Close()

	owners := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return owners, nil
}

const selectMemory = `
	SELECT id, user_id, workspace_id, content, context, types, brain_req_id,
	       tags, vector, decay_rate, next_review_date, created_at, updated_at
	FROM memories`

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var reqID, tags sql.NullString
	var nextReview, createdAt, updatedAt string

	err := row.Scan(
		&m.ID, &m.UserID, &m.WorkspaceID, &m.Content, &m.Context, &m.Types,
		&reqID, &tags, &m.Vector, &m.DecayRate, &nextReview, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.BrainReqID = reqID.String
	m.Tags = decodeTags(tags)
	m.NextReviewDate = parseTime(nextReview)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	result := make([]Memory, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return result, nil
}

func decodeTags(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil
	}
	return tags
}

func mergeTags(existing, extra []string) []string {
	merged := make([]string, 0, len(existing)+len(extra))
	seen := make(map[string]struct{}, len(existing)+len(extra))
	for _, list := range [][]string{existing, extra} {
		for _, tag := range list {
			if tag = strings.TrimSpace(tag); tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	return merged
}
