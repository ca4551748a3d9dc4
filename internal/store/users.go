package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User carries the capability settings the router gates on.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	MemoryEnabled bool      `json:"memoryEnabled"`
	VisionEnabled bool      `json:"visionEnabled"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e *Engine) CreateUser(ctx context.Context, name, email string) (*User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	u := &User{
		ID:            e.newID(),
		Name:          name,
		Email:         email,
		MemoryEnabled: true,
		VisionEnabled: true,
		CreatedAt:     now,
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, memory_enabled, vision_enabled, created_at)
		VALUES (?, ?, ?, 1, 1, ?)
	`, u.ID, u.Name, u.Email, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (e *Engine) GetUser(ctx context.Context, id string) (*User, error) {
	row := e.db.QueryRowContext(ctx, `
		SELECT id, name, email, memory_enabled, vision_enabled, created_at
		FROM users WHERE id = ?
	`, id)

	var u User
	var memEnabled, visEnabled int
	var createdAt string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &memEnabled, &visEnabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.MemoryEnabled = memEnabled == 1
	u.VisionEnabled = visEnabled == 1
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (e *Engine) UpdateUserSettings(ctx context.Context, id string, memoryEnabled, visionEnabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.db.ExecContext(ctx, `
		UPDATE users SET memory_enabled = ?, vision_enabled = ? WHERE id = ?
	`, boolToInt(memoryEnabled), boolToInt(visionEnabled), id)
	if err != nil {
		return fmt.Errorf("update user settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user settings affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
