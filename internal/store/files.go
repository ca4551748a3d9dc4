package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	StorageLocal = "local"
	StorageCloud = "cloud"
)

// File is an opaque upload record. Only locally resident text files
// are ever read by the worker; everything else is handed to the
// occipital processor by reference.
type File struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Storage   string    `json:"storage"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *Engine) AddFile(ctx context.Context, userID, name, mimeType, storage, path string) (*File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	f := &File{
		ID:        e.newID(),
		UserID:    userID,
		Name:      name,
		MimeType:  mimeType,
		Storage:   storage,
		Path:      path,
		CreatedAt: now,
	}
	if f.Storage == "" {
		f.Storage = StorageLocal
	}
	if f.MimeType == "" {
		f.MimeType = "application/octet-stream"
	}

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO files (id, user_id, name, mime_type, storage, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.UserID, f.Name, f.MimeType, f.Storage, f.Path, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("add file: %w", err)
	}
	return f, nil
}

func (e *Engine) GetFile(ctx context.Context, id string) (*File, error) {
	row := e.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, mime_type, storage, path, created_at
		FROM files WHERE id = ?
	`, id)

	var f File
	var createdAt string
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.MimeType, &f.Storage, &f.Path, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}
