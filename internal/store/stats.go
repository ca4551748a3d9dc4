package store

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Stats summarizes a user's memory health for the dashboard endpoint.
type Stats struct {
	HealthScore   int `json:"healthScore"`
	TotalMemories int `json:"totalMemories"`
	DueCount      int `json:"dueCount"`
	TodaySaves    int `json:"todaySaves"`
}

func (e *Engine) UserStats(ctx context.Context, userID string) (*Stats, error) {
	now := time.Now().UTC()

	var total int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}

	var due int
	err = e.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE user_id = ? AND next_review_date <= ?
	`, userID, formatTime(now)).Scan(&due)
	if err != nil {
		return nil, fmt.Errorf("stats due: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var today int
	err = e.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE user_id = ? AND created_at >= ?
	`, userID, formatTime(dayStart)).Scan(&today)
	if err != nil {
		return nil, fmt.Errorf("stats today: %w", err)
	}

	health := 100
	if total > 0 {
		overdueRatio := float64(due) / float64(total)
		health = int(math.Round((1 - overdueRatio) * 100))
		if health < 0 {
			health = 0
		}
	}

	return &Stats{
		HealthScore:   health,
		TotalMemories: total,
		DueCount:      due,
		TodaySaves:    today,
	}, nil
}
