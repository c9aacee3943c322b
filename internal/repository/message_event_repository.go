package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/retention-engine/internal/model"
)

// MessageEventRepositoryInterface is append-only.
type MessageEventRepositoryInterface interface {
	Append(ctx context.Context, e *model.MessageEvent) error
	ListByIntervention(ctx context.Context, interventionID string) ([]model.MessageEvent, error)
}

type MessageEventRepository struct {
	DB *sql.DB
}

func (r *MessageEventRepository) Append(ctx context.Context, e *model.MessageEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO message_events (id, intervention_id, type, payload, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.InterventionID, e.Type, []byte(payload), e.CreatedAt)
	return err
}

func (r *MessageEventRepository) ListByIntervention(ctx context.Context, interventionID string) ([]model.MessageEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, intervention_id, type, payload, created_at
        FROM message_events WHERE intervention_id=$1
        ORDER BY created_at, id`, interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.MessageEvent{}
	for rows.Next() {
		var e model.MessageEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.InterventionID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ MessageEventRepositoryInterface = (*MessageEventRepository)(nil)
