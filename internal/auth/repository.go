package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types recorded in the auth audit trail.
const (
	EventSignup = "signup"
	EventLogin  = "login"
)

// Repository records authentication events for auditing.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new auth Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordEvent appends an authentication event for the given user.
func (r *Repository) RecordEvent(ctx context.Context, eventType, userID, email string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO auth_events (event_type, user_id, email) VALUES ($1, $2, $3)`,
		eventType, userID, email,
	)
	if err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}
	return nil
}
