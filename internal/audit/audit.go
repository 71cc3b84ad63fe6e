// Package audit appends billing events to an append-only log. Writes are
// best-effort and always outside the saga's transaction: losing an audit
// row must never fail or roll back a billing attempt.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event actions recorded by the billing core.
const (
	ActionOrderCreated      = "order_created"
	ActionInventoryShortage = "inventory_shortage"
	ActionPaymentFailed     = "payment_failed"
	ActionStatusChanged     = "subscription_status_changed"
	ActionRestocked         = "inventory_restocked"
)

type Event struct {
	Action   string
	Entity   string
	EntityID int64
	UserID   int64
	Details  map[string]any
}

type Log struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLog(pool *pgxpool.Pool, logger *slog.Logger) *Log {
	return &Log{pool: pool, logger: logger}
}

// Append records an event. Failures are logged and swallowed.
func (l *Log) Append(ctx context.Context, ev Event) {
	details := []byte(`{}`)
	if ev.Details != nil {
		marshaled, err := json.Marshal(ev.Details)
		if err != nil {
			l.logger.Error("failed to marshal audit details", "error", err, "action", ev.Action)
		} else {
			details = marshaled
		}
	}

	var userID *int64
	if ev.UserID > 0 {
		userID = &ev.UserID
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, action, entity, entity_id, user_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), ev.Action, ev.Entity, ev.EntityID, userID, details)
	if err != nil {
		l.logger.Error("failed to append audit event",
			"error", err,
			"action", ev.Action,
			"entity", ev.Entity,
			"entity_id", ev.EntityID,
		)
	}
}
