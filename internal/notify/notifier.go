// Package notify queues user notifications on a Redis list and drains
// them from the worker process. Delivery is best-effort and always
// outside the saga's transaction.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const notificationsKey = "notifications:outbox"

// Notification types.
const (
	TypePaymentFailed      = "payment_failed"
	TypeOrderConfirmation  = "order_confirmation"
	TypeRenewalNotice      = "renewal_notice"
	TypeSubscriptionUpdate = "subscription_update"
)

type Message struct {
	ID        string         `json:"id"`
	UserID    int64          `json:"user_id"`
	Type      string         `json:"type"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier is the sink the billing processor sends user-facing messages to.
type Notifier interface {
	Send(ctx context.Context, userID int64, msgType, body string, metadata map[string]any) error
}

// RedisNotifier pushes messages onto a Redis list for the worker to drain.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Send(ctx context.Context, userID int64, msgType, body string, metadata map[string]any) error {
	msg := Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      msgType,
		Body:      body,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	if err := n.client.RPush(ctx, notificationsKey, data).Err(); err != nil {
		return fmt.Errorf("queueing notification: %w", err)
	}

	n.logger.Debug("notification queued", "user_id", userID, "type", msgType)
	return nil
}

// Drain pops and delivers queued notifications until ctx is cancelled.
// Delivery here is a structured log line; a real sender would sit behind
// the same loop.
func (n *RedisNotifier) Drain(ctx context.Context) {
	n.logger.Info("notification drain started")

	for {
		res, err := n.client.BLPop(ctx, time.Second, notificationsKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				n.logger.Info("notification drain stopped")
				return
			}
			if err != redis.Nil {
				n.logger.Error("failed to pop notification", "error", err)
			}
			continue
		}

		// BLPop returns [key, value]
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			n.logger.Error("failed to unmarshal notification", "error", err)
			continue
		}

		n.logger.Info("notification delivered",
			"notification_id", msg.ID,
			"user_id", msg.UserID,
			"type", msg.Type,
			"body", msg.Body,
		)
	}
}
