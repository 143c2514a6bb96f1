package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityLog is an audit entry describing something a user did.
type ActivityLog struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationEvent is the message payload published to RabbitMQ for the
// notification consumers.
type NotificationEvent struct {
	OwnerID   string    `json:"owner_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
