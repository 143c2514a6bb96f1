/**
 * @description
 * Side-effect collaborators invoked after a transfer commits: the notifier that
 * publishes user notifications to RabbitMQ and the activity logger that writes
 * the audit trail. Both are best effort; the engine logs their failures and
 * never rolls a transfer back because of them.
 */

package app

import (
	"context"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/HampusCastle/BankApp-Backend-sub000/pkg/rabbitmq"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier delivers a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, ownerID, message, notificationType string) error
}

// ActivityLogger records a user action.
type ActivityLogger interface {
	Log(ctx context.Context, ownerID, action, details string) error
}

// BrokerNotifier publishes notification events to a topic exchange using the
// routing key "notification.<type>".
type BrokerNotifier struct {
	publisher rabbitmq.Publisher
	exchange  string
	clock     Clock
}

func NewBrokerNotifier(publisher rabbitmq.Publisher, exchange string, clock Clock) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher, exchange: exchange, clock: clock}
}

func (n *BrokerNotifier) Notify(ctx context.Context, ownerID, message, notificationType string) error {
	event := domain.NotificationEvent{
		OwnerID:   ownerID,
		Message:   message,
		Type:      notificationType,
		Timestamp: n.clock.Now(),
	}
	return n.publisher.Publish(ctx, n.exchange, "notification."+notificationType, event)
}

// StoreActivityLogger writes activity entries to the activity log repository.
type StoreActivityLogger struct {
	repo  store.ActivityLogRepository
	clock Clock
}

func NewStoreActivityLogger(repo store.ActivityLogRepository, clock Clock) *StoreActivityLogger {
	return &StoreActivityLogger{repo: repo, clock: clock}
}

func (l *StoreActivityLogger) Log(ctx context.Context, ownerID, action, details string) error {
	return l.repo.CreateActivityLog(ctx, &domain.ActivityLog{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Action:    action,
		Details:   details,
		CreatedAt: l.clock.Now(),
	})
}

// FormatAmount renders a minor-unit amount with two decimal places.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
