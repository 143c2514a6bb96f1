package app

import (
	"context"
	"testing"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/HampusCastle/BankApp-Backend-sub000/pkg/rabbitmq"
	"github.com/google/uuid"
)

type publisherStub struct {
	rabbitmq.Publisher
	exchange   string
	routingKey string
	body       interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.exchange = exchange
	p.routingKey = routingKey
	p.body = body
	return nil
}

func TestBrokerNotifier_PublishesTypedRoutingKey(t *testing.T) {
	publisher := &publisherStub{}
	clock := newFixedClock(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))
	notifier := NewBrokerNotifier(publisher, "bank.events", clock)

	if err := notifier.Notify(context.Background(), "user-1", "hello", "transfer"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if publisher.exchange != "bank.events" || publisher.routingKey != "notification.transfer" {
		t.Fatalf("unexpected destination %s/%s", publisher.exchange, publisher.routingKey)
	}
	event, ok := publisher.body.(domain.NotificationEvent)
	if !ok {
		t.Fatalf("unexpected body type %T", publisher.body)
	}
	if event.OwnerID != "user-1" || event.Message != "hello" || !event.Timestamp.Equal(clock.Now()) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestStoreActivityLogger_WritesEntry(t *testing.T) {
	repo := store.NewMemoryRepository()
	logger := NewStoreActivityLogger(repo, SystemClock{})

	if err := logger.Log(context.Background(), "user-1", TransferActivityAction, "details"); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries, _ := repo.FindActivityLogsByOwnerID(context.Background(), "user-1", 10)
	if len(entries) != 1 || entries[0].Action != TransferActivityAction || entries[0].ID == uuid.Nil {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		12345:  "123.45",
		100000: "1000.00",
	}
	for minor, want := range tests {
		if got := FormatAmount(minor); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", minor, got, want)
		}
	}
}

func TestAccountLocks_ReleaseDropsEntries(t *testing.T) {
	locks := newAccountLocks()
	a, b := uuid.New(), uuid.New()

	release := locks.acquire(b, a, a)
	if locks.size() != 2 {
		t.Fatalf("expected 2 held locks, got %d", locks.size())
	}
	release()
	if locks.size() != 0 {
		t.Fatalf("expected no lock entries after release, got %d", locks.size())
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	tests := map[time.Duration]int{
		0:                        1,
		200 * time.Millisecond:   1,
		time.Second:              1,
		1001 * time.Millisecond:  2,
		59500 * time.Millisecond: 60,
	}
	for ttl, want := range tests {
		if got := retryAfterSeconds(ttl); got != want {
			t.Fatalf("retryAfterSeconds(%s) = %d, want %d", ttl, got, want)
		}
	}
}

func TestRedisRateLimiter_DisabledWithoutLimit(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " bank:rl: ")
	if limiter.prefix != "bank:rl" {
		t.Fatalf("unexpected prefix %q", limiter.prefix)
	}
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "transfer", "user-1", 0, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected a no-op for a zero limit, got %d %d %v", count, retry, err)
	}
}
