package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/google/uuid"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock { return &fixedClock{now: now} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type notification struct {
	ownerID, message, kind string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, ownerID, message, notificationType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{ownerID: ownerID, message: message, kind: notificationType})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type recordingActivity struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (a *recordingActivity) Log(ctx context.Context, ownerID, action, details string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return a.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type engineFixture struct {
	engine   *TransferEngine
	repo     *store.MemoryRepository
	notifier *recordingNotifier
	activity *recordingActivity
	clock    *fixedClock
}

func newEngineFixture(t *testing.T) engineFixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	notifier := &recordingNotifier{}
	activity := &recordingActivity{}
	clock := newFixedClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	engine := NewTransferEngine(repo, notifier, activity, clock, quietLogger(), TransferEngineOptions{RetryBackoff: -1})
	return engineFixture{engine: engine, repo: repo, notifier: notifier, activity: activity, clock: clock}
}

func openAccount(t *testing.T, repo store.AccountRepository, ownerID string, balance int64) domain.Account {
	t.Helper()
	account, err := repo.CreateAccount(context.Background(), &domain.Account{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		AccountType: "checking",
		Balance:     balance,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return *account
}

func balanceOf(t *testing.T, repo store.AccountRepository, id uuid.UUID) int64 {
	t.Helper()
	account, err := repo.FindAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find account %s: %v", id, err)
	}
	return account.Balance
}

func transactionCount(t *testing.T, repo store.TransactionRepository, id uuid.UUID) int {
	t.Helper()
	txs, err := repo.FindTransactionsByAccountID(context.Background(), id)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return len(txs)
}

func TestTransfer_MovesFundsAndAppendsRecord(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 1000)
	b := openAccount(t, f.repo, "user-1", 500)

	record, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: 200,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := balanceOf(t, f.repo, a.ID); got != 800 {
		t.Fatalf("expected A=800, got %d", got)
	}
	if got := balanceOf(t, f.repo, b.ID); got != 700 {
		t.Fatalf("expected B=700, got %d", got)
	}
	if record.Amount != 200 || record.FromAccountID != a.ID || record.ToAccountID != b.ID {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.CategoryID != domain.DefaultCategoryID {
		t.Fatalf("expected default category, got %q", record.CategoryID)
	}
	if !record.Timestamp.Equal(f.clock.Now()) {
		t.Fatalf("expected record timestamp from clock, got %s", record.Timestamp)
	}
	if n := transactionCount(t, f.repo, a.ID); n != 1 {
		t.Fatalf("expected one transaction record, got %d", n)
	}
	if f.notifier.count() != 1 || f.notifier.calls[0].kind != TransferNotificationType || f.notifier.calls[0].ownerID != "user-1" {
		t.Fatalf("unexpected notifications %+v", f.notifier.calls)
	}
	if len(f.activity.actions) != 1 || f.activity.actions[0] != TransferActivityAction {
		t.Fatalf("unexpected activity %+v", f.activity.actions)
	}
}

func TestTransfer_InsufficientFundsChangesNothing(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 100)
	b := openAccount(t, f.repo, "user-1", 0)

	_, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: 150,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if balanceOf(t, f.repo, a.ID) != 100 || balanceOf(t, f.repo, b.ID) != 0 {
		t.Fatal("balances must be unchanged")
	}
	if transactionCount(t, f.repo, a.ID) != 0 {
		t.Fatal("no record may be appended")
	}
	if f.notifier.count() != 0 {
		t.Fatal("failed transfers must not notify")
	}
}

func TestTransfer_RejectsAccountsOfAnotherOwner(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 1000)
	b := openAccount(t, f.repo, "user-2", 0)

	_, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: 10,
	})
	if !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("expected ErrUnauthorizedAccount, got %v", err)
	}
	if balanceOf(t, f.repo, a.ID) != 1000 || balanceOf(t, f.repo, b.ID) != 0 {
		t.Fatal("balances must be unchanged")
	}
}

func TestTransfer_ValidationOrder(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 1000)
	missing := uuid.New()

	tests := []struct {
		name     string
		req      domain.TransferRequest
		wantErr  error
		wantSide string
	}{
		{name: "zero amount wins over same account", req: domain.TransferRequest{FromAccountID: a.ID, ToAccountID: a.ID, Amount: 0}, wantErr: ErrInvalidAmount},
		{name: "negative amount", req: domain.TransferRequest{FromAccountID: a.ID, ToAccountID: missing, Amount: -5}, wantErr: ErrInvalidAmount},
		{name: "same account", req: domain.TransferRequest{FromAccountID: a.ID, ToAccountID: a.ID, Amount: 5}, wantErr: ErrSameAccount},
		{name: "missing source", req: domain.TransferRequest{FromAccountID: missing, ToAccountID: a.ID, Amount: 5}, wantErr: store.ErrAccountNotFound, wantSide: "from"},
		{name: "missing destination", req: domain.TransferRequest{FromAccountID: a.ID, ToAccountID: missing, Amount: 5}, wantErr: store.ErrAccountNotFound, wantSide: "to"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Transfer(context.Background(), "user-1", tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantSide != "" {
				var notFound *AccountNotFoundError
				if !errors.As(err, &notFound) || notFound.Side != tc.wantSide {
					t.Fatalf("expected AccountNotFoundError on side %q, got %v", tc.wantSide, err)
				}
			}
		})
	}
	if balanceOf(t, f.repo, a.ID) != 1000 {
		t.Fatal("rejected transfers must not move funds")
	}
}

func TestTransfer_HundredConcurrentUnitTransfers(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 1000)
	b := openAccount(t, f.repo, "user-1", 250)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
				FromAccountID: a.ID, ToAccountID: b.ID, Amount: 1,
			}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected transfer error: %v", err)
	}

	if got := balanceOf(t, f.repo, a.ID); got != 900 {
		t.Fatalf("expected A=900, got %d", got)
	}
	if got := balanceOf(t, f.repo, b.ID); got != 350 {
		t.Fatalf("expected B=350, got %d", got)
	}
	if n := transactionCount(t, f.repo, a.ID); n != 100 {
		t.Fatalf("expected 100 records, got %d", n)
	}
	if size := f.engine.locks.size(); size != 0 {
		t.Fatalf("expected lock arena to be empty, got %d entries", size)
	}
}

func TestTransfer_ConservesFundsUnderConcurrentCrossTransfers(t *testing.T) {
	f := newEngineFixture(t)
	accounts := make([]domain.Account, 4)
	var total int64
	for i := range accounts {
		accounts[i] = openAccount(t, f.repo, "user-1", 500)
		total += 500
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				from := accounts[rng.Intn(len(accounts))]
				to := accounts[rng.Intn(len(accounts))]
				if from.ID == to.ID {
					continue
				}
				_, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
					FromAccountID: from.ID, ToAccountID: to.ID, Amount: int64(rng.Intn(200) + 1),
				})
				if err != nil && !errors.Is(err, ErrInsufficientFunds) {
					t.Errorf("unexpected transfer error: %v", err)
				}
			}
		}(int64(worker))
	}
	wg.Wait()

	var sum int64
	for _, account := range accounts {
		balance := balanceOf(t, f.repo, account.ID)
		if balance < 0 {
			t.Fatalf("account %s went negative: %d", account.ID, balance)
		}
		sum += balance
	}
	if sum != total {
		t.Fatalf("funds not conserved: expected %d, got %d", total, sum)
	}
}

func TestTransfer_FailureDuringCommitLeavesNoTrace(t *testing.T) {
	f := newEngineFixture(t)
	a := openAccount(t, f.repo, "user-1", 1000)
	b := openAccount(t, f.repo, "user-1", 500)
	f.repo.SetCommitHook(func(stage store.CommitStage) error {
		if stage == store.StageCredit {
			return errors.New("disk full")
		}
		return nil
	})

	_, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: 300,
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if balanceOf(t, f.repo, a.ID) != 1000 || balanceOf(t, f.repo, b.ID) != 500 {
		t.Fatal("a failed commit must not change balances")
	}
	if transactionCount(t, f.repo, a.ID) != 0 {
		t.Fatal("a failed commit must not append a record")
	}
	if f.notifier.count() != 0 {
		t.Fatal("a failed commit must not notify")
	}
}

type conflictingStore struct {
	*store.MemoryRepository
	conflicts int
	calls     int
}

func (s *conflictingStore) CommitTransfer(ctx context.Context, commit store.TransferCommit) error {
	s.calls++
	if s.calls <= s.conflicts {
		return store.ErrVersionConflict
	}
	return s.MemoryRepository.CommitTransfer(ctx, commit)
}

func TestTransfer_RetriesVersionConflicts(t *testing.T) {
	repo := &conflictingStore{MemoryRepository: store.NewMemoryRepository(), conflicts: 2}
	engine := NewTransferEngine(repo, nil, nil, SystemClock{}, quietLogger(), TransferEngineOptions{MaxAttempts: 5, RetryBackoff: -1})
	a := openAccount(t, repo, "user-1", 100)
	b := openAccount(t, repo, "user-1", 0)

	if _, err := engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 40}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", repo.calls)
	}
	if balanceOf(t, repo, a.ID) != 60 || balanceOf(t, repo, b.ID) != 40 {
		t.Fatal("unexpected balances after retried transfer")
	}
}

func TestTransfer_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := &conflictingStore{MemoryRepository: store.NewMemoryRepository(), conflicts: 100}
	engine := NewTransferEngine(repo, nil, nil, SystemClock{}, quietLogger(), TransferEngineOptions{MaxAttempts: 3, RetryBackoff: -1})
	a := openAccount(t, repo, "user-1", 100)
	b := openAccount(t, repo, "user-1", 0)

	_, err := engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 40})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", repo.calls)
	}
	if balanceOf(t, repo, a.ID) != 100 {
		t.Fatal("balances must be unchanged")
	}
}

type failingReadStore struct {
	*store.MemoryRepository
}

func (s *failingReadStore) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return nil, errors.New("connection refused")
}

func TestTransfer_ReadFailureIsStoreUnavailable(t *testing.T) {
	repo := &failingReadStore{MemoryRepository: store.NewMemoryRepository()}
	engine := NewTransferEngine(repo, nil, nil, SystemClock{}, quietLogger(), TransferEngineOptions{})

	_, err := engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: uuid.New(), ToAccountID: uuid.New(), Amount: 1})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestTransfer_CollaboratorFailuresDoNotFailTransfer(t *testing.T) {
	f := newEngineFixture(t)
	f.notifier.err = errors.New("broker down")
	f.activity.err = errors.New("log table locked")
	a := openAccount(t, f.repo, "user-1", 50)
	b := openAccount(t, f.repo, "user-1", 0)

	if _, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 50}); err != nil {
		t.Fatalf("transfer should succeed despite collaborator errors, got %v", err)
	}
	if balanceOf(t, f.repo, a.ID) != 0 || balanceOf(t, f.repo, b.ID) != 50 {
		t.Fatal("transfer must stay committed")
	}
}

func TestTransfer_CategoryResolution(t *testing.T) {
	t.Run("explicit category", func(t *testing.T) {
		f := newEngineFixture(t)
		a := openAccount(t, f.repo, "user-1", 10)
		b := openAccount(t, f.repo, "user-1", 0)
		record, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 1, CategoryID: "groceries"})
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		if record.CategoryID != "groceries" {
			t.Fatalf("expected groceries, got %q", record.CategoryID)
		}
	})

	t.Run("default category lookup", func(t *testing.T) {
		f := newEngineFixture(t)
		f.repo.PutCategory(domain.Category{ID: "cat-42", Name: domain.DefaultCategoryName})
		a := openAccount(t, f.repo, "user-1", 10)
		b := openAccount(t, f.repo, "user-1", 0)
		record, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 1})
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		if record.CategoryID != "cat-42" {
			t.Fatalf("expected cat-42, got %q", record.CategoryID)
		}
	})

	t.Run("no default category", func(t *testing.T) {
		f := newEngineFixture(t)
		f.repo.RemoveCategory(domain.DefaultCategoryName)
		a := openAccount(t, f.repo, "user-1", 10)
		b := openAccount(t, f.repo, "user-1", 0)
		record, err := f.engine.Transfer(context.Background(), "user-1", domain.TransferRequest{FromAccountID: a.ID, ToAccountID: b.ID, Amount: 1})
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		if record.CategoryID != domain.DefaultCategoryID {
			t.Fatalf("expected literal default id, got %q", record.CategoryID)
		}
	})
}
