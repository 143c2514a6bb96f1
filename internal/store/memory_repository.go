package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/google/uuid"
)

// CommitStage names a step of an in-memory transfer commit.
type CommitStage string

const (
	StageDebit  CommitStage = "debit"
	StageCredit CommitStage = "credit"
	StageAppend CommitStage = "append"
)

// CommitHook is called before each stage of CommitTransfer is staged. A
// non-nil error aborts the whole commit and nothing is applied.
type CommitHook func(stage CommitStage) error

// MemoryRepository is a process-local Repository used for STORE_DRIVER=memory
// and as the test fixture for the application layer.
type MemoryRepository struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]domain.Account
	transactions []domain.Transaction
	categories   map[string]domain.Category
	scheduled    map[uuid.UUID]domain.ScheduledPayment
	recurring    map[uuid.UUID]domain.RecurringPayment
	activity     []domain.ActivityLog
	commitHook   CommitHook
	now          func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty store seeded with the default category.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[uuid.UUID]domain.Account),
		categories: map[string]domain.Category{
			domain.DefaultCategoryName: {ID: domain.DefaultCategoryID, Name: domain.DefaultCategoryName},
		},
		scheduled: make(map[uuid.UUID]domain.ScheduledPayment),
		recurring: make(map[uuid.UUID]domain.RecurringPayment),
		now:       time.Now,
	}
}

// SetCommitHook installs a hook for fault injection. Pass nil to remove it.
func (m *MemoryRepository) SetCommitHook(hook CommitHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitHook = hook
}

// PutCategory adds or replaces a category.
func (m *MemoryRepository) PutCategory(category domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[category.Name] = category
}

// RemoveCategory deletes a category by name.
func (m *MemoryRepository) RemoveCategory(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, name)
}

func (m *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *account
	created.Version = 0
	created.CreatedAt = m.now()
	created.UpdatedAt = created.CreatedAt
	m.accounts[created.ID] = created
	return &created, nil
}

func (m *MemoryRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (m *MemoryRepository) FindAccountsByOwnerID(ctx context.Context, ownerID string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := []domain.Account{}
	for _, account := range m.accounts {
		if account.OwnerID == ownerID {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

// CommitTransfer stages the debit, the credit and the append, running the
// commit hook before each, and applies them only once all three are staged.
func (m *MemoryRepository) CommitTransfer(ctx context.Context, commit TransferCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stage := func(s CommitStage) error {
		if m.commitHook == nil {
			return nil
		}
		return m.commitHook(s)
	}
	staged := make(map[uuid.UUID]domain.Account, 2)
	apply := func(s CommitStage, update BalanceUpdate) error {
		if err := stage(s); err != nil {
			return err
		}
		account, ok := m.accounts[update.AccountID]
		if !ok || account.Version != update.ExpectedVersion {
			return ErrVersionConflict
		}
		account.Balance = update.NewBalance
		account.Version++
		account.UpdatedAt = m.now()
		staged[account.ID] = account
		return nil
	}

	if err := apply(StageDebit, commit.Debit); err != nil {
		return err
	}
	if err := apply(StageCredit, commit.Credit); err != nil {
		return err
	}
	if err := stage(StageAppend); err != nil {
		return err
	}

	for id, account := range staged {
		m.accounts[id] = account
	}
	m.transactions = append(m.transactions, commit.Record)
	return nil
}

func (m *MemoryRepository) FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transactions := []domain.Transaction{}
	for i := len(m.transactions) - 1; i >= 0; i-- {
		tx := m.transactions[i]
		if tx.FromAccountID == accountID || tx.ToAccountID == accountID {
			transactions = append(transactions, tx)
		}
	}
	return transactions, nil
}

func (m *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.ID == transactionID {
			found := tx
			return &found, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryRepository) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[name]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return &category, nil
}

func (m *MemoryRepository) CreateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) (*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *payment
	created.CreatedAt = m.now()
	created.UpdatedAt = created.CreatedAt
	m.scheduled[created.ID] = created
	return &created, nil
}

func (m *MemoryRepository) FindScheduledPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.scheduled[paymentID]
	if !ok {
		return nil, ErrScheduledPaymentNotFound
	}
	return &payment, nil
}

func (m *MemoryRepository) FindScheduledPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments := []domain.ScheduledPayment{}
	for _, payment := range m.scheduled {
		if payment.OwnerID == ownerID {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].NextPaymentDate.Before(payments[j].NextPaymentDate) })
	return payments, nil
}

func (m *MemoryRepository) UpdateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.scheduled[payment.ID]
	if !ok {
		return ErrScheduledPaymentNotFound
	}
	existing.Amount = payment.Amount
	existing.Schedule = payment.Schedule
	existing.NextPaymentDate = payment.NextPaymentDate
	existing.CategoryID = payment.CategoryID
	existing.UpdatedAt = m.now()
	m.scheduled[payment.ID] = existing
	return nil
}

func (m *MemoryRepository) DeleteScheduledPayment(ctx context.Context, paymentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduled[paymentID]; !ok {
		return ErrScheduledPaymentNotFound
	}
	delete(m.scheduled, paymentID)
	return nil
}

func claimable(next time.Time, claimedUntil *time.Time, now time.Time) bool {
	if next.After(now) {
		return false
	}
	return claimedUntil == nil || !claimedUntil.After(now)
}

func (m *MemoryRepository) ClaimDueScheduledPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := []domain.ScheduledPayment{}
	for _, payment := range m.scheduled {
		if claimable(payment.NextPaymentDate, payment.ClaimedUntil, now) {
			due = append(due, payment)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPaymentDate.Before(due[j].NextPaymentDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	token := uuid.New()
	until := now.Add(lease)
	for i := range due {
		due[i].ClaimToken = &token
		due[i].ClaimedUntil = &until
		m.scheduled[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *MemoryRepository) AdvanceScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID, claimedNext, next time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.scheduled[paymentID]
	if !ok || payment.ClaimToken == nil || *payment.ClaimToken != claimToken {
		return ErrClaimLost
	}
	if payment.NextPaymentDate.Equal(claimedNext) {
		payment.NextPaymentDate = next
	}
	payment.ClaimToken = nil
	payment.ClaimedUntil = nil
	payment.UpdatedAt = m.now()
	m.scheduled[paymentID] = payment
	return nil
}

func (m *MemoryRepository) ReleaseScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.scheduled[paymentID]
	if !ok || payment.ClaimToken == nil || *payment.ClaimToken != claimToken {
		return ErrClaimLost
	}
	payment.ClaimToken = nil
	payment.ClaimedUntil = nil
	m.scheduled[paymentID] = payment
	return nil
}

func (m *MemoryRepository) CreateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) (*domain.RecurringPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *payment
	created.CreatedAt = m.now()
	created.UpdatedAt = created.CreatedAt
	m.recurring[created.ID] = created
	return &created, nil
}

func (m *MemoryRepository) FindRecurringPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.RecurringPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.recurring[paymentID]
	if !ok {
		return nil, ErrRecurringPaymentNotFound
	}
	return &payment, nil
}

func (m *MemoryRepository) FindRecurringPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.RecurringPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments := []domain.RecurringPayment{}
	for _, payment := range m.recurring {
		if payment.OwnerID == ownerID {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

func (m *MemoryRepository) UpdateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.recurring[payment.ID]
	if !ok {
		return ErrRecurringPaymentNotFound
	}
	existing.Amount = payment.Amount
	existing.Interval = payment.Interval
	existing.CategoryID = payment.CategoryID
	existing.UpdatedAt = m.now()
	m.recurring[payment.ID] = existing
	return nil
}

func (m *MemoryRepository) CancelRecurringPayment(ctx context.Context, paymentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.recurring[paymentID]
	if !ok {
		return ErrRecurringPaymentNotFound
	}
	payment.Status = domain.RecurringStatusCanceled
	payment.UpdatedAt = m.now()
	m.recurring[paymentID] = payment
	return nil
}

func (m *MemoryRepository) ClaimDueRecurringPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RecurringPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := []domain.RecurringPayment{}
	for _, payment := range m.recurring {
		if payment.Status == domain.RecurringStatusActive && claimable(payment.NextPaymentDate, payment.ClaimedUntil, now) {
			due = append(due, payment)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPaymentDate.Before(due[j].NextPaymentDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	token := uuid.New()
	until := now.Add(lease)
	for i := range due {
		due[i].ClaimToken = &token
		due[i].ClaimedUntil = &until
		m.recurring[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *MemoryRepository) AdvanceRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID, next time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.recurring[paymentID]
	if !ok || payment.ClaimToken == nil || *payment.ClaimToken != claimToken {
		return ErrClaimLost
	}
	payment.NextPaymentDate = next
	payment.ClaimToken = nil
	payment.ClaimedUntil = nil
	payment.UpdatedAt = m.now()
	m.recurring[paymentID] = payment
	return nil
}

func (m *MemoryRepository) ReleaseRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.recurring[paymentID]
	if !ok || payment.ClaimToken == nil || *payment.ClaimToken != claimToken {
		return ErrClaimLost
	}
	payment.ClaimToken = nil
	payment.ClaimedUntil = nil
	m.recurring[paymentID] = payment
	return nil
}

func (m *MemoryRepository) CreateActivityLog(ctx context.Context, entry *domain.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, *entry)
	return nil
}

func (m *MemoryRepository) FindActivityLogsByOwnerID(ctx context.Context, ownerID string, limit int) ([]domain.ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := []domain.ActivityLog{}
	for i := len(m.activity) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) >= limit {
			break
		}
		if m.activity[i].OwnerID == ownerID {
			entries = append(entries, m.activity[i])
		}
	}
	return entries, nil
}
