/**
 * @description
 * This file defines the repository interfaces that specify the contract for all
 * data access operations required by the transfer-service. The application
 * layer depends on these interfaces only, so the PostgreSQL implementation and
 * the in-memory implementation are interchangeable.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound          = errors.New("account not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrCategoryNotFound         = errors.New("category not found")
	ErrScheduledPaymentNotFound = errors.New("scheduled payment not found")
	ErrRecurringPaymentNotFound = errors.New("recurring payment not found")
	// ErrVersionConflict is returned by CommitTransfer when an account changed
	// after it was read.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrClaimLost is returned when a claim token no longer owns the payment.
	ErrClaimLost = errors.New("payment claim lost")
)

// BalanceUpdate is one side of a transfer commit. ExpectedVersion is the
// account version observed when the balance was read.
type BalanceUpdate struct {
	AccountID       uuid.UUID
	ExpectedVersion int64
	NewBalance      int64
}

// TransferCommit is everything a single transfer writes. Implementations apply
// it all or nothing.
type TransferCommit struct {
	Debit  BalanceUpdate
	Credit BalanceUpdate
	Record domain.Transaction
}

// AccountRepository persists account records.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountsByOwnerID(ctx context.Context, ownerID string) ([]domain.Account, error)
}

// TransactionRepository is the append-only transaction log plus the atomic
// transfer commit.
type TransactionRepository interface {
	CommitTransfer(ctx context.Context, commit TransferCommit) error
	FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
}

// CategoryRepository resolves transaction categories.
type CategoryRepository interface {
	FindCategoryByName(ctx context.Context, name string) (*domain.Category, error)
}

// ScheduledPaymentRepository persists scheduled payments and their claims.
type ScheduledPaymentRepository interface {
	CreateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) (*domain.ScheduledPayment, error)
	FindScheduledPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.ScheduledPayment, error)
	FindScheduledPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.ScheduledPayment, error)
	UpdateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) error
	DeleteScheduledPayment(ctx context.Context, paymentID uuid.UUID) error

	// ClaimDueScheduledPayments marks up to limit due payments that are not
	// already claimed (or whose claim expired) with a fresh token valid until
	// now+lease, and returns them.
	ClaimDueScheduledPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ScheduledPayment, error)
	// AdvanceScheduledPayment clears the claim and moves the payment date from
	// claimedNext to next. A date changed by the owner while claimed is kept.
	AdvanceScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID, claimedNext, next time.Time) error
	ReleaseScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error
}

// RecurringPaymentRepository persists recurring payments and their claims.
type RecurringPaymentRepository interface {
	CreateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) (*domain.RecurringPayment, error)
	FindRecurringPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.RecurringPayment, error)
	FindRecurringPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.RecurringPayment, error)
	UpdateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) error
	CancelRecurringPayment(ctx context.Context, paymentID uuid.UUID) error

	// ClaimDueRecurringPayments behaves like ClaimDueScheduledPayments and only
	// considers active payments.
	ClaimDueRecurringPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RecurringPayment, error)
	AdvanceRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID, next time.Time) error
	ReleaseRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error
}

// ActivityLogRepository stores user activity entries.
type ActivityLogRepository interface {
	CreateActivityLog(ctx context.Context, entry *domain.ActivityLog) error
	FindActivityLogsByOwnerID(ctx context.Context, ownerID string, limit int) ([]domain.ActivityLog, error)
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	AccountRepository
	TransactionRepository
	CategoryRepository
	ScheduledPaymentRepository
	RecurringPaymentRepository
	ActivityLogRepository
}
