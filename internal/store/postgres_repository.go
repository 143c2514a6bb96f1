/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for accounts, the transaction log, categories,
 * scheduled and recurring payments, and the activity log.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - A transfer is a single database transaction. Both balance updates are
 *   conditional on the account version read by the engine, so a concurrent
 *   writer from another instance surfaces as ErrVersionConflict instead of a
 *   lost update.
 * - Due payments are claimed with `FOR UPDATE SKIP LOCKED` so that two
 *   processors polling at the same time receive disjoint batches.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, owner_id, account_type, balance, interest_rate, version, created_at, updated_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.OwnerID, &account.AccountType, &account.Balance,
		&account.InterestRate, &account.Version, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts a new account with version 0.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, owner_id, account_type, balance, interest_rate, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		RETURNING ` + accountColumns
	created, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID, account.OwnerID, account.AccountType, account.Balance, account.InterestRate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return created, nil
}

// FindAccountByID retrieves a single account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindAccountsByOwnerID lists every account owned by ownerID.
func (r *PostgresRepository) FindAccountsByOwnerID(ctx context.Context, ownerID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// CommitTransfer applies both versioned balance updates and appends the
// transaction record inside one database transaction.
func (r *PostgresRepository) CommitTransfer(ctx context.Context, commit TransferCommit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row locks are taken in id order so two opposite transfers cannot deadlock.
	updates := []BalanceUpdate{commit.Debit, commit.Credit}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].AccountID.String() < updates[j].AccountID.String()
	})

	for _, update := range updates {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3
		`, update.NewBalance, update.AccountID, update.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update account %s: %w", update.AccountID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	record := commit.Record
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, from_account_id, to_account_id, owner_id, amount, category_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.FromAccountID, record.ToAccountID, record.OwnerID, record.Amount, record.CategoryID, record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert transaction record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

const transactionColumns = `id, from_account_id, to_account_id, owner_id, amount, category_id, created_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(&tx.ID, &tx.FromAccountID, &tx.ToAccountID, &tx.OwnerID, &tx.Amount, &tx.CategoryID, &tx.Timestamp)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindTransactionsByAccountID retrieves all transactions where the account is
// either the source or the destination, newest first.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// FindTransactionByID retrieves a single transaction record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// FindCategoryByName looks a category up by its exact name.
func (r *PostgresRepository) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var category domain.Category
	err := r.db.QueryRow(ctx, `SELECT id, name FROM categories WHERE name = $1`, name).Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

const scheduledPaymentColumns = `id, owner_id, from_account_id, to_account_id, amount, schedule, next_payment_date,
	category_id, claim_token, claimed_until, created_at, updated_at`

func scanScheduledPayment(row rowScanner) (*domain.ScheduledPayment, error) {
	var p domain.ScheduledPayment
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.FromAccountID, &p.ToAccountID, &p.Amount, &p.Schedule, &p.NextPaymentDate,
		&p.CategoryID, &p.ClaimToken, &p.ClaimedUntil, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectScheduledPayments(rows pgx.Rows) ([]domain.ScheduledPayment, error) {
	defer rows.Close()
	payments := []domain.ScheduledPayment{}
	for rows.Next() {
		p, err := scanScheduledPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// CreateScheduledPayment inserts a new scheduled payment.
func (r *PostgresRepository) CreateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) (*domain.ScheduledPayment, error) {
	query := `
		INSERT INTO scheduled_payments (id, owner_id, from_account_id, to_account_id, amount, schedule, next_payment_date, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + scheduledPaymentColumns
	created, err := scanScheduledPayment(r.db.QueryRow(ctx, query,
		payment.ID, payment.OwnerID, payment.FromAccountID, payment.ToAccountID, payment.Amount,
		payment.Schedule, payment.NextPaymentDate, payment.CategoryID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert scheduled payment: %w", err)
	}
	return created, nil
}

// FindScheduledPaymentByID retrieves a scheduled payment by ID.
func (r *PostgresRepository) FindScheduledPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.ScheduledPayment, error) {
	query := `SELECT ` + scheduledPaymentColumns + ` FROM scheduled_payments WHERE id = $1`
	p, err := scanScheduledPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduledPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindScheduledPaymentsByOwnerID lists the scheduled payments of one owner.
func (r *PostgresRepository) FindScheduledPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.ScheduledPayment, error) {
	query := `SELECT ` + scheduledPaymentColumns + ` FROM scheduled_payments WHERE owner_id = $1 ORDER BY next_payment_date`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return collectScheduledPayments(rows)
}

// UpdateScheduledPayment writes the mutable fields of a scheduled payment.
func (r *PostgresRepository) UpdateScheduledPayment(ctx context.Context, payment *domain.ScheduledPayment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_payments
		SET amount = $1, schedule = $2, next_payment_date = $3, category_id = $4, updated_at = NOW()
		WHERE id = $5
	`, payment.Amount, payment.Schedule, payment.NextPaymentDate, payment.CategoryID, payment.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduledPaymentNotFound
	}
	return nil
}

// DeleteScheduledPayment removes a scheduled payment.
func (r *PostgresRepository) DeleteScheduledPayment(ctx context.Context, paymentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM scheduled_payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduledPaymentNotFound
	}
	return nil
}

// ClaimDueScheduledPayments atomically claims due, unclaimed scheduled payments.
func (r *PostgresRepository) ClaimDueScheduledPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ScheduledPayment, error) {
	query := `
		UPDATE scheduled_payments
		SET claim_token = $1, claimed_until = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id
			FROM scheduled_payments
			WHERE next_payment_date <= $3
			  AND (claimed_until IS NULL OR claimed_until <= $3)
			ORDER BY next_payment_date
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + scheduledPaymentColumns
	rows, err := r.db.Query(ctx, query, uuid.New(), now.Add(lease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim scheduled payments: %w", err)
	}
	return collectScheduledPayments(rows)
}

// AdvanceScheduledPayment moves the next payment date and clears the claim,
// provided claimToken still owns the payment.
func (r *PostgresRepository) AdvanceScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID, claimedNext, next time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_payments
		SET next_payment_date = CASE WHEN next_payment_date = $2 THEN $1 ELSE next_payment_date END,
			claim_token = NULL, claimed_until = NULL, updated_at = NOW()
		WHERE id = $3 AND claim_token = $4
	`, next, claimedNext, paymentID, claimToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReleaseScheduledPayment clears the claim without touching the payment date.
func (r *PostgresRepository) ReleaseScheduledPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_payments
		SET claim_token = NULL, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND claim_token = $2
	`, paymentID, claimToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

const recurringPaymentColumns = `id, owner_id, amount, from_account_id, to_account_id, payment_interval, category_id,
	next_payment_date, status, claim_token, claimed_until, created_at, updated_at`

func scanRecurringPayment(row rowScanner) (*domain.RecurringPayment, error) {
	var p domain.RecurringPayment
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Amount, &p.FromAccountID, &p.ToAccountID, &p.Interval, &p.CategoryID,
		&p.NextPaymentDate, &p.Status, &p.ClaimToken, &p.ClaimedUntil, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectRecurringPayments(rows pgx.Rows) ([]domain.RecurringPayment, error) {
	defer rows.Close()
	payments := []domain.RecurringPayment{}
	for rows.Next() {
		p, err := scanRecurringPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// CreateRecurringPayment inserts a new recurring payment.
func (r *PostgresRepository) CreateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) (*domain.RecurringPayment, error) {
	query := `
		INSERT INTO recurring_payments (id, owner_id, amount, from_account_id, to_account_id, payment_interval, category_id, next_payment_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + recurringPaymentColumns
	created, err := scanRecurringPayment(r.db.QueryRow(ctx, query,
		payment.ID, payment.OwnerID, payment.Amount, payment.FromAccountID, payment.ToAccountID,
		payment.Interval, payment.CategoryID, payment.NextPaymentDate, payment.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert recurring payment: %w", err)
	}
	return created, nil
}

// FindRecurringPaymentByID retrieves a recurring payment by ID.
func (r *PostgresRepository) FindRecurringPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.RecurringPayment, error) {
	query := `SELECT ` + recurringPaymentColumns + ` FROM recurring_payments WHERE id = $1`
	p, err := scanRecurringPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecurringPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindRecurringPaymentsByOwnerID lists the recurring payments of one owner.
func (r *PostgresRepository) FindRecurringPaymentsByOwnerID(ctx context.Context, ownerID string) ([]domain.RecurringPayment, error) {
	query := `SELECT ` + recurringPaymentColumns + ` FROM recurring_payments WHERE owner_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return collectRecurringPayments(rows)
}

// UpdateRecurringPayment writes the mutable fields of an active recurring payment.
func (r *PostgresRepository) UpdateRecurringPayment(ctx context.Context, payment *domain.RecurringPayment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE recurring_payments
		SET amount = $1, payment_interval = $2, category_id = $3, updated_at = NOW()
		WHERE id = $4
	`, payment.Amount, payment.Interval, payment.CategoryID, payment.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecurringPaymentNotFound
	}
	return nil
}

// CancelRecurringPayment sets the status to canceled. Canceling twice is a no-op.
func (r *PostgresRepository) CancelRecurringPayment(ctx context.Context, paymentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE recurring_payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, domain.RecurringStatusCanceled, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecurringPaymentNotFound
	}
	return nil
}

// ClaimDueRecurringPayments atomically claims due, active, unclaimed recurring payments.
func (r *PostgresRepository) ClaimDueRecurringPayments(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RecurringPayment, error) {
	query := `
		UPDATE recurring_payments
		SET claim_token = $1, claimed_until = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id
			FROM recurring_payments
			WHERE status = $5
			  AND next_payment_date <= $3
			  AND (claimed_until IS NULL OR claimed_until <= $3)
			ORDER BY next_payment_date
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + recurringPaymentColumns
	rows, err := r.db.Query(ctx, query, uuid.New(), now.Add(lease), now, limit, domain.RecurringStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to claim recurring payments: %w", err)
	}
	return collectRecurringPayments(rows)
}

// AdvanceRecurringPayment moves the next payment date and clears the claim.
func (r *PostgresRepository) AdvanceRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID, next time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE recurring_payments
		SET next_payment_date = $1, claim_token = NULL, claimed_until = NULL, updated_at = NOW()
		WHERE id = $2 AND claim_token = $3
	`, next, paymentID, claimToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReleaseRecurringPayment clears the claim without touching the payment date.
func (r *PostgresRepository) ReleaseRecurringPayment(ctx context.Context, paymentID, claimToken uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE recurring_payments
		SET claim_token = NULL, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND claim_token = $2
	`, paymentID, claimToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// CreateActivityLog appends an activity entry.
func (r *PostgresRepository) CreateActivityLog(ctx context.Context, entry *domain.ActivityLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO activity_logs (id, owner_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.OwnerID, entry.Action, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// FindActivityLogsByOwnerID returns the newest activity entries of one owner.
func (r *PostgresRepository) FindActivityLogsByOwnerID(ctx context.Context, ownerID string, limit int) ([]domain.ActivityLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, action, details, created_at
		FROM activity_logs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.ActivityLog{}
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
