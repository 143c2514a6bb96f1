/**
 * @description
 * This file contains the transfer engine, the single entry point through which
 * money moves between two accounts. Direct API transfers and the scheduled and
 * recurring payment processors all call TransferEngine.Transfer.
 *
 * Key features:
 * - Validates amount, distinct accounts, existence, ownership and funds, in that order.
 * - Commits the debit, the credit and the transaction record atomically through
 *   store.TransactionRepository.CommitTransfer.
 * - Serialises transfers touching the same account with a per-account lock
 *   arena, acquired in ascending id order.
 * - Retries on optimistic version conflicts raised by the store, which covers
 *   writers in other processes.
 * - Notifies the owner and writes the activity log after commit, outside the
 *   locks, without ever failing the transfer.
 *
 * @dependencies
 * - github.com/google/uuid: For transaction ids.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultTransferMaxAttempts  = 5
	DefaultTransferRetryBackoff = 10 * time.Millisecond
	DefaultCollaboratorTimeout  = 5 * time.Second

	TransferNotificationType = "transfer"
	TransferActivityAction   = "TRANSFER"
)

// TransferStore is the data access the engine needs.
type TransferStore interface {
	store.AccountRepository
	store.TransactionRepository
	store.CategoryRepository
}

// Transferer is implemented by TransferEngine; the payment processors depend
// on it so they can be tested with stubs.
type Transferer interface {
	Transfer(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.Transaction, error)
}

// TransferEngineOptions tunes retry and collaborator behaviour. Zero values
// fall back to the package defaults.
type TransferEngineOptions struct {
	MaxAttempts         int
	RetryBackoff        time.Duration
	CollaboratorTimeout time.Duration
}

// TransferEngine moves funds between accounts.
type TransferEngine struct {
	repo     TransferStore
	notifier Notifier
	activity ActivityLogger
	clock    Clock
	logger   *slog.Logger
	locks    *accountLocks

	maxAttempts         int
	retryBackoff        time.Duration
	collaboratorTimeout time.Duration
}

// NewTransferEngine creates a transfer engine.
func NewTransferEngine(repo TransferStore, notifier Notifier, activity ActivityLogger, clock Clock, logger *slog.Logger, opts TransferEngineOptions) *TransferEngine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultTransferMaxAttempts
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	} else if opts.RetryBackoff == 0 {
		opts.RetryBackoff = DefaultTransferRetryBackoff
	}
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	return &TransferEngine{
		repo:                repo,
		notifier:            notifier,
		activity:            activity,
		clock:               clock,
		logger:              logger,
		locks:               newAccountLocks(),
		maxAttempts:         opts.MaxAttempts,
		retryBackoff:        opts.RetryBackoff,
		collaboratorTimeout: opts.CollaboratorTimeout,
	}
}

// Transfer debits req.FromAccountID and credits req.ToAccountID by req.Amount
// on behalf of ownerID, appending exactly one transaction record.
func (e *TransferEngine) Transfer(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}

	record, err := e.commit(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	e.logger.Info("transfer committed",
		"transaction_id", record.ID,
		"owner_id", ownerID,
		"from_account_id", record.FromAccountID,
		"to_account_id", record.ToAccountID,
		"amount", record.Amount,
	)
	e.afterCommit(ctx, record)
	return record, nil
}

func (e *TransferEngine) commit(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.Transaction, error) {
	release := e.locks.acquire(req.FromAccountID, req.ToAccountID)
	defer release()

	categoryID, err := resolveCategoryID(ctx, e.repo, req.CategoryID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		record, err := e.attempt(ctx, ownerID, req, categoryID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		if attempt >= e.maxAttempts {
			e.logger.Error("transfer retries exhausted", "owner_id", ownerID, "from_account_id", req.FromAccountID, "to_account_id", req.ToAccountID, "attempts", attempt)
			return nil, ErrConcurrencyConflict
		}
		e.logger.Warn("transfer version conflict; retrying", "owner_id", ownerID, "attempt", attempt)

		select {
		case <-ctx.Done():
			return nil, storeFailure("wait for retry", ctx.Err())
		case <-time.After(time.Duration(attempt) * e.retryBackoff):
		}
	}
}

func (e *TransferEngine) attempt(ctx context.Context, ownerID string, req domain.TransferRequest, categoryID string) (*domain.Transaction, error) {
	from, err := e.loadAccount(ctx, "from", req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := e.loadAccount(ctx, "to", req.ToAccountID)
	if err != nil {
		return nil, err
	}

	if from.OwnerID != ownerID || to.OwnerID != ownerID {
		return nil, ErrUnauthorizedAccount
	}
	if from.Balance < req.Amount {
		return nil, ErrInsufficientFunds
	}
	if to.Balance > math.MaxInt64-req.Amount {
		return nil, fmt.Errorf("%w: credit would overflow destination balance", ErrInvalidAmount)
	}

	record := domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		OwnerID:       ownerID,
		Amount:        req.Amount,
		CategoryID:    categoryID,
		Timestamp:     e.clock.Now(),
	}
	commit := store.TransferCommit{
		Debit:  store.BalanceUpdate{AccountID: from.ID, ExpectedVersion: from.Version, NewBalance: from.Balance - req.Amount},
		Credit: store.BalanceUpdate{AccountID: to.ID, ExpectedVersion: to.Version, NewBalance: to.Balance + req.Amount},
		Record: record,
	}

	if err := e.repo.CommitTransfer(ctx, commit); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		return nil, storeFailure("commit transfer", err)
	}
	return &record, nil
}

func (e *TransferEngine) loadAccount(ctx context.Context, side string, id uuid.UUID) (*domain.Account, error) {
	account, err := e.repo.FindAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, &AccountNotFoundError{Side: side, AccountID: id.String()}
		}
		return nil, storeFailure("load "+side+" account", err)
	}
	return account, nil
}

// afterCommit runs the notifier and the activity logger on a context that
// survives request cancellation but is bounded by the collaborator timeout.
func (e *TransferEngine) afterCommit(ctx context.Context, record *domain.Transaction) {
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.collaboratorTimeout)
	defer cancel()

	amount := FormatAmount(record.Amount)
	if e.notifier != nil {
		message := fmt.Sprintf("Transfer of %s from account %s to account %s completed", amount, record.FromAccountID, record.ToAccountID)
		if err := e.notifier.Notify(sideCtx, record.OwnerID, message, TransferNotificationType); err != nil {
			e.logger.Warn("failed to send transfer notification", "transaction_id", record.ID, "owner_id", record.OwnerID, "error", err)
		}
	}
	if e.activity != nil {
		details := fmt.Sprintf("Transferred %s from %s to %s", amount, record.FromAccountID, record.ToAccountID)
		if err := e.activity.Log(sideCtx, record.OwnerID, TransferActivityAction, details); err != nil {
			e.logger.Warn("failed to write transfer activity log", "transaction_id", record.ID, "owner_id", record.OwnerID, "error", err)
		}
	}
}

// resolveCategoryID returns requested when set, otherwise the id of the
// "Default" category, otherwise domain.DefaultCategoryID.
func resolveCategoryID(ctx context.Context, categories store.CategoryRepository, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	category, err := categories.FindCategoryByName(ctx, domain.DefaultCategoryName)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			return domain.DefaultCategoryID, nil
		}
		return "", storeFailure("resolve default category", err)
	}
	return category.ID, nil
}
