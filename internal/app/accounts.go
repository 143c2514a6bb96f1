package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/google/uuid"
)

const DefaultActivityLogLimit = 50

// AccountService serves the read side of accounts and the transaction log,
// plus account opening.
type AccountService struct {
	repo interface {
		store.AccountRepository
		store.TransactionRepository
		store.ActivityLogRepository
	}
	activity ActivityLogger
	logger   *slog.Logger
}

func NewAccountService(repo store.Repository, activity ActivityLogger, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{repo: repo, activity: activity, logger: logger}
}

// OpenAccount creates an account for ownerID with an optional opening balance.
func (s *AccountService) OpenAccount(ctx context.Context, ownerID string, req domain.CreateAccountRequest) (*domain.Account, error) {
	if req.OpeningBalance < 0 {
		return nil, ErrInvalidAmount
	}
	accountType := strings.TrimSpace(req.AccountType)
	if accountType == "" {
		accountType = "checking"
	}

	account, err := s.repo.CreateAccount(ctx, &domain.Account{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		AccountType:  accountType,
		Balance:      req.OpeningBalance,
		InterestRate: req.InterestRate,
	})
	if err != nil {
		return nil, storeFailure("create account", err)
	}
	if s.activity != nil {
		if err := s.activity.Log(ctx, ownerID, "ACCOUNT_OPENED", "Opened "+accountType+" account "+account.ID.String()); err != nil {
			s.logger.Warn("failed to write account activity log", "account_id", account.ID, "owner_id", ownerID, "error", err)
		}
	}
	return account, nil
}

// ListAccounts returns the accounts owned by ownerID.
func (s *AccountService) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	accounts, err := s.repo.FindAccountsByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, storeFailure("list accounts", err)
	}
	return accounts, nil
}

// GetAccount returns one account if ownerID owns it. Accounts of other owners
// are reported as not found.
func (s *AccountService) GetAccount(ctx context.Context, ownerID string, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("get account", err)
	}
	if account.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return account, nil
}

// ListTransactions returns the transaction log of an owned account, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, ownerID string, accountID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	transactions, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, storeFailure("list transactions", err)
	}
	return transactions, nil
}

// GetTransaction returns a transaction record created by ownerID.
func (s *AccountService) GetTransaction(ctx context.Context, ownerID string, transactionID uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("get transaction", err)
	}
	if tx.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return tx, nil
}

// ListActivity returns the newest activity entries of ownerID.
func (s *AccountService) ListActivity(ctx context.Context, ownerID string, limit int) ([]domain.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultActivityLogLimit
	}
	entries, err := s.repo.FindActivityLogsByOwnerID(ctx, ownerID, limit)
	if err != nil {
		return nil, storeFailure("list activity", err)
	}
	return entries, nil
}
