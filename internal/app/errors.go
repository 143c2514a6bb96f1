package app

import (
	"errors"
	"fmt"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrUnauthorizedAccount = errors.New("account does not belong to the requesting user")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrStoreUnavailable    = errors.New("account store unavailable")
	ErrConcurrencyConflict = errors.New("transfer could not be committed due to concurrent updates")
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidSchedule     = errors.New("invalid payment schedule")
	ErrPaymentCanceled     = errors.New("payment is canceled")
)

// AccountNotFoundError reports which side of a transfer references a missing
// account. It matches store.ErrAccountNotFound with errors.Is.
type AccountNotFoundError struct {
	Side      string // "from" or "to"
	AccountID string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("%s account %s not found", e.Side, e.AccountID)
}

func (e *AccountNotFoundError) Is(target error) bool {
	return target == store.ErrAccountNotFound
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
