/**
 * @description
 * This file defines the core domain models for money movement: accounts, the
 * transaction records produced by transfers, and the request DTOs accepted by
 * the API layer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Owner identifiers are the opaque subject ids resolved by authentication
 *   upstream; the core only compares them for equality.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCategoryName is the category looked up when a payment carries none.
const DefaultCategoryName = "Default"

// DefaultCategoryID is used when no category named DefaultCategoryName exists.
const DefaultCategoryID = "default"

// Account represents a single balance-holding account owned by one user.
type Account struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      string    `json:"owner_id"`
	AccountType  string    `json:"account_type"` // e.g., 'checking', 'savings'
	Balance      int64     `json:"balance"`      // in minor units
	InterestRate *float64  `json:"interest_rate,omitempty"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is the immutable record appended once per committed transfer.
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	OwnerID       string    `json:"owner_id"`
	Amount        int64     `json:"amount"` // in minor units
	CategoryID    string    `json:"category_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Category labels transactions for reporting.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransferRequest is the DTO for direct transfers and for the transfers issued
// by the payment processors.
type TransferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        int64     `json:"amount"` // in minor units
	CategoryID    string    `json:"category_id,omitempty"`
}

// CreateAccountRequest is the DTO for opening a new account.
type CreateAccountRequest struct {
	AccountType    string   `json:"account_type"`
	OpeningBalance int64    `json:"opening_balance"`
	InterestRate   *float64 `json:"interest_rate,omitempty"`
}
