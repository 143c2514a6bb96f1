/**
 * @description
 * Domain models for scheduled and recurring payments. Both are standing
 * instructions that the background processors turn into transfers once their
 * next payment date is due.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is the cadence of a scheduled payment.
type Schedule string

const (
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// Fixed advancement offsets for scheduled payments. Monthly is a 30 day
// approximation, not calendar arithmetic.
const (
	DailyOffset   = 86400000 * time.Millisecond
	WeeklyOffset  = 604800000 * time.Millisecond
	MonthlyOffset = 2592000000 * time.Millisecond
)

// Valid reports whether s is one of the supported schedules.
func (s Schedule) Valid() bool {
	switch s {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// Offset returns how far a successful run moves the next payment date.
func (s Schedule) Offset() (time.Duration, bool) {
	switch s {
	case ScheduleDaily:
		return DailyOffset, true
	case ScheduleWeekly:
		return WeeklyOffset, true
	case ScheduleMonthly:
		return MonthlyOffset, true
	}
	return 0, false
}

// ScheduledPayment is a standing transfer instruction with an explicit next date.
type ScheduledPayment struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         string     `json:"owner_id"`
	FromAccountID   uuid.UUID  `json:"from_account_id"`
	ToAccountID     uuid.UUID  `json:"to_account_id"`
	Amount          int64      `json:"amount"`
	Schedule        Schedule   `json:"schedule"`
	NextPaymentDate time.Time  `json:"next_payment_date"`
	CategoryID      *string    `json:"category_id,omitempty"`
	ClaimToken      *uuid.UUID `json:"-"`
	ClaimedUntil    *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateScheduledPaymentRequest is the DTO for creating a scheduled payment.
type CreateScheduledPaymentRequest struct {
	FromAccountID   uuid.UUID `json:"from_account_id"`
	ToAccountID     uuid.UUID `json:"to_account_id"`
	Amount          int64     `json:"amount"`
	Schedule        Schedule  `json:"schedule"`
	NextPaymentDate time.Time `json:"next_payment_date"`
	CategoryID      *string   `json:"category_id,omitempty"`
}

// UpdateScheduledPaymentRequest carries the mutable fields of a scheduled payment.
// Nil fields are left unchanged.
type UpdateScheduledPaymentRequest struct {
	Amount          *int64     `json:"amount,omitempty"`
	Schedule        *Schedule  `json:"schedule,omitempty"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	CategoryID      *string    `json:"category_id,omitempty"`
}

// Interval is the cadence of a recurring payment.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Valid reports whether i is one of the supported intervals.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

// Next returns the execution date one calendar unit after from. Months are
// added on the calendar and clamped to the last day of the target month, so
// Jan 31 becomes Feb 28 (or 29). Unknown intervals advance by one day.
func (i Interval) Next(from time.Time) time.Time {
	switch i {
	case IntervalMonthly:
		return addMonthsClamped(from, 1)
	case IntervalWeekly:
		return from.AddDate(0, 0, 7)
	default:
		return from.AddDate(0, 0, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}

// RecurringPaymentStatus is the lifecycle state of a recurring payment.
type RecurringPaymentStatus string

const (
	RecurringStatusActive   RecurringPaymentStatus = "active"
	RecurringStatusCanceled RecurringPaymentStatus = "canceled"
)

// RecurringPayment is a standing transfer instruction keyed by an interval.
type RecurringPayment struct {
	ID              uuid.UUID              `json:"id"`
	OwnerID         string                 `json:"owner_id"`
	Amount          int64                  `json:"amount"`
	FromAccountID   uuid.UUID              `json:"from_account_id"`
	ToAccountID     uuid.UUID              `json:"to_account_id"`
	Interval        Interval               `json:"interval"`
	CategoryID      string                 `json:"category_id"`
	NextPaymentDate time.Time              `json:"next_payment_date"`
	Status          RecurringPaymentStatus `json:"status"`
	ClaimToken      *uuid.UUID             `json:"-"`
	ClaimedUntil    *time.Time             `json:"-"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// CreateRecurringPaymentRequest is the DTO for creating a recurring payment.
type CreateRecurringPaymentRequest struct {
	Amount        int64     `json:"amount"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Interval      Interval  `json:"interval"`
	CategoryID    string    `json:"category_id"`
}

// UpdateRecurringPaymentRequest carries the mutable fields of a recurring payment.
type UpdateRecurringPaymentRequest struct {
	Amount     *int64    `json:"amount,omitempty"`
	Interval   *Interval `json:"interval,omitempty"`
	CategoryID *string   `json:"category_id,omitempty"`
}
