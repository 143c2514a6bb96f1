/**
 * @description
 * Recurring payments are created active and due immediately. Each successful
 * run sets the next execution date one calendar unit after the processing
 * time (see domain.Interval.Next). Cancellation is terminal and idempotent.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/google/uuid"
)

// RecurringPaymentService manages and executes recurring payments.
type RecurringPaymentService struct {
	repo     store.RecurringPaymentRepository
	transfer Transferer
	clock    Clock
	logger   *slog.Logger
	opts     ClaimOptions
}

func NewRecurringPaymentService(repo store.RecurringPaymentRepository, transfer Transferer, clock Clock, logger *slog.Logger, opts ClaimOptions) *RecurringPaymentService {
	return &RecurringPaymentService{
		repo:     repo,
		transfer: transfer,
		clock:    clock,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

// Create stores an active recurring payment whose first execution is due now.
func (s *RecurringPaymentService) Create(ctx context.Context, ownerID string, req domain.CreateRecurringPaymentRequest) (*domain.RecurringPayment, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}
	if !req.Interval.Valid() {
		return nil, ErrInvalidSchedule
	}

	payment, err := s.repo.CreateRecurringPayment(ctx, &domain.RecurringPayment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Amount:          req.Amount,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		Interval:        req.Interval,
		CategoryID:      req.CategoryID,
		NextPaymentDate: s.clock.Now(),
		Status:          domain.RecurringStatusActive,
	})
	if err != nil {
		return nil, storeFailure("create recurring payment", err)
	}
	s.logger.Info("recurring payment created", "payment_id", payment.ID, "owner_id", ownerID, "interval", payment.Interval)
	return payment, nil
}

// Get returns one recurring payment owned by ownerID.
func (s *RecurringPaymentService) Get(ctx context.Context, ownerID string, paymentID uuid.UUID) (*domain.RecurringPayment, error) {
	payment, err := s.repo.FindRecurringPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrRecurringPaymentNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("get recurring payment", err)
	}
	if payment.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return payment, nil
}

// List returns every recurring payment of ownerID, canceled ones included.
func (s *RecurringPaymentService) List(ctx context.Context, ownerID string) ([]domain.RecurringPayment, error) {
	payments, err := s.repo.FindRecurringPaymentsByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, storeFailure("list recurring payments", err)
	}
	return payments, nil
}

// Update changes amount, interval or category of an active recurring payment.
func (s *RecurringPaymentService) Update(ctx context.Context, ownerID string, paymentID uuid.UUID, req domain.UpdateRecurringPaymentRequest) (*domain.RecurringPayment, error) {
	payment, err := s.Get(ctx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.RecurringStatusCanceled {
		return nil, ErrPaymentCanceled
	}
	if req.Amount != nil {
		if *req.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		payment.Amount = *req.Amount
	}
	if req.Interval != nil {
		if !req.Interval.Valid() {
			return nil, ErrInvalidSchedule
		}
		payment.Interval = *req.Interval
	}
	if req.CategoryID != nil {
		payment.CategoryID = *req.CategoryID
	}

	if err := s.repo.UpdateRecurringPayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrRecurringPaymentNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("update recurring payment", err)
	}
	return payment, nil
}

// Cancel marks the payment canceled. Canceling an already canceled payment
// succeeds without changes.
func (s *RecurringPaymentService) Cancel(ctx context.Context, ownerID string, paymentID uuid.UUID) error {
	payment, err := s.Get(ctx, ownerID, paymentID)
	if err != nil {
		return err
	}
	if payment.Status == domain.RecurringStatusCanceled {
		return nil
	}
	if err := s.repo.CancelRecurringPayment(ctx, paymentID); err != nil {
		if errors.Is(err, store.ErrRecurringPaymentNotFound) {
			return ErrNotFound
		}
		return storeFailure("cancel recurring payment", err)
	}
	s.logger.Info("recurring payment canceled", "payment_id", paymentID, "owner_id", ownerID)
	return nil
}

// ProcessDue claims every active recurring payment due at now and executes it.
// The returned error is non-nil only when the claim itself failed.
func (s *RecurringPaymentService) ProcessDue(ctx context.Context, now time.Time) (BatchResult, error) {
	var result BatchResult

	payments, err := s.repo.ClaimDueRecurringPayments(ctx, now, s.opts.Lease, s.opts.BatchSize)
	if err != nil {
		return result, storeFailure("claim recurring payments", err)
	}
	result.Claimed = len(payments)

	for _, payment := range payments {
		if s.execute(ctx, payment, now) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (s *RecurringPaymentService) execute(ctx context.Context, payment domain.RecurringPayment, now time.Time) bool {
	logger := s.logger.With("payment_id", payment.ID, "owner_id", payment.OwnerID)
	token := *payment.ClaimToken

	_, err := s.transfer.Transfer(ctx, payment.OwnerID, domain.TransferRequest{
		FromAccountID: payment.FromAccountID,
		ToAccountID:   payment.ToAccountID,
		Amount:        payment.Amount,
		CategoryID:    payment.CategoryID,
	})
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err != nil {
		logger.Error("recurring payment failed", "error", err)
		if relErr := s.repo.ReleaseRecurringPayment(settleCtx, payment.ID, token); relErr != nil {
			logger.Warn("failed to release recurring payment claim", "error", relErr)
		}
		return false
	}

	next := payment.Interval.Next(now)
	if err := s.repo.AdvanceRecurringPayment(settleCtx, payment.ID, token, next); err != nil {
		logger.Error("failed to advance recurring payment after transfer", "next_payment_date", next, "error", err)
		return true
	}
	logger.Info("recurring payment processed", "next_payment_date", next)
	return true
}
