/**
 * @description
 * Scheduled payments: CRUD for the owner plus the processor that executes due
 * payments. A successful run moves next_payment_date forward by a fixed offset
 * (daily, weekly, or a 30 day "month"); a failed run leaves it untouched so the
 * payment is retried on the next poll.
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

const (
	DefaultClaimLease     = 5 * time.Minute
	DefaultClaimBatchSize = 100

	claimSettleTimeout = 5 * time.Second
)

// settleContext outlives a cancelled job context so a claim is still advanced
// or released when the job deadline hits mid-batch.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), claimSettleTimeout)
}

// BatchResult summarises one ProcessDue run.
type BatchResult struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ClaimOptions bounds how many payments one poll takes and for how long.
type ClaimOptions struct {
	Lease     time.Duration
	BatchSize int
}

func (o ClaimOptions) withDefaults() ClaimOptions {
	if o.Lease <= 0 {
		o.Lease = DefaultClaimLease
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultClaimBatchSize
	}
	return o
}

// ScheduledPaymentService manages scheduled payments on behalf of their owner.
type ScheduledPaymentService struct {
	repo  store.ScheduledPaymentRepository
	clock Clock
}

func NewScheduledPaymentService(repo store.ScheduledPaymentRepository, clock Clock) *ScheduledPaymentService {
	return &ScheduledPaymentService{repo: repo, clock: clock}
}

func (s *ScheduledPaymentService) Create(ctx context.Context, ownerID string, req domain.CreateScheduledPaymentRequest) (*domain.ScheduledPayment, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}
	if !req.Schedule.Valid() {
		return nil, ErrInvalidSchedule
	}
	next := req.NextPaymentDate
	if next.IsZero() {
		next = s.clock.Now()
	}

	payment, err := s.repo.CreateScheduledPayment(ctx, &domain.ScheduledPayment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		Amount:          req.Amount,
		Schedule:        req.Schedule,
		NextPaymentDate: next,
		CategoryID:      req.CategoryID,
	})
	if err != nil {
		return nil, storeFailure("create scheduled payment", err)
	}
	return payment, nil
}

func (s *ScheduledPaymentService) List(ctx context.Context, ownerID string) ([]domain.ScheduledPayment, error) {
	payments, err := s.repo.FindScheduledPaymentsByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, storeFailure("list scheduled payments", err)
	}
	return payments, nil
}

func (s *ScheduledPaymentService) Get(ctx context.Context, ownerID string, paymentID uuid.UUID) (*domain.ScheduledPayment, error) {
	payment, err := s.repo.FindScheduledPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrScheduledPaymentNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("get scheduled payment", err)
	}
	if payment.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return payment, nil
}

func (s *ScheduledPaymentService) Update(ctx context.Context, ownerID string, paymentID uuid.UUID, req domain.UpdateScheduledPaymentRequest) (*domain.ScheduledPayment, error) {
	payment, err := s.Get(ctx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil {
		if *req.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		payment.Amount = *req.Amount
	}
	if req.Schedule != nil {
		if !req.Schedule.Valid() {
			return nil, ErrInvalidSchedule
		}
		payment.Schedule = *req.Schedule
	}
	if req.NextPaymentDate != nil {
		payment.NextPaymentDate = *req.NextPaymentDate
	}
	if req.CategoryID != nil {
		payment.CategoryID = req.CategoryID
	}

	if err := s.repo.UpdateScheduledPayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrScheduledPaymentNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("update scheduled payment", err)
	}
	return payment, nil
}

func (s *ScheduledPaymentService) Delete(ctx context.Context, ownerID string, paymentID uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, paymentID); err != nil {
		return err
	}
	if err := s.repo.DeleteScheduledPayment(ctx, paymentID); err != nil {
		if errors.Is(err, store.ErrScheduledPaymentNotFound) {
			return ErrNotFound
		}
		return storeFailure("delete scheduled payment", err)
	}
	return nil
}

// ScheduledPaymentProcessor executes due scheduled payments.
type ScheduledPaymentProcessor struct {
	repo     store.ScheduledPaymentRepository
	transfer Transferer
	logger   *slog.Logger
	opts     ClaimOptions
}

func NewScheduledPaymentProcessor(repo store.ScheduledPaymentRepository, transfer Transferer, logger *slog.Logger, opts ClaimOptions) *ScheduledPaymentProcessor {
	return &ScheduledPaymentProcessor{
		repo:     repo,
		transfer: transfer,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

// ProcessDue claims every scheduled payment due at now and executes it. Each
// payment succeeds or fails independently. The returned error is non-nil only
// when the claim itself failed.
func (p *ScheduledPaymentProcessor) ProcessDue(ctx context.Context, now time.Time) (BatchResult, error) {
	var result BatchResult

	payments, err := p.repo.ClaimDueScheduledPayments(ctx, now, p.opts.Lease, p.opts.BatchSize)
	if err != nil {
		return result, storeFailure("claim scheduled payments", err)
	}
	result.Claimed = len(payments)

	for _, payment := range payments {
		if p.execute(ctx, payment) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (p *ScheduledPaymentProcessor) execute(ctx context.Context, payment domain.ScheduledPayment) bool {
	logger := p.logger.With("payment_id", payment.ID, "owner_id", payment.OwnerID)
	token := *payment.ClaimToken

	offset, ok := payment.Schedule.Offset()
	if !ok {
		logger.Error("scheduled payment has unknown schedule", "schedule", payment.Schedule)
		p.release(ctx, logger, payment.ID, token)
		return false
	}

	req := domain.TransferRequest{
		FromAccountID: payment.FromAccountID,
		ToAccountID:   payment.ToAccountID,
		Amount:        payment.Amount,
	}
	if payment.CategoryID != nil {
		req.CategoryID = *payment.CategoryID
	}

	if _, err := p.transfer.Transfer(ctx, payment.OwnerID, req); err != nil {
		logger.Error("scheduled payment failed", "error", err)
		p.release(ctx, logger, payment.ID, token)
		return false
	}

	next := payment.NextPaymentDate.Add(offset)
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := p.repo.AdvanceScheduledPayment(settleCtx, payment.ID, token, payment.NextPaymentDate, next); err != nil {
		// The transfer is committed; the payment may run again once the claim expires.
		logger.Error("failed to advance scheduled payment after transfer", "next_payment_date", next, "error", err)
		return true
	}
	logger.Info("scheduled payment processed", "next_payment_date", next)
	return true
}

func (p *ScheduledPaymentProcessor) release(ctx context.Context, logger *slog.Logger, paymentID, token uuid.UUID) {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := p.repo.ReleaseScheduledPayment(settleCtx, paymentID, token); err != nil {
		logger.Warn("failed to release scheduled payment claim", "error", err)
	}
}
