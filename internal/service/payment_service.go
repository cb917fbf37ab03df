package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/ledger"
	"github.com/slicefund/pizza-claims/internal/mirror"
	"github.com/slicefund/pizza-claims/internal/models"
	"github.com/slicefund/pizza-claims/internal/repository"
)

// PaymentService records externally executed USDC transfers. It never
// touches the chain itself; the transaction hash is taken on trust and
// only shape-checked.
type PaymentService struct {
	store  SubmissionStore
	audit  AuditQueue
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store SubmissionStore, audit AuditQueue, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// RecordPayment marks an approved submission PAID. Exactly one recording
// can win; duplicates surface ErrAlreadyPaid and unapproved submissions
// surface ErrNotApproved.
func (p *PaymentService) RecordPayment(ctx context.Context, id, transactionHash string, paidAmount decimal.Decimal) (*models.Submission, error) {
	if err := ledger.ValidateTransactionHash(transactionHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !paidAmount.IsPositive() {
		return nil, fmt.Errorf("%w: paid amount must be positive", ErrValidation)
	}

	// USDC carries 6 decimal places
	amount := paidAmount.Round(6)
	now := time.Now().UTC()

	sub, err := p.store.UpdateStatus(ctx, id, repository.StatusPatch{
		FromStatus:      models.StatusApproved,
		ToStatus:        models.StatusPaid,
		TransactionHash: transactionHash,
		PaidAmount:      &amount,
		PaidAt:          &now,
	})
	if err != nil {
		return nil, p.mapPaymentErr(ctx, err, id)
	}

	p.audit.EnqueueUpdate(sub.ID, mirror.Fields{
		Status:          &sub.Status,
		TransactionHash: &sub.TransactionHash,
		PaidAmount:      sub.PaidAmount,
		PaidAt:          sub.PaidAt,
	})

	p.logger.Info("Payment recorded",
		zap.String("id", id),
		zap.String("tx_hash", transactionHash),
		zap.String("amount", amount.String()),
		zap.String("explorer", ledger.BaseScanURL(transactionHash)))

	return sub, nil
}

func (p *PaymentService) mapPaymentErr(ctx context.Context, err error, id string) error {
	if !errors.Is(err, repository.ErrStatusConflict) {
		return err
	}
	current, getErr := p.store.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if current.Status == models.StatusPaid {
		return fmt.Errorf("%w: %s", ErrAlreadyPaid, id)
	}
	return fmt.Errorf("%w: submission %s is %s", ErrNotApproved, id, current.Status)
}
