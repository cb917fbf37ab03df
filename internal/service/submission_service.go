// Package service implements the submission lifecycle on top of the
// repository, currency normalizer and audit mirror.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/currency"
	"github.com/slicefund/pizza-claims/internal/domain/lifecycle"
	"github.com/slicefund/pizza-claims/internal/mirror"
	"github.com/slicefund/pizza-claims/internal/models"
	"github.com/slicefund/pizza-claims/internal/repository"
	"github.com/slicefund/pizza-claims/pkg/utils"
)

// SubmissionStore is the persistence surface the service needs
type SubmissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter repository.ListFilter) (*repository.ListPage, error)
	UpdateStatus(ctx context.Context, id string, patch repository.StatusPatch) (*models.Submission, error)
}

// Converter normalizes an amount to the reference currency
type Converter interface {
	ToUSD(ctx context.Context, amount decimal.Decimal, currencyCode string) currency.Conversion
}

// NameResolver resolves a display alias for a wallet address
type NameResolver interface {
	Resolve(ctx context.Context, address string) string
}

// AuditQueue accepts fire-and-forget audit mirror writes
type AuditQueue interface {
	EnqueueAppend(rec mirror.Record)
	EnqueueUpdate(id string, fields mirror.Fields)
}

// CreateSubmissionInput carries the claimant-supplied fields for a new claim.
// Amounts are in the original receipt currency; the service normalizes them.
type CreateSubmissionInput struct {
	WalletAddress   string
	PizzaPhotoURL   string
	ReceiptPhotoURL string
	ExtractedAmount decimal.Decimal
	FinalAmount     decimal.Decimal
	Currency        string
}

// SubmissionService orchestrates claim creation and review transitions
type SubmissionService struct {
	store     SubmissionStore
	converter Converter
	resolver  NameResolver
	audit     AuditQueue
	logger    *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(store SubmissionStore, converter Converter, resolver NameResolver, audit AuditQueue, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		store:     store,
		converter: converter,
		resolver:  resolver,
		audit:     audit,
		logger:    logger,
	}
}

// Create validates a new claim, normalizes the confirmed amount to USD and
// persists it in PENDING. The extracted amount is stored untouched in the
// original currency as the audit trail.
func (s *SubmissionService) Create(ctx context.Context, in CreateSubmissionInput) (*models.Submission, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	conv := s.converter.ToUSD(ctx, in.FinalAmount, in.Currency)

	now := time.Now().UTC()
	sub := &models.Submission{
		ID:              uuid.NewString(),
		WalletAddress:   in.WalletAddress,
		ENSName:         s.resolver.Resolve(ctx, in.WalletAddress),
		PizzaPhotoURL:   in.PizzaPhotoURL,
		ReceiptPhotoURL: in.ReceiptPhotoURL,
		ExtractedAmount: in.ExtractedAmount,
		FinalAmount:     conv.USDAmount,
		Currency:        models.ReferenceCurrency,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.audit.EnqueueAppend(mirror.Record{
		ID:               sub.ID,
		CreatedAt:        sub.CreatedAt,
		WalletAddress:    sub.WalletAddress,
		ENSName:          sub.ENSName,
		OriginalAmount:   conv.OriginalAmount,
		OriginalCurrency: conv.OriginalCurrency,
		USDAmount:        conv.USDAmount,
		ExchangeRate:     conv.ExchangeRate,
		ReceiptPhotoURL:  sub.ReceiptPhotoURL,
		PizzaPhotoURL:    sub.PizzaPhotoURL,
		Status:           sub.Status,
		Notes:            conv.Note(),
	})

	s.logger.Info("Submission created",
		zap.String("id", sub.ID),
		zap.String("wallet", sub.WalletAddress),
		zap.String("usd_amount", sub.FinalAmount.String()),
		zap.Bool("conversion_degraded", conv.Degraded))

	return sub, nil
}

// Get returns a single submission by id
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.store.GetByID(ctx, id)
}

// List returns a page of submissions, newest first
func (s *SubmissionService) List(ctx context.Context, filter repository.ListFilter) (*repository.ListPage, error) {
	return s.store.List(ctx, filter)
}

// Approve moves a pending submission to APPROVED
func (s *SubmissionService) Approve(ctx context.Context, id, reviewedBy string) (*models.Submission, error) {
	if reviewedBy == "" {
		return nil, fmt.Errorf("%w: reviewed_by is required", ErrValidation)
	}

	to, err := lifecycle.Next(lifecycle.StatePending, lifecycle.TriggerApprove)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub, err := s.store.UpdateStatus(ctx, id, repository.StatusPatch{
		FromStatus: string(lifecycle.StatePending),
		ToStatus:   string(to),
		ReviewedBy: reviewedBy,
		ReviewedAt: &now,
	})
	if err != nil {
		return nil, s.mapTransitionErr(ctx, err, id, lifecycle.TriggerApprove)
	}

	s.audit.EnqueueUpdate(sub.ID, mirror.Fields{
		Status:     &sub.Status,
		ReviewedBy: &sub.ReviewedBy,
	})

	s.logger.Info("Submission approved", zap.String("id", id), zap.String("reviewed_by", reviewedBy))
	return sub, nil
}

// Reject moves a pending submission to REJECTED. The reason is optional
// free text surfaced to the claimant.
func (s *SubmissionService) Reject(ctx context.Context, id, reviewedBy, reason string) (*models.Submission, error) {
	if reviewedBy == "" {
		return nil, fmt.Errorf("%w: reviewed_by is required", ErrValidation)
	}

	to, err := lifecycle.Next(lifecycle.StatePending, lifecycle.TriggerReject)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub, err := s.store.UpdateStatus(ctx, id, repository.StatusPatch{
		FromStatus:      string(lifecycle.StatePending),
		ToStatus:        string(to),
		ReviewedBy:      reviewedBy,
		ReviewedAt:      &now,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, s.mapTransitionErr(ctx, err, id, lifecycle.TriggerReject)
	}

	fields := mirror.Fields{
		Status:     &sub.Status,
		ReviewedBy: &sub.ReviewedBy,
	}
	if sub.RejectionReason != "" {
		fields.Notes = &sub.RejectionReason
	}
	s.audit.EnqueueUpdate(sub.ID, fields)

	s.logger.Info("Submission rejected", zap.String("id", id), zap.String("reason", reason))
	return sub, nil
}

// mapTransitionErr turns a lost conditional write into the lifecycle error
// the caller expects: the record exists but the trigger is not legal from
// its current state.
func (s *SubmissionService) mapTransitionErr(ctx context.Context, err error, id string, trigger lifecycle.Trigger) error {
	if !errors.Is(err, repository.ErrStatusConflict) {
		return err
	}
	current, getErr := s.store.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: cannot %s submission in state %s",
		lifecycle.ErrInvalidTransition, trigger, current.Status)
}

func (s *SubmissionService) validateCreate(in CreateSubmissionInput) error {
	if err := utils.ValidateWalletAddress(in.WalletAddress); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateImageURL("pizza_photo_url", in.PizzaPhotoURL); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateImageURL("receipt_photo_url", in.ReceiptPhotoURL); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateAmount("extracted_amount", in.ExtractedAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateAmount("final_amount", in.FinalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	return nil
}
