package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Submission represents a single reimbursement claim
type Submission struct {
	ID              string           `json:"id"`
	WalletAddress   string           `json:"wallet_address"`
	ENSName         string           `json:"ens_name,omitempty"`
	PizzaPhotoURL   string           `json:"pizza_photo_url"`
	ReceiptPhotoURL string           `json:"receipt_photo_url"`
	ExtractedAmount decimal.Decimal  `json:"extracted_amount"` // immutable audit trail, original currency
	FinalAmount     decimal.Decimal  `json:"final_amount"`     // claimant-confirmed, reference currency
	Currency        string           `json:"currency"`         // always USD at rest
	Status          string           `json:"status"`           // PENDING, APPROVED, REJECTED, PAID
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	TransactionHash string           `json:"transaction_hash,omitempty"`
	PaidAmount      *decimal.Decimal `json:"paid_amount,omitempty"` // USDC, 6 decimal places
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Status constants
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusPaid     = "PAID"
)

// ReferenceCurrency is the currency all stored amounts are normalized to.
const ReferenceCurrency = "USD"
