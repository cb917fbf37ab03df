package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/currency"
	"github.com/slicefund/pizza-claims/internal/domain/lifecycle"
	"github.com/slicefund/pizza-claims/internal/ledger"
	"github.com/slicefund/pizza-claims/internal/models"
	"github.com/slicefund/pizza-claims/internal/repository"
	"github.com/slicefund/pizza-claims/internal/service"
	"github.com/slicefund/pizza-claims/internal/storage"
	"github.com/slicefund/pizza-claims/internal/vision"
)

// SubmissionManager is the submission service surface used by the handlers
type SubmissionManager interface {
	Create(ctx context.Context, in service.CreateSubmissionInput) (*models.Submission, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter repository.ListFilter) (*repository.ListPage, error)
	Approve(ctx context.Context, id, reviewedBy string) (*models.Submission, error)
	Reject(ctx context.Context, id, reviewedBy, reason string) (*models.Submission, error)
}

// PaymentRecorder records externally executed payouts
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, id, transactionHash string, paidAmount decimal.Decimal) (*models.Submission, error)
}

// Uploader mints presigned upload targets
type Uploader interface {
	PresignUpload(ctx context.Context, filename, contentType string) (*storage.PresignedUpload, error)
}

// ReceiptAnalyzer extracts receipt totals from stored images
type ReceiptAnalyzer interface {
	ExtractReceipt(ctx context.Context, imageRef string) (*vision.ExtractionResult, error)
}

// Converter previews currency normalization for the analyze endpoint
type Converter interface {
	ToUSD(ctx context.Context, amount decimal.Decimal, currencyCode string) currency.Conversion
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	submissions SubmissionManager
	payments    PaymentRecorder
	uploader    Uploader
	analyzer    ReceiptAnalyzer
	converter   Converter
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	submissions SubmissionManager,
	payments PaymentRecorder,
	uploader Uploader,
	analyzer ReceiptAnalyzer,
	converter Converter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		submissions: submissions,
		payments:    payments,
		uploader:    uploader,
		analyzer:    analyzer,
		converter:   converter,
		logger:      logger,
	}
}

// Response is the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// PresignUploadRequest is the body of POST /api/uploads
type PresignUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type" binding:"required"`
}

// PresignUpload handles POST /api/uploads
func (h *Handlers) PresignUpload(c *gin.Context) {
	var req PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "content_type is required")
		return
	}

	upload, err := h.uploader.PresignUpload(c.Request.Context(), req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedContentType) {
			h.badRequest(c, err.Error())
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: upload})
}

// AnalyzeReceiptRequest is the body of POST /api/analyze-receipt
type AnalyzeReceiptRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
}

// AnalyzeReceiptResponse combines extraction with a conversion preview so
// the client can show the claimant the USD amount before they confirm
type AnalyzeReceiptResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Confidence     float64         `json:"confidence"`
	Items          []string        `json:"items,omitempty"`
	LowConfidence  bool            `json:"low_confidence"`
	USDAmount      decimal.Decimal `json:"usd_amount"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	Degraded       bool            `json:"degraded,omitempty"`
	ConversionNote string          `json:"conversion_note,omitempty"`
}

// AnalyzeReceipt handles POST /api/analyze-receipt
func (h *Handlers) AnalyzeReceipt(c *gin.Context) {
	var req AnalyzeReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "image_url is required")
		return
	}

	extraction, err := h.analyzer.ExtractReceipt(c.Request.Context(), req.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conv := h.converter.ToUSD(c.Request.Context(), extraction.Amount, extraction.Currency)

	c.JSON(http.StatusOK, Response{Success: true, Data: AnalyzeReceiptResponse{
		Amount:         extraction.Amount,
		Currency:       conv.OriginalCurrency,
		Confidence:     extraction.Confidence,
		Items:          extraction.Items,
		LowConfidence:  extraction.LowConfidence,
		USDAmount:      conv.USDAmount,
		ExchangeRate:   conv.ExchangeRate,
		Degraded:       conv.Degraded,
		ConversionNote: conv.Note(),
	}})
}

// CreateSubmissionRequest is the body of POST /api/submissions
type CreateSubmissionRequest struct {
	WalletAddress   string          `json:"wallet_address" binding:"required"`
	PizzaPhotoURL   string          `json:"pizza_photo_url" binding:"required"`
	ReceiptPhotoURL string          `json:"receipt_photo_url" binding:"required"`
	ExtractedAmount decimal.Decimal `json:"extracted_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	Currency        string          `json:"currency" binding:"required"`
}

// CreateSubmission handles POST /api/submissions
func (h *Handlers) CreateSubmission(c *gin.Context) {
	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	sub, err := h.submissions.Create(c.Request.Context(), service.CreateSubmissionInput{
		WalletAddress:   req.WalletAddress,
		PizzaPhotoURL:   req.PizzaPhotoURL,
		ReceiptPhotoURL: req.ReceiptPhotoURL,
		ExtractedAmount: req.ExtractedAmount,
		FinalAmount:     req.FinalAmount,
		Currency:        req.Currency,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: sub})
}

// ListSubmissionsResponse is one page of submissions
type ListSubmissionsResponse struct {
	Submissions []*models.Submission `json:"submissions"`
	NextCursor  string               `json:"next_cursor,omitempty"`
}

// ListSubmissions handles GET /api/submissions
func (h *Handlers) ListSubmissions(c *gin.Context) {
	filter := repository.ListFilter{
		Status: c.Query("status"),
		Cursor: c.Query("cursor"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			h.badRequest(c, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}

	page, err := h.submissions.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	subs := page.Submissions
	if subs == nil {
		subs = []*models.Submission{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ListSubmissionsResponse{
		Submissions: subs,
		NextCursor:  page.NextCursor,
	}})
}

// GetSubmission handles GET /api/submissions/:id
func (h *Handlers) GetSubmission(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// ReviewRequest is the body of approve and reject calls
type ReviewRequest struct {
	ReviewedBy      string `json:"reviewed_by" binding:"required"`
	RejectionReason string `json:"rejection_reason"`
}

// ApproveSubmission handles POST /api/submissions/:id/approve
func (h *Handlers) ApproveSubmission(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "reviewed_by is required")
		return
	}

	sub, err := h.submissions.Approve(c.Request.Context(), c.Param("id"), req.ReviewedBy)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// RejectSubmission handles POST /api/submissions/:id/reject
func (h *Handlers) RejectSubmission(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "reviewed_by is required")
		return
	}

	sub, err := h.submissions.Reject(c.Request.Context(), c.Param("id"), req.ReviewedBy, req.RejectionReason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// PayRequest is the body of POST /api/submissions/:id/pay
type PayRequest struct {
	TransactionHash string          `json:"transaction_hash" binding:"required"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
}

// PayResponse includes the block explorer link for the recorded transfer
type PayResponse struct {
	Submission  *models.Submission `json:"submission"`
	ExplorerURL string             `json:"explorer_url"`
}

// PaySubmission handles POST /api/submissions/:id/pay
func (h *Handlers) PaySubmission(c *gin.Context) {
	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "transaction_hash is required")
		return
	}

	sub, err := h.payments.RecordPayment(c.Request.Context(), c.Param("id"), req.TransactionHash, req.PaidAmount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: PayResponse{
		Submission:  sub,
		ExplorerURL: ledger.BaseScanURL(sub.TransactionHash),
	}})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// respondError maps domain errors onto HTTP status codes: validation 400,
// missing records 404, lifecycle conflicts 409, upstream failures 502.
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, repository.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrNotApproved):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, vision.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal server error"})
	}
}
