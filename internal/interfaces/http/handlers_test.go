package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/currency"
	"github.com/slicefund/pizza-claims/internal/domain/lifecycle"
	"github.com/slicefund/pizza-claims/internal/models"
	"github.com/slicefund/pizza-claims/internal/repository"
	"github.com/slicefund/pizza-claims/internal/service"
	"github.com/slicefund/pizza-claims/internal/storage"
	"github.com/slicefund/pizza-claims/internal/vision"
)

type stubSubmissions struct {
	createFn  func(ctx context.Context, in service.CreateSubmissionInput) (*models.Submission, error)
	getFn     func(ctx context.Context, id string) (*models.Submission, error)
	listFn    func(ctx context.Context, filter repository.ListFilter) (*repository.ListPage, error)
	approveFn func(ctx context.Context, id, reviewedBy string) (*models.Submission, error)
	rejectFn  func(ctx context.Context, id, reviewedBy, reason string) (*models.Submission, error)
}

func (s *stubSubmissions) Create(ctx context.Context, in service.CreateSubmissionInput) (*models.Submission, error) {
	return s.createFn(ctx, in)
}

func (s *stubSubmissions) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.getFn(ctx, id)
}

func (s *stubSubmissions) List(ctx context.Context, filter repository.ListFilter) (*repository.ListPage, error) {
	return s.listFn(ctx, filter)
}

func (s *stubSubmissions) Approve(ctx context.Context, id, reviewedBy string) (*models.Submission, error) {
	return s.approveFn(ctx, id, reviewedBy)
}

func (s *stubSubmissions) Reject(ctx context.Context, id, reviewedBy, reason string) (*models.Submission, error) {
	return s.rejectFn(ctx, id, reviewedBy, reason)
}

type stubPayments struct {
	recordFn func(ctx context.Context, id, hash string, amount decimal.Decimal) (*models.Submission, error)
}

func (s *stubPayments) RecordPayment(ctx context.Context, id, hash string, amount decimal.Decimal) (*models.Submission, error) {
	return s.recordFn(ctx, id, hash, amount)
}

type stubUploader struct {
	upload *storage.PresignedUpload
	err    error
}

func (s *stubUploader) PresignUpload(context.Context, string, string) (*storage.PresignedUpload, error) {
	return s.upload, s.err
}

type stubAnalyzer struct {
	result *vision.ExtractionResult
	err    error
}

func (s *stubAnalyzer) ExtractReceipt(context.Context, string) (*vision.ExtractionResult, error) {
	return s.result, s.err
}

type stubConverter struct {
	conversion currency.Conversion
}

func (s *stubConverter) ToUSD(_ context.Context, amount decimal.Decimal, code string) currency.Conversion {
	if s.conversion.OriginalCurrency == "" {
		return currency.Conversion{
			USDAmount:        amount,
			ExchangeRate:     decimal.NewFromInt(1),
			OriginalAmount:   amount,
			OriginalCurrency: code,
		}
	}
	return s.conversion
}

type testDeps struct {
	submissions *stubSubmissions
	payments    *stubPayments
	uploader    *stubUploader
	analyzer    *stubAnalyzer
	converter   *stubConverter
}

func newTestServer(deps testDeps) *Server {
	if deps.submissions == nil {
		deps.submissions = &stubSubmissions{}
	}
	if deps.payments == nil {
		deps.payments = &stubPayments{}
	}
	if deps.uploader == nil {
		deps.uploader = &stubUploader{}
	}
	if deps.analyzer == nil {
		deps.analyzer = &stubAnalyzer{}
	}
	if deps.converter == nil {
		deps.converter = &stubConverter{}
	}

	handlers := NewHandlers(deps.submissions, deps.payments, deps.uploader, deps.analyzer, deps.converter, zap.NewNop())
	return NewServer(DefaultServerConfig(), handlers, zap.NewNop())
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	w := doJSON(t, newTestServer(testDeps{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)
}

func TestCreateSubmission(t *testing.T) {
	submissions := &stubSubmissions{
		createFn: func(_ context.Context, in service.CreateSubmissionInput) (*models.Submission, error) {
			return &models.Submission{
				ID:            "sub-1",
				WalletAddress: in.WalletAddress,
				Status:        models.StatusPending,
			}, nil
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}), http.MethodPost, "/api/submissions", reqBody{
		"wallet_address":    "0x1111111111111111111111111111111111111111",
		"pizza_photo_url":   "https://cdn.example.com/uploads/p.jpg",
		"receipt_photo_url": "https://cdn.example.com/uploads/r.jpg",
		"extracted_amount":  "12.50",
		"final_amount":      "12.50",
		"currency":          "EUR",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
}

func TestCreateSubmission_ValidationError(t *testing.T) {
	submissions := &stubSubmissions{
		createFn: func(context.Context, service.CreateSubmissionInput) (*models.Submission, error) {
			return nil, fmt.Errorf("%w: invalid wallet address", service.ErrValidation)
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}), http.MethodPost, "/api/submissions", reqBody{
		"wallet_address":    "0x123",
		"pizza_photo_url":   "https://cdn.example.com/uploads/p.jpg",
		"receipt_photo_url": "https://cdn.example.com/uploads/r.jpg",
		"currency":          "USD",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeResponse(t, w).Success)
}

func TestCreateSubmission_MissingBody(t *testing.T) {
	w := doJSON(t, newTestServer(testDeps{}), http.MethodPost, "/api/submissions", reqBody{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubmission_NotFound(t *testing.T) {
	submissions := &stubSubmissions{
		getFn: func(_ context.Context, id string) (*models.Submission, error) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}), http.MethodGet, "/api/submissions/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSubmissions(t *testing.T) {
	var got repository.ListFilter
	submissions := &stubSubmissions{
		listFn: func(_ context.Context, filter repository.ListFilter) (*repository.ListPage, error) {
			got = filter
			return &repository.ListPage{
				Submissions: []*models.Submission{{ID: "sub-1"}},
				NextCursor:  "cursor-2",
			}, nil
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}),
		http.MethodGet, "/api/submissions?status=PENDING&limit=10&cursor=abc", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", got.Status)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, "abc", got.Cursor)
}

func TestListSubmissions_MalformedCursor(t *testing.T) {
	submissions := &stubSubmissions{
		listFn: func(context.Context, repository.ListFilter) (*repository.ListPage, error) {
			return nil, repository.ErrInvalidCursor
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}),
		http.MethodGet, "/api/submissions?cursor=junk", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSubmissions_BadLimit(t *testing.T) {
	w := doJSON(t, newTestServer(testDeps{}), http.MethodGet, "/api/submissions?limit=abc", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveSubmission_Conflict(t *testing.T) {
	submissions := &stubSubmissions{
		approveFn: func(context.Context, string, string) (*models.Submission, error) {
			return nil, fmt.Errorf("%w: cannot approve submission in state PAID", lifecycle.ErrInvalidTransition)
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}),
		http.MethodPost, "/api/submissions/sub-1/approve", reqBody{"reviewed_by": "0xreviewer"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveSubmission_MissingReviewer(t *testing.T) {
	w := doJSON(t, newTestServer(testDeps{}),
		http.MethodPost, "/api/submissions/sub-1/approve", reqBody{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectSubmission(t *testing.T) {
	var gotReason string
	submissions := &stubSubmissions{
		rejectFn: func(_ context.Context, id, reviewedBy, reason string) (*models.Submission, error) {
			gotReason = reason
			return &models.Submission{ID: id, Status: models.StatusRejected}, nil
		},
	}

	w := doJSON(t, newTestServer(testDeps{submissions: submissions}),
		http.MethodPost, "/api/submissions/sub-1/reject",
		reqBody{"reviewed_by": "0xreviewer", "rejection_reason": "blurry receipt"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "blurry receipt", gotReason)
}

func TestPaySubmission(t *testing.T) {
	txHash := "0x9f2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88"
	payments := &stubPayments{
		recordFn: func(_ context.Context, id, hash string, _ decimal.Decimal) (*models.Submission, error) {
			return &models.Submission{ID: id, Status: models.StatusPaid, TransactionHash: hash}, nil
		},
	}

	w := doJSON(t, newTestServer(testDeps{payments: payments}),
		http.MethodPost, "/api/submissions/sub-1/pay",
		reqBody{"transaction_hash": txHash, "paid_amount": "13.50"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://basescan.org/tx/"+txHash)
}

func TestPaySubmission_AlreadyPaid(t *testing.T) {
	payments := &stubPayments{
		recordFn: func(context.Context, string, string, decimal.Decimal) (*models.Submission, error) {
			return nil, fmt.Errorf("%w: sub-1", service.ErrAlreadyPaid)
		},
	}

	w := doJSON(t, newTestServer(testDeps{payments: payments}),
		http.MethodPost, "/api/submissions/sub-1/pay",
		reqBody{"transaction_hash": "0x9f2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPaySubmission_NotApproved(t *testing.T) {
	payments := &stubPayments{
		recordFn: func(context.Context, string, string, decimal.Decimal) (*models.Submission, error) {
			return nil, fmt.Errorf("%w: submission sub-1 is PENDING", service.ErrNotApproved)
		},
	}

	w := doJSON(t, newTestServer(testDeps{payments: payments}),
		http.MethodPost, "/api/submissions/sub-1/pay",
		reqBody{"transaction_hash": "0x9f2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPresignUpload(t *testing.T) {
	uploader := &stubUploader{
		upload: &storage.PresignedUpload{
			UploadURL: "https://r2.example.com/presigned",
			PublicURL: "https://cdn.example.com/uploads/x.jpg",
			Key:       "uploads/x.jpg",
			ExpiresIn: 900,
		},
	}

	w := doJSON(t, newTestServer(testDeps{uploader: uploader}),
		http.MethodPost, "/api/uploads", reqBody{"filename": "x.jpg", "content_type": "image/jpeg"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uploads/x.jpg")
}

func TestPresignUpload_UnsupportedContentType(t *testing.T) {
	uploader := &stubUploader{
		err: fmt.Errorf("%w: application/pdf", storage.ErrUnsupportedContentType),
	}

	w := doJSON(t, newTestServer(testDeps{uploader: uploader}),
		http.MethodPost, "/api/uploads", reqBody{"content_type": "application/pdf"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeReceipt(t *testing.T) {
	analyzer := &stubAnalyzer{
		result: &vision.ExtractionResult{
			Amount:     decimal.RequireFromString("12.50"),
			Currency:   "EUR",
			Confidence: 0.93,
		},
	}
	converter := &stubConverter{conversion: currency.Conversion{
		USDAmount:        decimal.RequireFromString("13.50"),
		ExchangeRate:     decimal.RequireFromString("1.08"),
		OriginalAmount:   decimal.RequireFromString("12.50"),
		OriginalCurrency: "EUR",
		Source:           "static",
	}}

	w := doJSON(t, newTestServer(testDeps{analyzer: analyzer, converter: converter}),
		http.MethodPost, "/api/analyze-receipt", reqBody{"image_url": "https://cdn.example.com/uploads/r.jpg"})

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"usd_amount":"13.5"`)
	assert.Contains(t, body, `"exchange_rate":"1.08"`)
	assert.Contains(t, body, "Converted from 12.5 EUR")
}

func TestAnalyzeReceipt_UpstreamUnavailable(t *testing.T) {
	analyzer := &stubAnalyzer{
		err: fmt.Errorf("%w: rate limited", vision.ErrUpstreamUnavailable),
	}

	w := doJSON(t, newTestServer(testDeps{analyzer: analyzer}),
		http.MethodPost, "/api/analyze-receipt", reqBody{"image_url": "https://cdn.example.com/uploads/r.jpg"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

type reqBody = map[string]interface{}
