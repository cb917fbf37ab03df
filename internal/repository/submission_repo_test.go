package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/models"
)

const testSchema = `
CREATE TABLE submissions (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    ens_name TEXT,
    pizza_photo_url TEXT NOT NULL,
    receipt_photo_url TEXT NOT NULL,
    extracted_amount TEXT NOT NULL,
    final_amount TEXT NOT NULL,
    currency TEXT NOT NULL DEFAULT 'USD',
    status TEXT NOT NULL DEFAULT 'PENDING',
    reviewed_by TEXT,
    reviewed_at TEXT,
    rejection_reason TEXT,
    transaction_hash TEXT,
    paid_amount TEXT,
    paid_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

func newTestRepo(t *testing.T) *SubmissionRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// A single connection so every query sees the same in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewSubmissionRepository(db, zap.NewNop())
}

func testSubmission(id string, createdAt time.Time) *models.Submission {
	return &models.Submission{
		ID:              id,
		WalletAddress:   "0x1234567890abcdef1234567890abcdef12345678",
		PizzaPhotoURL:   "https://images.example.com/uploads/pizza.jpg",
		ReceiptPhotoURL: "https://images.example.com/uploads/receipt.jpg",
		ExtractedAmount: decimal.RequireFromString("12.50"),
		FinalAmount:     decimal.RequireFromString("13.50"),
		Currency:        models.ReferenceCurrency,
		Status:          models.StatusPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestSubmissionRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sub := testSubmission("sub-1", now)
	sub.ENSName = "vitalik.eth"

	require.NoError(t, repo.Create(ctx, sub))

	got, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)

	assert.Equal(t, sub.WalletAddress, got.WalletAddress)
	assert.Equal(t, "vitalik.eth", got.ENSName)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.ExtractedAmount.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, got.FinalAmount.Equal(decimal.RequireFromString("13.50")))
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.Nil(t, got.ReviewedAt)
	assert.Nil(t, got.PaidAt)
	assert.Empty(t, got.TransactionHash)
}

func TestSubmissionRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionRepository_UpdateStatus_Approve(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, testSubmission("sub-1", now)))

	reviewedAt := now.Add(time.Minute)
	got, err := repo.UpdateStatus(ctx, "sub-1", StatusPatch{
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusApproved,
		ReviewedBy: "admin@slicefund",
		ReviewedAt: &reviewedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "admin@slicefund", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.ReviewedAt.Equal(reviewedAt))
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestSubmissionRepository_UpdateStatus_ConditionalWriteLoses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, testSubmission("sub-1", now)))

	reviewedAt := now.Add(time.Minute)
	_, err := repo.UpdateStatus(ctx, "sub-1", StatusPatch{
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusApproved,
		ReviewedBy: "admin-a",
		ReviewedAt: &reviewedAt,
	})
	require.NoError(t, err)

	// Second admin raced on the same record and lost
	_, err = repo.UpdateStatus(ctx, "sub-1", StatusPatch{
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusRejected,
		ReviewedBy: "admin-b",
		ReviewedAt: &reviewedAt,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	// Loser must not have changed anything
	got, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "admin-a", got.ReviewedBy)
}

func TestSubmissionRepository_UpdateStatus_ConcurrentApproveReject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, testSubmission("sub-1", now)))

	reviewedAt := now.Add(time.Minute)
	patches := []StatusPatch{
		{
			FromStatus: models.StatusPending,
			ToStatus:   models.StatusApproved,
			ReviewedBy: "admin-a",
			ReviewedAt: &reviewedAt,
		},
		{
			FromStatus:      models.StatusPending,
			ToStatus:        models.StatusRejected,
			ReviewedBy:      "admin-b",
			ReviewedAt:      &reviewedAt,
			RejectionReason: "blurry receipt",
		},
	}

	errs := make([]error, len(patches))
	var wg sync.WaitGroup
	for i, patch := range patches {
		wg.Add(1)
		go func(i int, patch StatusPatch) {
			defer wg.Done()
			_, errs[i] = repo.UpdateStatus(ctx, "sub-1", patch)
		}(i, patch)
	}
	wg.Wait()

	// Exactly one of the racing transitions may win
	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrStatusConflict)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	if errs[0] == nil {
		assert.Equal(t, models.StatusApproved, got.Status)
		assert.Equal(t, "admin-a", got.ReviewedBy)
	} else {
		assert.Equal(t, models.StatusRejected, got.Status)
		assert.Equal(t, "admin-b", got.ReviewedBy)
	}
}

func TestSubmissionRepository_UpdateStatus_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpdateStatus(context.Background(), "missing", StatusPatch{
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusApproved,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionRepository_List_Pagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		sub := testSubmission(fmt.Sprintf("sub-%02d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(ctx, sub))
	}

	page1, err := repo.List(ctx, ListFilter{Status: models.StatusPending, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page1.Submissions, 20)
	require.NotEmpty(t, page1.NextCursor)

	// Newest first
	assert.Equal(t, "sub-24", page1.Submissions[0].ID)
	assert.Equal(t, "sub-05", page1.Submissions[19].ID)

	page2, err := repo.List(ctx, ListFilter{Status: models.StatusPending, Limit: 20, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Submissions, 5)
	assert.Empty(t, page2.NextCursor)

	// No duplicates, no gaps across the two pages
	seen := make(map[string]bool)
	for _, sub := range append(page1.Submissions, page2.Submissions...) {
		assert.False(t, seen[sub.ID], "duplicate %s", sub.ID)
		seen[sub.ID] = true
	}
	assert.Len(t, seen, 25)
}

func TestSubmissionRepository_List_TieBreakOnID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// All records share created_at; ordering must still be deterministic
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Create(ctx, testSubmission(id, at)))
	}

	page1, err := repo.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Submissions, 2)
	assert.Equal(t, "d", page1.Submissions[0].ID)
	assert.Equal(t, "c", page1.Submissions[1].ID)

	page2, err := repo.List(ctx, ListFilter{Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Submissions, 2)
	assert.Equal(t, "b", page2.Submissions[0].ID)
	assert.Equal(t, "a", page2.Submissions[1].ID)
}

func TestSubmissionRepository_List_MixedFractionPrecision(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Timestamps whose fractions differ in width must still sort
	// chronologically: with trimmed fractions ".5Z" compares above ".51Z"
	// and the half-second record would surface as the newest.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, rec := range []struct {
		id string
		at time.Time
	}{
		{"sub-half", base.Add(500 * time.Millisecond)},
		{"sub-whole", base},
		{"sub-newest", base.Add(510 * time.Millisecond)},
	} {
		require.NoError(t, repo.Create(ctx, testSubmission(rec.id, rec.at)))
	}

	page, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Submissions, 3)
	assert.Equal(t, "sub-newest", page.Submissions[0].ID)
	assert.Equal(t, "sub-half", page.Submissions[1].ID)
	assert.Equal(t, "sub-whole", page.Submissions[2].ID)

	// Paging across the precision boundary must not skip or repeat
	page1, err := repo.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page1.Submissions, 1)
	assert.Equal(t, "sub-newest", page1.Submissions[0].ID)

	page2, err := repo.List(ctx, ListFilter{Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Submissions, 2)
	assert.Equal(t, "sub-half", page2.Submissions[0].ID)
	assert.Equal(t, "sub-whole", page2.Submissions[1].ID)
}

func TestSubmissionRepository_List_StatusFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pending := testSubmission("sub-pending", base)
	require.NoError(t, repo.Create(ctx, pending))

	approved := testSubmission("sub-approved", base.Add(time.Second))
	approved.Status = models.StatusApproved
	require.NoError(t, repo.Create(ctx, approved))

	page, err := repo.List(ctx, ListFilter{Status: models.StatusApproved})
	require.NoError(t, err)
	require.Len(t, page.Submissions, 1)
	assert.Equal(t, "sub-approved", page.Submissions[0].ID)
}

func TestSubmissionRepository_List_MalformedCursor(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.List(context.Background(), ListFilter{Cursor: "not-base64!!"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestSubmissionRepository_List_CursorWithBadTimestamp(t *testing.T) {
	repo := newTestRepo(t)

	// Well-formed base64 carrying garbage instead of a timestamp
	cursor := base64.URLEncoding.EncodeToString([]byte("not-a-time|sub-1"))
	_, err := repo.List(context.Background(), ListFilter{Cursor: cursor})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestSubmissionRepository_List_LimitClamped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, testSubmission(fmt.Sprintf("sub-%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	page, err := repo.List(ctx, ListFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, page.Submissions, 5)
}
