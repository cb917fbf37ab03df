package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/models"
)

// MaxListLimit caps page sizes for submission listing
const MaxListLimit = 100

// DefaultListLimit is used when the caller does not specify a page size
const DefaultListLimit = 20

// SubmissionRepository handles submission database operations
type SubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sql.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// StatusPatch describes a conditional status transition. Only the fields
// legal for the transition may be set; everything else stays untouched.
type StatusPatch struct {
	FromStatus string
	ToStatus   string

	ReviewedBy      string
	ReviewedAt      *time.Time
	RejectionReason string

	TransactionHash string
	PaidAmount      *decimal.Decimal
	PaidAt          *time.Time
}

// ListFilter describes a paginated listing request
type ListFilter struct {
	Status string
	Cursor string
	Limit  int
}

// ListPage is one page of submissions plus a continuation cursor
type ListPage struct {
	Submissions []*models.Submission
	NextCursor  string
}

const submissionColumns = `
	id, wallet_address, ens_name, pizza_photo_url, receipt_photo_url,
	extracted_amount, final_amount, currency, status,
	reviewed_by, reviewed_at, rejection_reason,
	transaction_hash, paid_amount, paid_at,
	created_at, updated_at
`

// Create persists a new submission record
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.WalletAddress,
		nullString(sub.ENSName),
		sub.PizzaPhotoURL,
		sub.ReceiptPhotoURL,
		sub.ExtractedAmount.String(),
		sub.FinalAmount.String(),
		sub.Currency,
		sub.Status,
		nullString(sub.ReviewedBy),
		nullTime(sub.ReviewedAt),
		nullString(sub.RejectionReason),
		nullString(sub.TransactionHash),
		nullDecimal(sub.PaidAmount),
		nullTime(sub.PaidAt),
		formatTime(sub.CreatedAt),
		formatTime(sub.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create submission", zap.String("id", sub.ID), zap.Error(err))
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// GetByID retrieves a submission by id
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`

	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get submission", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return sub, nil
}

// List returns submissions newest-first with keyset pagination. Ordering is
// (created_at DESC, id DESC) so pages stay stable under concurrent inserts
// even when created_at collides.
func (r *SubmissionRepository) List(ctx context.Context, filter ListFilter) (*ListPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	if filter.Cursor != "" {
		createdAt, id, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		conds = append(conds, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, createdAt, createdAt, id)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// Fetch one extra row to detect whether another page exists
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list submissions", zap.Error(err))
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	page := &ListPage{}
	if len(subs) > limit {
		subs = subs[:limit]
		last := subs[len(subs)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	page.Submissions = subs

	return page, nil
}

// UpdateStatus applies a conditional status transition as a single atomic
// write: the UPDATE only matches while the record still carries FromStatus,
// so exactly one of two racing transitions can win. Zero rows affected is
// disambiguated into ErrNotFound vs ErrStatusConflict by a follow-up read.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, patch StatusPatch) (*models.Submission, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{patch.ToStatus, formatTime(time.Now().UTC())}

	if patch.ReviewedBy != "" {
		sets = append(sets, "reviewed_by = ?")
		args = append(args, patch.ReviewedBy)
	}
	if patch.ReviewedAt != nil {
		sets = append(sets, "reviewed_at = ?")
		args = append(args, formatTime(*patch.ReviewedAt))
	}
	if patch.RejectionReason != "" {
		sets = append(sets, "rejection_reason = ?")
		args = append(args, patch.RejectionReason)
	}
	if patch.TransactionHash != "" {
		sets = append(sets, "transaction_hash = ?")
		args = append(args, patch.TransactionHash)
	}
	if patch.PaidAmount != nil {
		sets = append(sets, "paid_amount = ?")
		args = append(args, patch.PaidAmount.String())
	}
	if patch.PaidAt != nil {
		sets = append(sets, "paid_at = ?")
		args = append(args, formatTime(*patch.PaidAt))
	}

	query := "UPDATE submissions SET " + strings.Join(sets, ", ") + " WHERE id = ? AND status = ?"
	args = append(args, id, patch.FromStatus)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update submission status",
			zap.String("id", id),
			zap.String("to_status", patch.ToStatus),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: submission %s is %s, expected %s",
			ErrStatusConflict, id, current.Status, patch.FromStatus)
	}

	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var ensName, reviewedBy, rejectionReason, txHash sql.NullString
	var reviewedAt, paidAt sql.NullString
	var paidAmount sql.NullString
	var extracted, final, createdAt, updatedAt string

	err := row.Scan(
		&sub.ID,
		&sub.WalletAddress,
		&ensName,
		&sub.PizzaPhotoURL,
		&sub.ReceiptPhotoURL,
		&extracted,
		&final,
		&sub.Currency,
		&sub.Status,
		&reviewedBy,
		&reviewedAt,
		&rejectionReason,
		&txHash,
		&paidAmount,
		&paidAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.ENSName = ensName.String
	sub.ReviewedBy = reviewedBy.String
	sub.RejectionReason = rejectionReason.String
	sub.TransactionHash = txHash.String

	if sub.ExtractedAmount, err = decimal.NewFromString(extracted); err != nil {
		return nil, fmt.Errorf("malformed extracted_amount %q: %w", extracted, err)
	}
	if sub.FinalAmount, err = decimal.NewFromString(final); err != nil {
		return nil, fmt.Errorf("malformed final_amount %q: %w", final, err)
	}
	if paidAmount.Valid {
		amt, err := decimal.NewFromString(paidAmount.String)
		if err != nil {
			return nil, fmt.Errorf("malformed paid_amount %q: %w", paidAmount.String, err)
		}
		sub.PaidAmount = &amt
	}

	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t, err := parseTime(reviewedAt.String)
		if err != nil {
			return nil, err
		}
		sub.ReviewedAt = &t
	}
	if paidAt.Valid {
		t, err := parseTime(paidAt.String)
		if err != nil {
			return nil, err
		}
		sub.PaidAt = &t
	}

	return &sub, nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction. The fixed width
// matters: timestamps are compared lexicographically in the keyset
// predicate, and a trimmed fraction ("00.5Z" vs "00.51Z") would sort the
// older record as newer because 'Z' outranks any digit.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	return base64.URLEncoding.EncodeToString([]byte(formatTime(createdAt) + "|" + id))
}

func decodeCursor(cursor string) (string, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidCursor
	}
	// Re-encode the timestamp canonically so the keyset predicate always
	// compares fixed-width values, whatever precision the cursor carried.
	ts, err := parseTime(parts[0])
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return formatTime(ts), parts[1], nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
