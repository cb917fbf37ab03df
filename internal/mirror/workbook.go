// Package mirror maintains a best-effort audit copy of every submission in
// an Excel workbook. Mirror failures are logged and swallowed; they never
// block or roll back the primary transition.
package mirror

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const sheetName = "Sheet1"

// headers, one column per audit field. Updates target columns K through P.
var headers = []string{
	"Submission ID",
	"Timestamp",
	"Wallet Address",
	"ENS Name",
	"Original Amount",
	"Original Currency",
	"USD Amount",
	"Exchange Rate",
	"Receipt Photo URL",
	"Pizza Photo URL",
	"Status",
	"Transaction Hash",
	"Paid Amount (USDC)",
	"Paid At",
	"Reviewed By",
	"Notes",
}

// Record is one full mirror row, written at submission time
type Record struct {
	ID               string
	CreatedAt        time.Time
	WalletAddress    string
	ENSName          string
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	USDAmount        decimal.Decimal
	ExchangeRate     decimal.Decimal
	ReceiptPhotoURL  string
	PizzaPhotoURL    string
	Status           string
	Notes            string
}

// Fields carries targeted updates for an existing row. Nil means untouched.
type Fields struct {
	Status          *string
	TransactionHash *string
	PaidAmount      *decimal.Decimal
	PaidAt          *time.Time
	ReviewedBy      *string
	Notes           *string
}

// Workbook is an excelize-backed audit ledger
type Workbook struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewWorkbook creates a workbook mirror at the given path. The file is
// created with headers on first write.
func NewWorkbook(path string, logger *zap.Logger) *Workbook {
	return &Workbook{
		path:   path,
		logger: logger,
	}
}

// Append writes one row for a new submission
func (w *Workbook) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("failed to read mirror rows: %w", err)
	}
	rowNumber := len(rows) + 1

	values := []interface{}{
		rec.ID,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.WalletAddress,
		rec.ENSName,
		rec.OriginalAmount.String(),
		rec.OriginalCurrency,
		rec.USDAmount.String(),
		rec.ExchangeRate.String(),
		rec.ReceiptPhotoURL,
		rec.PizzaPhotoURL,
		rec.Status,
		"", // Transaction Hash
		"", // Paid Amount
		"", // Paid At
		"", // Reviewed By
		rec.Notes,
	}

	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNumber)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save mirror workbook: %w", err)
	}

	w.logger.Debug("Mirrored submission", zap.String("id", rec.ID), zap.Int("row", rowNumber))
	return nil
}

// UpdateFields updates the audit columns (K–P) of an existing row, located
// by submission id in column A.
func (w *Workbook) UpdateFields(id string, fields Fields) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("failed to read mirror rows: %w", err)
	}

	rowNumber := 0
	for i, row := range rows {
		if len(row) > 0 && row[0] == id {
			rowNumber = i + 1
			break
		}
	}
	if rowNumber == 0 {
		return fmt.Errorf("submission %s not found in mirror", id)
	}

	set := func(column string, value interface{}) error {
		return f.SetCellValue(sheetName, fmt.Sprintf("%s%d", column, rowNumber), value)
	}

	if fields.Status != nil {
		if err := set("K", *fields.Status); err != nil {
			return err
		}
	}
	if fields.TransactionHash != nil {
		if err := set("L", *fields.TransactionHash); err != nil {
			return err
		}
	}
	if fields.PaidAmount != nil {
		if err := set("M", fields.PaidAmount.String()); err != nil {
			return err
		}
	}
	if fields.PaidAt != nil {
		if err := set("N", fields.PaidAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if fields.ReviewedBy != nil {
		if err := set("O", *fields.ReviewedBy); err != nil {
			return err
		}
	}
	if fields.Notes != nil {
		if err := set("P", *fields.Notes); err != nil {
			return err
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save mirror workbook: %w", err)
	}

	w.logger.Debug("Updated mirrored submission", zap.String("id", id), zap.Int("row", rowNumber))
	return nil
}

// open returns the workbook, creating it with a header row if absent
func (w *Workbook) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		for i, header := range headers {
			cell, err := excelize.CoordinatesToCellName(i+1, 1)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to compute header cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, header); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write header: %w", err)
			}
		}
		return f, nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror workbook: %w", err)
	}
	return f, nil
}
