// Package export writes the practice history log to spreadsheets.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/sogretobot/pkg/models"
)

// HistorySource lists history entries
type HistorySource interface {
	ListAll(ctx context.Context, since time.Time) ([]models.HistoryEntry, error)
	ListByUser(ctx context.Context, userID int64) ([]models.HistoryEntry, error)
}

// ExportConfig defines the export configuration
type ExportConfig struct {
	FilePath  string    // Path of the .xlsx or .csv file to write
	SheetName string    // Name of the sheet in Excel output
	Since     time.Time // Only entries completed at or after Since
	UserID    int64     // Only entries of this user when non-zero
}

// DefaultExportConfig returns the default export configuration
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		FilePath:  "history.xlsx",
		SheetName: "Sheet1",
	}
}

// ExportResult holds the result of an export operation
type ExportResult struct {
	Rows  int
	Users int
}

var header = []string{"id", "user_id", "stage_id", "step_id", "day", "action", "user_response", "completed_at"}

// ExportHistory writes the history log to config.FilePath. The format
// follows the file extension.
func ExportHistory(ctx context.Context, src HistorySource, config ExportConfig) (*ExportResult, error) {
	entries, err := listEntries(ctx, src, config)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		err = WriteCSV(file, entries)
	} else {
		err = WriteXLSX(file, config.SheetName, entries)
	}
	if err != nil {
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}

	users := make(map[int64]struct{})
	for _, e := range entries {
		users[e.UserID] = struct{}{}
	}
	return &ExportResult{Rows: len(entries), Users: len(users)}, nil
}

func listEntries(ctx context.Context, src HistorySource, config ExportConfig) ([]models.HistoryEntry, error) {
	if config.UserID == 0 {
		return src.ListAll(ctx, config.Since)
	}
	all, err := src.ListByUser(ctx, config.UserID)
	if err != nil {
		return nil, err
	}
	entries := all[:0]
	for _, e := range all {
		if !e.CompletedAt.Before(config.Since) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// WriteXLSX writes entries as one sheet with a header row
func WriteXLSX(w io.Writer, sheet string, entries []models.HistoryEntry) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		f.SetActiveSheet(idx)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			e.ID, e.UserID, e.StageID, e.StepID, e.Day,
			e.Action, e.Response, e.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheet, "F", "H", 24); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes entries as CSV with a header row
func WriteCSV(w io.Writer, entries []models.HistoryEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.UserID, 10),
			strconv.Itoa(e.StageID),
			strconv.Itoa(e.StepID),
			strconv.Itoa(e.Day),
			e.Action,
			e.Response,
			e.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
