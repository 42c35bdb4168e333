// Package report writes an .xlsx summary of a migration run for the clinic
// staff who sign off on it.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
)

// Sheet names.
const (
	SheetSummary  = "Summary"
	SheetSkipped  = "Skipped"
	SheetWarnings = "Warnings"
)

// Counter is one named count shown on the summary sheet.
type Counter struct {
	Name  string
	Value int
}

// Summary describes the run.
type Summary struct {
	Stage     string
	TenantID  string
	DryRun    bool
	StartedAt time.Time
	Duration  time.Duration
	Counters  []Counter
	Error     string
}

// SkippedItem is a legacy row the run did not migrate.
type SkippedItem struct {
	SourceID int64
	PetID    int64
	Reason   string
	Detail   string
}

// Report collects what the workbook will contain.
type Report struct {
	Summary  Summary
	Skipped  []SkippedItem
	Warnings []logging.LogEntry
}

// Write saves r to path, creating parent directories.
func Write(path string, r Report) error {
	if path == "" {
		return fmt.Errorf("report path is required")
	}
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return fmt.Errorf("report path must end in .xlsx: %s", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("renaming summary sheet: %w", err)
	}
	if err := writeSummary(f, header, r.Summary); err != nil {
		return err
	}
	if err := writeSkipped(f, header, r.Skipped); err != nil {
		return err
	}
	if err := writeWarnings(f, header, r.Warnings); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, header int, s Summary) error {
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Stage", s.Stage},
		{"Tenant", s.TenantID},
		{"Dry run", s.DryRun},
		{"Started at", s.StartedAt.Format(time.RFC3339)},
		{"Duration (s)", s.Duration.Round(time.Millisecond).Seconds()},
	}
	if s.Error != "" {
		rows = append(rows, []interface{}{"Error", s.Error})
	}
	for _, c := range s.Counters {
		rows = append(rows, []interface{}{c.Name, c.Value})
	}

	if err := setRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "B1", header); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "A", "A", 28)
}

func writeSkipped(f *excelize.File, header int, items []SkippedItem) error {
	if _, err := f.NewSheet(SheetSkipped); err != nil {
		return fmt.Errorf("creating skipped sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(items)+1)
	rows = append(rows, []interface{}{"Source ID", "Pet ID", "Reason", "Detail"})
	for _, it := range items {
		rows = append(rows, []interface{}{it.SourceID, it.PetID, it.Reason, it.Detail})
	}

	if err := setRows(f, SheetSkipped, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSkipped, "A1", "D1", header); err != nil {
		return err
	}
	if len(items) > 0 {
		if err := f.AutoFilter(SheetSkipped, fmt.Sprintf("A1:D%d", len(rows)), nil); err != nil {
			return fmt.Errorf("adding filter: %w", err)
		}
	}
	return f.SetColWidth(SheetSkipped, "C", "D", 30)
}

func writeWarnings(f *excelize.File, header int, entries []logging.LogEntry) error {
	if _, err := f.NewSheet(SheetWarnings); err != nil {
		return fmt.Errorf("creating warnings sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(entries)+1)
	rows = append(rows, []interface{}{"Time", "Level", "Message", "Details"})
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.Timestamp.Format(time.RFC3339),
			string(e.Level),
			e.Message,
			formatFields(e.Fields),
		})
	}

	if err := setRows(f, SheetWarnings, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetWarnings, "A1", "D1", header); err != nil {
		return err
	}
	return f.SetColWidth(SheetWarnings, "C", "D", 50)
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}
