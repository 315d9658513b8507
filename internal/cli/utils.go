// Package cli provides output helpers for the AutoScan commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/autoscan/internal/insight"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/notion"
	"github.com/hyperjump/autoscan/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputXLSX is a spreadsheet with one row per item.
	OutputXLSX OutputFormat = "xlsx"
)

// ItemSheet is the sheet name used by the xlsx output.
const ItemSheet = "Action Items"

const simpleTextWidth = 200

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, json, or xlsx", s)
}

// WriteItems writes items to w in the given format.
func WriteItems(w io.Writer, items []models.ActionItem, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(items)
	case OutputXLSX:
		return WriteItemsXLSX(w, items)
	default:
		writeItemsText(w, items)
		return nil
	}
}

func writeItemsText(w io.Writer, items []models.ActionItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No action items found.")
		return
	}
	fmt.Fprintf(w, "\nFound %d action items (%d structured)\n\n", len(items), models.CountStructured(items))
	for i, item := range items {
		if !item.IsStructured() {
			fmt.Fprintf(w, "%d. %s\n", i+1, utils.Truncate(utils.OneLine(item.Text), simpleTextWidth))
			continue
		}
		f := item.Fields
		status := f.Status
		if status == "" {
			status = models.StatusNotStarted
		}
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, status, f.Description)
		if f.Owner != "" || f.DueDate != "" {
			fmt.Fprintf(w, "   負責人: %s  到期日: %s\n", orDash(f.Owner), orDash(f.DueDate))
		}
		if len(f.Project) > 0 || len(f.Category) > 0 {
			fmt.Fprintf(w, "   專案: %s  分類: %s\n", orDash(strings.Join(f.Project, ", ")), orDash(strings.Join(f.Category, ", ")))
		}
		if len(f.Keywords) > 0 {
			fmt.Fprintf(w, "   關鍵字: %s\n", keywordList(f.Keywords))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func keywordList(kws []models.Keyword) string {
	parts := make([]string, 0, len(kws))
	for _, k := range kws {
		parts = append(parts, fmt.Sprintf("%s(%d)", k.Text, k.Weight))
	}
	return strings.Join(parts, ", ")
}

var itemHeaders = []interface{}{"ToDo", "狀態", "負責人", "到期日", "專案", "歸屬分類", "關鍵字", "建立時間"}

// WriteItemsXLSX writes items as a workbook with a header row. Simple
// items fill the ToDo column only.
func WriteItemsXLSX(w io.Writer, items []models.ActionItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ItemSheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := f.SetSheetRow(ItemSheet, "A1", &itemHeaders); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i, item := range items {
		row := []interface{}{item.Title()}
		if item.IsStructured() {
			fd := item.Fields
			row = append(row,
				string(fd.Status),
				fd.Owner,
				fd.DueDate,
				strings.Join(fd.Project, ", "),
				strings.Join(fd.Category, ", "),
				keywordList(fd.Keywords),
				fd.CreatedAt,
			)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetSheetRow(ItemSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// WriteSummary writes the insight counts as text or JSON.
func WriteSummary(w io.Writer, s insight.Summary, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "\nItems: %d\n", s.Total)
	for _, sec := range []struct {
		name   string
		counts []insight.Count
	}{
		{"Status", s.Status},
		{"Projects", s.Projects},
		{"Categories", s.Categories},
		{"Owners", s.Owners},
		{"Keywords", s.Keywords},
	} {
		if len(sec.counts) == 0 {
			continue
		}
		parts := make([]string, 0, len(sec.counts))
		for _, c := range sec.counts {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Label, c.Value))
		}
		fmt.Fprintf(w, "%s: %s\n", sec.name, strings.Join(parts, "  "))
	}
	return nil
}

// WriteBatchResult reports a Notion upload.
func WriteBatchResult(w io.Writer, res *notion.BatchResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "Uploaded %d/%d items to Notion\n", res.Count, res.Total)
	for _, r := range res.Results {
		fmt.Fprintf(w, "  %-7s %s %s\n", r.Action, r.PageID, utils.Truncate(r.Title, 60))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error   %s\n", e)
	}
	return nil
}
