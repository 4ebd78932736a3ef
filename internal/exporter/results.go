// Package exporter writes analysis results to delimited-text, spreadsheet
// or JSON output, selected by file extension or explicit format.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"revsense/pkg/contracts/domain"
)

// Format identifies an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat converts a format name to a Format, defaulting to CSV for
// empty or unrecognized names.
func ParseFormat(name string) Format {
	switch strings.ToLower(name) {
	case "xlsx":
		return FormatXLSX
	case "json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// FormatFor selects the export format from a file extension, defaulting to
// delimited text for unrecognized extensions.
func FormatFor(path string) Format {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Tabular projection of a result set.
var resultHeaders = []string{"Product", "Positive (%)", "Negative (%)", "Neutral (%)", "Total Reviews"}

// Writer exports result sets.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a result export writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "exporter"))}
}

// Export writes the result set to path in the format implied by its
// extension. Products are emitted in sorted order.
func (w *Writer) Export(path string, results domain.ResultSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	format := FormatFor(path)
	w.logger.Info("exporting results",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("products", len(results)))

	return w.ExportTo(file, format, results)
}

// ExportTo streams the result set to out in the given format. HTTP handlers
// use this to export without a temporary file.
func (w *Writer) ExportTo(out io.Writer, format Format, results domain.ResultSet) error {
	switch format {
	case FormatXLSX:
		return w.writeXLSX(out, results)
	case FormatJSON:
		return w.writeJSON(out, results)
	default:
		return w.writeCSV(out, results)
	}
}

// writeCSV writes the tabular projection with a UTF-8 BOM so spreadsheet
// applications recognize the encoding.
func (w *Writer) writeCSV(out io.Writer, results domain.ResultSet) error {
	if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(resultHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, product := range results.Products() {
		if err := cw.Write(resultRow(product, results[product])); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", product, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeXLSX writes the tabular projection to the first sheet of a new
// workbook.
func (w *Writer) writeXLSX(out io.Writer, results domain.ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, product := range results.Products() {
		s := results[product]
		row := []interface{}{product, s.Pos, s.Neg, s.Neu, s.Total}
		axis, err := excelize.JoinCellName("A", i+2)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", product, err)
		}
	}

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeJSON writes the result set in the same flat shape the result cache
// uses: product name mapped to its summary object.
func (w *Writer) writeJSON(out io.Writer, results domain.ResultSet) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

func resultRow(product string, s domain.SentimentSummary) []string {
	return []string{
		product,
		formatFloat(s.Pos),
		formatFloat(s.Neg),
		formatFloat(s.Neu),
		fmt.Sprintf("%d", s.Total),
	}
}
