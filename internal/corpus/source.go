package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Source is a tabular data handle: a header row followed by data rows.
// Sources are read once, front to back; Next returns io.EOF after the last
// row. Rows may be ragged (shorter or longer than the header).
type Source interface {
	// Headers returns the header row.
	Headers() []string
	// Next returns the next data row, or io.EOF when exhausted.
	Next() ([]string, error)
	// Size returns the estimated input size in bytes, or -1 when unknown.
	Size() int64
	// Fraction reports how much of the input has been consumed, in [0,1],
	// or -1 when the source cannot estimate it.
	Fraction() float64
	Close() error
}

// Open opens path as a tabular source selected by file extension: .xlsx
// (and .xlsm) via the spreadsheet reader, everything else as delimited
// text.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenExcel(path)
	default:
		return OpenCSV(path)
	}
}

// CSVSource reads delimited text with a required header row.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
	size    int64
}

// OpenCSV opens a delimited-text source. The file must contain at least a
// header row.
func OpenCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // tolerate ragged rows, filtered per row later
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("file is empty: %s", path)
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	return &CSVSource{
		file:    file,
		reader:  reader,
		headers: headers,
		size:    info.Size(),
	}, nil
}

// Headers returns the header row.
func (s *CSVSource) Headers() []string { return s.headers }

// Next returns the next data row. Malformed lines that the csv reader
// rejects are skipped rather than aborting the read.
func (s *CSVSource) Next() ([]string, error) {
	for {
		row, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				continue
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		return row, nil
	}
}

// Size returns the file size in bytes.
func (s *CSVSource) Size() int64 { return s.size }

// Fraction reports bytes consumed over file size.
func (s *CSVSource) Fraction() float64 {
	if s.size <= 0 {
		return -1
	}
	return float64(s.reader.InputOffset()) / float64(s.size)
}

// Close closes the underlying file.
func (s *CSVSource) Close() error { return s.file.Close() }

// ExcelSource reads the first sheet of a spreadsheet file.
type ExcelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	size    int64
}

// OpenExcel opens a spreadsheet source. The first sheet's first row is
// treated as the header.
func OpenExcel(path string) (*ExcelSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("no sheets found in %s", path)
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to iterate sheet %s: %w", sheet, err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}
	headers, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	return &ExcelSource{
		file:    f,
		rows:    rows,
		headers: headers,
		size:    info.Size(),
	}, nil
}

// Headers returns the header row.
func (s *ExcelSource) Headers() []string { return s.headers }

// Next returns the next data row, or io.EOF when the sheet is exhausted.
func (s *ExcelSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to advance row: %w", err)
		}
		return nil, io.EOF
	}
	row, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}
	return row, nil
}

// Size returns the file size in bytes.
func (s *ExcelSource) Size() int64 { return s.size }

// Fraction returns -1: the row iterator streams the sheet, and counting
// rows up front would materialize all of it. Callers fall back to
// non-fractional progress.
func (s *ExcelSource) Fraction() float64 { return -1 }

// Close releases the row iterator and the file.
func (s *ExcelSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
