package survey

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sherockets/domain/dataset"
	"sherockets/internal"

	"github.com/xuri/excelize/v2"
)

// Format is the on-disk encoding of a survey export
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from the file extension; anything but .xlsx is CSV
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// ReaderConfig controls how the wide export is loaded
type ReaderConfig struct {
	Path     string
	Sheet    string // xlsx only; empty means the first sheet
	IDColumn string // optional respondent id column; row index otherwise
}

// DataReader handles reading Excel and CSV survey exports
type DataReader struct {
	config ReaderConfig
	format Format
	logger *internal.Logger
}

// NewDataReader creates a reader for a CSV or XLSX file
func NewDataReader(config ReaderConfig, logger *internal.Logger) *DataReader {
	return &DataReader{
		config: config,
		format: FormatFromPath(config.Path),
		logger: internal.OrDefault(logger).With("survey"),
	}
}

// Read loads the whole file into memory. The table is treated as immutable afterwards.
func (r *DataReader) Read(ctx context.Context) (*dataset.Table, error) {
	if _, err := os.Stat(r.config.Path); err != nil {
		return nil, fmt.Errorf("%s file not found: %s: %w", strings.ToUpper(string(r.format)), r.config.Path, err)
	}
	f, err := os.Open(r.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.config.Path, err)
	}
	defer f.Close()

	return ReadFrom(ctx, f, r.format, r.config, r.logger)
}

// ReadFrom parses an already-open stream, e.g. an HTTP upload
func ReadFrom(ctx context.Context, src io.Reader, format Format, config ReaderConfig, logger *internal.Logger) (*dataset.Table, error) {
	logger = internal.OrDefault(logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSV(src)
	case FormatXLSX:
		rows, err = readXLSX(src, config.Sheet)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", format)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("%s read in %.2fms (%d rows)", format, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	table, err := processRows(config.Path, rows, config.IDColumn)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded %d respondents, %d columns from %s", table.RowCount(), len(table.Headers), sourceName(config.Path))
	return table, nil
}

func readCSV(src io.Reader) ([][]string, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

func readXLSX(src io.Reader, sheet string) ([][]string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// processRows converts raw string rows into a table keyed by trimmed headers
func processRows(source string, rows [][]string, idColumn string) (*dataset.Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("survey file must have a header row and at least one data row")
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	seen := make(map[string]bool, len(headerRow))
	for i, header := range headerRow {
		h := strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column header %q", h)
		}
		seen[h] = true
		headers[i] = h
	}
	if idColumn != "" && !seen[idColumn] {
		return nil, fmt.Errorf("id column %q not found", idColumn)
	}

	records := make([]dataset.RawRowData, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(dataset.RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rec[headers[j]] = strings.TrimSpace(cell)
			}
		}
		records = append(records, rec)
	}

	return dataset.NewTable(source, headers, records, idColumn), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func sourceName(path string) string {
	if path == "" {
		return "upload"
	}
	return filepath.Base(path)
}
