package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sherockets/domain/dataset"
	"sherockets/domain/effects"

	"github.com/xuri/excelize/v2"
)

// Format is an output encoding for estimate tables
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export extension %q (want .csv, .json or .xlsx)", filepath.Ext(path))
	}
}

// EstimateHeaders is the column order shared by the CSV and XLSX writers
var EstimateHeaders = []string{
	"attribute", "level", "level_label", "coefficient", "std_error", "ci_lower", "ci_upper",
	"p_value", "ame_pp", "tier", "status", "reason", "method", "count", "warnings",
}

func estimateRecord(e effects.EffectEstimate) []string {
	return []string{
		e.Attribute,
		e.Level,
		e.LevelLabel,
		fToStr(e.Coefficient),
		fToStr(e.StdError),
		fToStr(e.CI.Lower),
		fToStr(e.CI.Upper),
		fToStr(e.PValue),
		fToStr(e.AME),
		string(e.Tier),
		string(e.Status),
		string(e.Reason),
		string(e.Method),
		strconv.Itoa(e.Count),
		strings.Join(e.Warnings, "; "),
	}
}

// WriteCSV writes one row per estimate
func WriteCSV(w io.Writer, estimates []effects.EffectEstimate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EstimateHeaders); err != nil {
		return err
	}
	for _, e := range estimates {
		if err := cw.Write(estimateRecord(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v indented; non-finite estimate fields become null
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteXLSX writes the estimates to a single "estimates" sheet
func WriteXLSX(w io.Writer, estimates []effects.EffectEstimate) error {
	rows := make([][]interface{}, len(estimates))
	for i, e := range estimates {
		rows[i] = []interface{}{
			e.Attribute, e.Level, e.LevelLabel,
			cellFloat(e.Coefficient), cellFloat(e.StdError), cellFloat(e.CI.Lower), cellFloat(e.CI.Upper),
			cellFloat(e.PValue), cellFloat(e.AME),
			string(e.Tier), string(e.Status), string(e.Reason), string(e.Method), e.Count,
			strings.Join(e.Warnings, "; "),
		}
	}
	return writeSheet(w, "estimates", EstimateHeaders, rows)
}

// WriteTableXLSX writes a survey table in its header order, e.g. a generated export
func WriteTableXLSX(w io.Writer, t *dataset.Table) error {
	rows := make([][]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]interface{}, len(t.Headers))
		for j, h := range t.Headers {
			row[j] = r.Cells[h]
		}
		rows[i] = row
	}
	return writeSheet(w, "Sheet1", t.Headers, rows)
}

// WriteFile writes estimates to path in the format implied by its extension. JSON
// output carries the whole value v when given, otherwise just the estimates.
func WriteFile(path string, estimates []effects.EffectEstimate, v interface{}) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		err = WriteCSV(f, estimates)
	case FormatJSON:
		if v == nil {
			v = estimates
		}
		err = WriteJSON(f, v)
	case FormatXLSX:
		err = WriteXLSX(f, estimates)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeSheet(w io.Writer, sheet string, headers []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// cellFloat leaves non-finite values as empty cells
func cellFloat(x float64) interface{} {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return x
}

func fToStr(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}
