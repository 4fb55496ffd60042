package survey

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sherockets/adapters/export"
	"sherockets/domain/core"
	"sherockets/domain/study"
	"sherockets/internal"
	"sherockets/internal/testkit"
	"sherockets/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SurveyReader = (*DataReader)(nil)

func TestReadFrom_CSV(t *testing.T) {
	src := "\ufeffResponseId, A_Tutor1 ,Task1_choice\nR1,Female tutor,A\n,,\nR2,Male tutor ,B\n"
	table, err := ReadFrom(context.Background(), strings.NewReader(src), FormatCSV, ReaderConfig{IDColumn: "ResponseId"}, internal.Discard())
	require.NoError(t, err)

	assert.Equal(t, []string{"ResponseId", "A_Tutor1", "Task1_choice"}, table.Headers)
	require.Equal(t, 2, table.RowCount(), "blank rows are skipped")
	assert.Equal(t, core.RespondentID("R1"), table.Rows[0].ID)
	v, ok := table.Rows[1].Get("A_Tutor1")
	assert.True(t, ok)
	assert.Equal(t, "Male tutor", v)
}

func TestReadFrom_RowIndexIDs(t *testing.T) {
	src := "A_Tutor1,Task1_choice\nFemale tutor,A\nMale tutor,B\n"
	table, err := ReadFrom(context.Background(), strings.NewReader(src), FormatCSV, ReaderConfig{}, internal.Discard())
	require.NoError(t, err)
	assert.Equal(t, core.RespondentID("0"), table.Rows[0].ID)
	assert.Equal(t, core.RespondentID("1"), table.Rows[1].ID)
}

func TestReadFrom_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		src    string
		config ReaderConfig
	}{
		{"header only", "A_Tutor1,Task1_choice\n", ReaderConfig{}},
		{"duplicate header", "A_Tutor1,A_Tutor1\nx,y\n", ReaderConfig{}},
		{"missing id column", "A_Tutor1\nx\n", ReaderConfig{IDColumn: "ResponseId"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrom(ctx, strings.NewReader(tt.src), FormatCSV, tt.config, internal.Discard())
			assert.Error(t, err)
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := ReadFrom(cancelled, strings.NewReader("a\nb\n"), FormatCSV, ReaderConfig{}, internal.Discard())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDataReader_XLSXMatchesCSV(t *testing.T) {
	cfg := testkit.DefaultSurveyConfig()
	cfg.Respondents = 5
	cfg.Tasks = 2
	generated := testkit.NewSurveyGenerator(study.AITutorStudy(), cfg).Generate()

	dir := t.TempDir()
	var csvBuf, xlsxBuf bytes.Buffer
	require.NoError(t, testkit.WriteCSV(&csvBuf, generated))
	require.NoError(t, export.WriteTableXLSX(&xlsxBuf, generated))
	csvPath := filepath.Join(dir, "survey.csv")
	xlsxPath := filepath.Join(dir, "survey.xlsx")
	require.NoError(t, os.WriteFile(csvPath, csvBuf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(xlsxPath, xlsxBuf.Bytes(), 0o644))

	fromCSV, err := NewDataReader(ReaderConfig{Path: csvPath, IDColumn: "ResponseId"}, internal.Discard()).Read(context.Background())
	require.NoError(t, err)
	fromXLSX, err := NewDataReader(ReaderConfig{Path: xlsxPath, IDColumn: "ResponseId"}, internal.Discard()).Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, fromCSV.RowCount())
	assert.Equal(t, fromCSV.Headers, fromXLSX.Headers)
	assert.Equal(t, fromCSV.Hash(), fromXLSX.Hash())
	assert.Equal(t, generated.Hash(), fromCSV.Hash())
}

func TestDataReader_MissingFile(t *testing.T) {
	_, err := NewDataReader(ReaderConfig{Path: filepath.Join(t.TempDir(), "absent.csv")}, internal.Discard()).Read(context.Background())
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatFromPath("export.XLSX"))
	assert.Equal(t, FormatCSV, FormatFromPath("export.csv"))
	assert.Equal(t, FormatCSV, FormatFromPath("export"))
}
