package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/internal/inference"
	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tenRowFile has its year header at row 2 with amounts at columns 3-5 and
// indices at columns 7-9, one agglomeration with three scale rows and one
// structural row.
const tenRowFile = `Montants moyens des loyers,,,,,,,,,
Agglomération,Type d'habitat,Envergure,Montants,,,,Indices,,
,,,2001,2002,2003,,2001,2002,2003
Rabat,Appartement,PET,1 200,1 250,1 300,,100,"104,2","108,3"
,,MOY,1 500,1 550,1 600,,100,"103,3","106,7"
,,GRD,2 000,2 100,2 200,,100,105,110
Total ville,Appartement,,4 700,4 900,5 100,,,,
,,,,,,,,,
,,,,,,,,,
,,,,,,,,,
`

const noHeaderFile = `Tableau 1,,,,
Source: enquête,,,,
,,,,
,,,,
Note,,,,
Rabat,Appartement,MOY,1 500,1 600
,,GRD,2 000,2 100
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	config := DefaultConfig()
	config.ProgressReporting = false
	if mutate != nil {
		mutate(config)
	}
	service, err := NewService(config, nil, nil)
	require.NoError(t, err)
	return service
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero scan rows", func(c *Config) { c.MaxScanRows = 0 }},
		{"negative fallback row", func(c *Config) { c.FallbackDataStartRow = -1 }},
		{"no workers", func(c *Config) { c.MaxConcurrentFiles = 0 }},
		{"reversed years", func(c *Config) { c.Years = models.YearRange{First: 2022, Last: 2001} }},
		{"bad delimiter", func(c *Config) { c.Reader.Delimiter = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())

			_, err := NewService(config, nil, nil)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
		})
	}
}

func TestAlign(t *testing.T) {
	rows := []*models.Row{{
		Agglomeration: "Rabat",
		HousingType:   "Appartement",
		Scale:         "MOY",
		Values: map[string]models.Value{
			"Montant_2000": models.NewValue(1),
			"Montant_2002": models.NewValue(1500),
			"Indice_2002":  models.NewValue(104.5),
			"Column_9":     models.NewValue(7),
		},
	}}

	table := Align(rows, models.DefaultYearRange())

	require.Len(t, table.Records, 1)
	rec := table.Records[0]
	assert.Len(t, rec.Amounts, 22)
	assert.Len(t, rec.Indices, 22)
	assert.True(t, rec.Amounts[0].IsMissing())
	assert.Equal(t, 1500.0, rec.Amounts[1].Number)
	assert.Equal(t, 104.5, rec.Indices[1].Number)
	assert.Len(t, rec.Cells(), len(table.Header()))
	assert.Equal(t, "Montant_2001", table.Header()[3])
	assert.Equal(t, "Indice_2022", table.Header()[46])
}

func TestCombine_Dedup(t *testing.T) {
	years := models.YearRange{First: 2001, Last: 2002}

	first := models.NewRecord("Rabat", "Appartement", "MOY", years)
	first.Amounts[0] = models.NewValue(1500)
	first.Amounts[1] = models.NewValue(1600)

	dup := models.NewRecord("Rabat", "Appartement", "MOY", years)
	dup.Amounts[0] = models.NewValue(1500)
	dup.Amounts[1] = models.NewValue(9999)

	missingA := models.NewRecord("Salé", "Villa", "GRD", years)
	missingB := models.NewRecord("Salé", "Villa", "GRD", years)
	missingB.Amounts[1] = models.NewValue(3)

	other := models.NewRecord("Rabat", "Appartement", "MOY", years)
	other.Amounts[0] = models.NewValue(1501)

	combined, err := Combine([]*models.CanonicalTable{
		{Source: "a.csv", Years: years, Records: []*models.Record{first, missingA}},
		{Source: "b.csv", Years: years, Records: []*models.Record{dup, missingB, other}},
	})
	require.NoError(t, err)

	require.Len(t, combined.Records, 3)
	assert.Same(t, first, combined.Records[0])
	assert.Same(t, missingA, combined.Records[1])
	assert.Same(t, other, combined.Records[2])
	assert.Equal(t, 2, combined.Duplicates)
	assert.Equal(t, []string{"a.csv", "b.csv"}, combined.Sources)
}

func TestCombine_Errors(t *testing.T) {
	_, err := Combine(nil)
	assert.True(t, errors.HasCode(err, errors.CodeNothingToCombine))

	_, err = Combine([]*models.CanonicalTable{
		{Source: "a.csv", Years: models.YearRange{First: 2001, Last: 2022}},
		{Source: "b.csv", Years: models.YearRange{First: 2001, Last: 2010}},
	})
	assert.True(t, errors.HasCode(err, errors.CodeYearRangeMismatch))
}

func TestCheckSchema(t *testing.T) {
	layout := &models.ColumnLayout{Columns: []models.NumericColumn{
		{Name: "Montant_2001", Position: 3, Kind: models.KindAmount, Year: 2001},
		{Name: "Indice_2001", Position: 9, Kind: models.KindIndex, Year: 2001},
	}}

	assert.NoError(t, checkSchema(layout, 10, "x.csv"))
	assert.True(t, errors.HasCode(checkSchema(layout, 9, "x.csv"), errors.CodeSchemaMismatch))
	assert.NoError(t, checkSchema(&models.ColumnLayout{}, 0, "x.csv"))
}

func TestProcessFile_EndToEnd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "montants-rabat.csv", tenRowFile)
	service := newTestService(t, nil)

	result, err := service.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, "separator_column", result.Strategy)
	assert.Equal(t, 2, result.Location.HeaderRow)
	assert.Equal(t, 3, result.Location.DataStartRow)
	assert.Empty(t, result.Warnings)

	table := result.Table
	require.Len(t, table.Records, 3)
	assert.Equal(t, path, table.Source)

	scales := []string{"PET", "MOY", "GRD"}
	for i, rec := range table.Records {
		assert.Equal(t, "Rabat", rec.Agglomeration)
		assert.Equal(t, "Appartement", rec.HousingType)
		assert.Equal(t, scales[i], rec.Scale)
		for y := 0; y < 3; y++ {
			assert.False(t, rec.Amounts[y].IsMissing(), "amount %d of record %d", 2001+y, i)
			assert.False(t, rec.Indices[y].IsMissing(), "index %d of record %d", 2001+y, i)
		}
		for y := 3; y < 22; y++ {
			assert.True(t, rec.Amounts[y].IsMissing())
			assert.True(t, rec.Indices[y].IsMissing())
		}
	}
	assert.Equal(t, 1550.0, table.Records[1].Amounts[1].Number)
	assert.Equal(t, 103.3, table.Records[1].Indices[1].Number)

	assert.Equal(t, 7, result.Stats.InputRows)
	assert.Equal(t, 3, result.Stats.BlankRows)
	assert.Equal(t, 1, result.Stats.StructuralRows)
	assert.Equal(t, 3, result.Stats.OutputRows)
}

func TestProcessFile_Fallback(t *testing.T) {
	path := writeFile(t, t.TempDir(), "montants-x.csv", noHeaderFile)
	service := newTestService(t, nil)

	result, err := service.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, inference.StrategyNone, result.Strategy)
	assert.Nil(t, result.Location)
	assert.Equal(t, []string{"Column_4", "Column_5"}, result.Layout.Names())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, errors.CodeHeaderNotFound, result.Warnings[0].Code)

	require.Len(t, result.Table.Records, 2)
	assert.Equal(t, "GRD", result.Table.Records[1].Scale)
	for _, v := range result.Table.Records[0].Amounts {
		assert.True(t, v.IsMissing())
	}
}

func TestProcessFile_IndexColumnsUnresolved(t *testing.T) {
	content := ",,,2001,2002,2003,2004,2005,2006\n" +
		"Rabat,Appartement,MOY,1,2,3,4,5,6\n"
	path := writeFile(t, t.TempDir(), "montants-narrow.csv", content)

	result, err := newTestService(t, nil).ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, inference.StrategyNone, result.Strategy)
	assert.False(t, result.Degraded)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, errors.CodeIndexColumnsUnresolved, result.Warnings[0].Code)

	rec := result.Table.Records[0]
	assert.Equal(t, 6.0, rec.Amounts[5].Number)
	assert.True(t, rec.Indices[0].IsMissing())
}

func TestProcessFile_AmountColumnsNotContiguous(t *testing.T) {
	content := ",,,2001,2002,,2003,2004,2005,2006\n" +
		"Rabat,Appartement,MOY,1,2,,3,4,5,6\n"
	path := writeFile(t, t.TempDir(), "montants-gapped.csv", content)

	result, err := newTestService(t, nil).ProcessFile(context.Background(), path)
	require.NoError(t, err)

	var codes []errors.ErrorCode
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []errors.ErrorCode{errors.CodeAmountColumnsGapped, errors.CodeIndexColumnsUnresolved}, codes)

	rec := result.Table.Records[0]
	assert.Equal(t, 2.0, rec.Amounts[1].Number)
	assert.Equal(t, 3.0, rec.Amounts[2].Number)
	assert.Equal(t, 6.0, rec.Amounts[5].Number)
}

func TestProcessFile_NoDataRows(t *testing.T) {
	content := ",,,2001,2002,2003,,2001,2002,2003\n" +
		"Total ville,Appartement,MOY,1,2,3,,4,5,6\n"
	path := writeFile(t, t.TempDir(), "montants-totals.csv", content)

	result, err := newTestService(t, nil).ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Table.Len())
	assert.Equal(t, 1, result.Stats.StructuralRows)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, errors.CodeNoDataRows, result.Warnings[0].Code)
}

func TestRun_OverflowingCellLeavesOtherFilesIntact(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "montants-good.csv", tenRowFile)
	overflowing := strings.Replace(strings.Replace(tenRowFile, "Rabat", "Salé", 1), "1 200", "1e400", 1)
	bad := writeFile(t, dir, "montants-bad.csv", overflowing)
	totals := writeFile(t, dir, "montants-totals.csv",
		",,,2001,2002,2003,,2001,2002,2003\nTotal ville,Appartement,MOY,1,2,3,,4,5,6\n")

	service := newTestService(t, func(c *Config) { c.MaxConcurrentFiles = 3 })
	result, err := service.Run(context.Background(), &RunRequest{Files: []string{good, bad, totals}})
	require.NoError(t, err)

	require.Len(t, result.Files, 3)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 6, result.Summary.CombinedRecords)

	sale := result.Files[1].Table.Records[0]
	assert.Equal(t, "Salé", sale.Agglomeration)
	assert.True(t, sale.Amounts[0].IsMissing())
	assert.Equal(t, 1250.0, sale.Amounts[1].Number)

	cleaned, err := os.ReadFile(filepath.Join(result.OutputDir, "montants-bad_cleaned.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(cleaned)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "Salé,Appartement,PET,,1250,1300,"))

	headerOnly, err := os.ReadFile(filepath.Join(result.OutputDir, "montants-totals_cleaned.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(headerOnly)), "\n"), 1)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "montants-rabat.csv", tenRowFile)
	// same rows again: every record is a duplicate
	writeFile(t, dir, "montants-rabat2.csv", tenRowFile)
	writeFile(t, dir, "montants-empty.csv", "")
	writeFile(t, dir, "unrelated.csv", tenRowFile)

	xlsxPath := filepath.Join(dir, "out", "combined.xlsx")
	sqlitePath := filepath.Join(dir, "out", "rents.sqlite")
	service := newTestService(t, func(c *Config) {
		c.MaxConcurrentFiles = 2
		c.ProgressReporting = true
		c.XLSXPath = xlsxPath
		c.SQLitePath = sqlitePath
	})

	result, err := service.Run(context.Background(), &RunRequest{InputDir: dir})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, filepath.Join(dir, exporter.DefaultOutputDirName), result.OutputDir)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "montants-rabat.csv", filepath.Base(result.Files[0].Path))
	assert.Equal(t, "montants-rabat2.csv", filepath.Base(result.Files[1].Path))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, errors.CodeFileEmpty, result.Failures[0].Error.Code)

	assert.Equal(t, 3, result.Summary.CombinedRecords)
	assert.Equal(t, 3, result.Summary.Duplicates)
	assert.Equal(t, 3, result.Summary.TotalFiles)
	assert.Equal(t, 9, result.StoredRows)

	cleaned, err := os.ReadFile(filepath.Join(result.OutputDir, "montants-rabat_cleaned.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(cleaned)), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "\xEF\xBB\xBFAgglomeration,Type_Habitat,Envergure,Montant_2001"))
	assert.True(t, strings.HasPrefix(lines[2], "Rabat,Appartement,MOY,1500,1550,1600,,"))

	_, err = os.Stat(result.CombinedPath)
	assert.NoError(t, err)
	_, err = os.Stat(xlsxPath)
	assert.NoError(t, err)
}

func TestRun_AllFilesFail(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "montants-a.csv", "")
	b := writeFile(t, dir, "montants-b.csv", "a,b\"c\n")

	result, err := newTestService(t, nil).Run(context.Background(), &RunRequest{Files: []string{a, b}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNothingToCombine))

	require.NotNil(t, result)
	assert.Len(t, result.Failures, 2)
	assert.Empty(t, result.Files)
	assert.Equal(t, 2, result.Summary.FailedFiles)
}

func TestRun_NoInputFiles(t *testing.T) {
	_, err := newTestService(t, nil).Run(context.Background(), &RunRequest{InputDir: t.TempDir()})
	assert.True(t, errors.HasCode(err, errors.CodeNoInputFiles))

	_, err = newTestService(t, nil).Run(context.Background(), &RunRequest{})
	assert.True(t, errors.HasCode(err, errors.CodeMissingConfig))
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "montants-rabat.csv", tenRowFile)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestService(t, nil).Run(ctx, &RunRequest{Files: []string{path}})
	assert.True(t, errors.HasCode(err, errors.CodeCancelled))
	require.NotNil(t, result)
	assert.Len(t, result.Failures, 1)
}

func TestCombineCleaned(t *testing.T) {
	dir := t.TempDir()
	service := newTestService(t, nil)

	_, err := service.Run(context.Background(), &RunRequest{
		Files:     []string{writeFile(t, dir, "montants-rabat.csv", tenRowFile)},
		OutputDir: dir,
	})
	require.NoError(t, err)

	bogus := writeFile(t, dir, "bogus_cleaned.csv", "City,Type,Scale\nx,y,z\n")
	cleaned := filepath.Join(dir, "montants-rabat_cleaned.csv")
	out := filepath.Join(dir, "again.csv")

	result, err := service.CombineCleaned(context.Background(), []string{cleaned, bogus}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sources)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, 3, result.Combined.Len())
	assert.Equal(t, 1550.0, result.Combined.Records[1].Amounts[1].Number)

	_, err = service.CombineCleaned(context.Background(), []string{bogus}, out)
	assert.True(t, errors.HasCode(err, errors.CodeNothingToCombine))
}
