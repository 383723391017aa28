package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/internal/pipeline"
	"golang-rent-normalizer/pkg/errors"
)

func createSampleRunResult() *pipeline.RunResult {
	years := models.YearRange{First: 2001, Last: 2002}

	rabat := models.NewRecord("Rabat", "Appartement", "MOY", years)
	rabat.Amounts[0] = models.NewValue(1000)
	rabat.Amounts[1] = models.NewValue(1100)
	sale := models.NewRecord("Salé", "Appartement", "MOY", years)
	sale.Amounts[0] = models.NewValue(2000)
	fes := models.NewRecord("Fès", "Villa", "GRD", years)
	fes.Amounts[0] = models.NewValue(6000)

	return &pipeline.RunResult{
		RunID:        "run-1",
		StartedAt:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		OutputDir:    "/out",
		CombinedPath: "/out/COMBINED_montants_loyers_cleaned.csv",
		Files: []*pipeline.FileResult{
			{
				Path:       "/in/montants-rabat.csv",
				OutputPath: "/out/montants-rabat_cleaned.csv",
				Strategy:   "separator_column",
				Stats:      &normalizer.Stats{InputRows: 10, OutputRows: 3},
			},
			{
				Path:     "/in/montants-fes.csv",
				Strategy: "none",
				Degraded: true,
				Stats:    &normalizer.Stats{InputRows: 4, OutputRows: 1},
				Warnings: []*errors.NormalizerError{
					errors.InferenceError(errors.CodeHeaderNotFound, "/in/montants-fes.csv", "no year row"),
				},
			},
		},
		Failures: []*pipeline.FileFailure{
			{Path: "/in/montants-empty.csv", Error: errors.FileError(errors.CodeFileEmpty, "/in/montants-empty.csv", nil)},
		},
		Combined: &models.CombinedTable{Years: years, Records: []*models.Record{rabat, sale, fes}},
		Summary: &pipeline.RunSummary{
			TotalFiles:      3,
			ProcessedFiles:  2,
			FailedFiles:     1,
			DegradedFiles:   1,
			InputRows:       14,
			OutputRows:      4,
			CombinedRecords: 3,
			Duration:        1500 * time.Millisecond,
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml"}, true},
		{"csv without delimiter", &ReportConfig{Format: FormatCSV}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestCoverage(t *testing.T) {
	coverage := Coverage(createSampleRunResult().Combined)

	if len(coverage) != 2 {
		t.Fatalf("expected 2 years, got %d", len(coverage))
	}

	first := coverage[0]
	if first.Year != 2001 || first.Present != 3 || first.Records != 3 {
		t.Errorf("unexpected 2001 coverage: %+v", first)
	}
	if first.Mean != 3000 {
		t.Errorf("expected mean 3000, got %v", first.Mean)
	}
	if first.Median != 2000 {
		t.Errorf("expected median 2000, got %v", first.Median)
	}

	second := coverage[1]
	if second.Present != 1 || second.Mean != 1100 {
		t.Errorf("unexpected 2002 coverage: %+v", second)
	}
	if got := fmt.Sprintf("%.1f", second.Percentage()); got != "33.3" {
		t.Errorf("expected 33.3%% coverage, got %s", got)
	}

	if Coverage(nil) != nil {
		t.Error("expected nil coverage for nil table")
	}
}

func TestGenerateReport(t *testing.T) {
	result := createSampleRunResult()

	tests := []struct {
		name     string
		format   OutputFormat
		contains []string
	}{
		{
			name:   "console",
			format: FormatConsole,
			contains: []string{
				"NORMALIZATION REPORT",
				"Run ID: run-1",
				"=== SUMMARY ===",
				"Processed: 2 (66.7%)",
				"montants-fes.csv",
				"degraded",
				"warning: could not determine year header",
				"=== FAILED FILES ===",
				"[file_empty]",
				"=== YEAR COVERAGE ===",
				"3000.00",
			},
		},
		{
			name:     "csv",
			format:   FormatCSV,
			contains: []string{"File,Status,Strategy", "/in/montants-rabat.csv,processed,separator_column,10,3", "failed,,,,,file_empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = tt.format
			generator, err := NewReportGenerator(config)
			if err != nil {
				t.Fatalf("failed to create generator: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(result, &buf); err != nil {
				t.Fatalf("GenerateReport failed: %v", err)
			}
			output := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(output, want) {
					t.Errorf("expected output to contain %q\n%s", want, output)
				}
			}
		})
	}
}

func TestGenerateJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var decoded struct {
		RunID   string `json:"run_id"`
		Summary struct {
			ProcessedFiles int `json:"processed_files"`
		} `json:"summary"`
		Coverage []YearCoverage    `json:"coverage"`
		Failures []json.RawMessage `json:"failures"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Summary.ProcessedFiles != 2 {
		t.Errorf("unexpected report: %+v", decoded)
	}
	if len(decoded.Coverage) != 2 || len(decoded.Failures) != 1 {
		t.Errorf("expected coverage and failures, got %+v", decoded)
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestEmptyResultHandling(t *testing.T) {
	result := &pipeline.RunResult{RunID: "empty", Summary: &pipeline.RunSummary{}}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		config := DefaultReportConfig()
		config.Format = format
		generator, _ := NewReportGenerator(config)

		var buf bytes.Buffer
		if err := generator.GenerateReport(result, &buf); err != nil {
			t.Errorf("%s: unexpected error: %v", format, err)
		}
		if format == FormatConsole && strings.Contains(buf.String(), "YEAR COVERAGE") {
			t.Errorf("coverage section should be omitted without a combined table")
		}
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	if err := generator.UpdateConfiguration(&ReportConfig{Format: "bogus"}); err == nil {
		t.Error("expected error for invalid configuration")
	}
	if generator.GetConfiguration().Format != FormatConsole {
		t.Error("invalid configuration should not be applied")
	}

	config := DefaultReportConfig()
	config.Format = FormatJSON
	if err := generator.UpdateConfiguration(config); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if generator.GetConfiguration().Format != FormatJSON {
		t.Error("configuration was not updated")
	}
}

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == 1 {
		return 0, fmt.Errorf("broken pipe")
	}
	return len(p), nil
}

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewSafeReportGenerator(config, nil)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	writer := &failingWriter{}
	if err := generator.GenerateReportSafely(createSampleRunResult(), writer); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if writer.writes < 2 {
		t.Errorf("expected fallback output to be written")
	}
}

func TestSafeReportGenerator_Errors(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "bogus"}, nil); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid_config, got %v", err)
	}

	generator, _ := NewSafeReportGenerator(nil, nil)
	if err := generator.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
	if err := generator.GenerateReportSafely(createSampleRunResult(), nil); err == nil {
		t.Error("expected error for nil writer")
	}
}

func TestBackupPathFor(t *testing.T) {
	if got := backupPathFor("/tmp/report.json"); got != "/tmp/report_backup.json" {
		t.Errorf("unexpected backup path %s", got)
	}
}
