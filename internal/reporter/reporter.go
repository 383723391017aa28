// Package reporter renders the summary of a normalization run.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per input file, for spreadsheet applications
//
// Besides per-file outcomes the report carries the coverage of the combined
// dataset: for every canonical year, how many records have an amount and
// the mean and median of those amounts.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/pipeline"

	"github.com/montanaflynn/stats"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeFiles    bool `json:"include_files"`
	IncludeFailures bool `json:"include_failures"`
	IncludeWarnings bool `json:"include_warnings"`
	IncludeCoverage bool `json:"include_coverage"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeFiles:    true,
		IncludeFailures: true,
		IncludeWarnings: true,
		IncludeCoverage: true,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// YearCoverage describes the amounts of one year in the combined table
type YearCoverage struct {
	Year    int     `json:"year"`
	Records int     `json:"records"`
	Present int     `json:"present"`
	Mean    float64 `json:"mean,omitempty"`
	Median  float64 `json:"median,omitempty"`
}

// Percentage returns the share of records that have an amount
func (c YearCoverage) Percentage() float64 {
	if c.Records == 0 {
		return 0
	}
	return float64(c.Present) / float64(c.Records) * 100
}

// Coverage computes the per-year amount coverage of a combined table
func Coverage(table *models.CombinedTable) []YearCoverage {
	if table == nil {
		return nil
	}

	years := table.Years.Years()
	coverage := make([]YearCoverage, len(years))
	for i, year := range years {
		var amounts stats.Float64Data
		for _, rec := range table.Records {
			if v := rec.Amounts[i]; v.Valid {
				amounts = append(amounts, v.Number)
			}
		}

		c := YearCoverage{Year: year, Records: len(table.Records), Present: len(amounts)}
		if len(amounts) > 0 {
			// only empty input makes these fail
			mean, _ := amounts.Mean()
			median, _ := amounts.Median()
			c.Mean, _ = stats.Round(mean, 2)
			c.Median, _ = stats.Round(median, 2)
		}
		coverage[i] = c
	}
	return coverage
}

// ReportGenerator generates run reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report of the run to writer
func (rg *ReportGenerator) GenerateReport(result *pipeline.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *pipeline.RunResult, writer io.Writer) error {
	ew := &errWriter{w: writer}

	ew.printf("NORMALIZATION REPORT\n")
	ew.printf("Run ID: %s\n", result.RunID)
	ew.printf("Started: %s\n", result.StartedAt.Format(time.RFC3339))
	if result.Summary != nil {
		ew.printf("Duration: %v\n", result.Summary.Duration.Round(time.Millisecond))
	}
	ew.printf("\n")

	if result.Summary != nil {
		ew.printf("=== SUMMARY ===\n")
		rg.printSummary(result, ew)
		ew.printf("\n")
	}

	if rg.config.IncludeFiles && len(result.Files) > 0 {
		ew.printf("=== FILES ===\n")
		for _, f := range result.Files {
			status := "ok"
			if f.Degraded {
				status = "degraded"
			}
			ew.printf("  %-40s %-9s strategy=%-16s %s\n", filepath.Base(f.Path), status, f.Strategy, f.Stats)
			if rg.config.IncludeWarnings {
				for _, w := range f.Warnings {
					ew.printf("      warning: %s\n", w.Message)
				}
			}
		}
		ew.printf("\n")
	}

	if rg.config.IncludeFailures && len(result.Failures) > 0 {
		ew.printf("=== FAILED FILES ===\n")
		for _, f := range result.Failures {
			ew.printf("  %-40s [%s] %s\n", filepath.Base(f.Path), f.Error.Code, f.Error.Message)
		}
		ew.printf("\n")
	}

	if rg.config.IncludeCoverage && result.Combined != nil {
		ew.printf("=== YEAR COVERAGE ===\n")
		ew.printf("  %-6s %9s %8s %12s %12s\n", "Year", "Present", "Share", "Mean", "Median")
		for _, c := range Coverage(result.Combined) {
			ew.printf("  %-6d %9d %7.1f%% %12.2f %12.2f\n", c.Year, c.Present, c.Percentage(), c.Mean, c.Median)
		}
	}

	return ew.err
}

func (rg *ReportGenerator) printSummary(result *pipeline.RunResult, ew *errWriter) {
	s := result.Summary
	ew.printf("Files:\n")
	ew.printf("  Total:     %d\n", s.TotalFiles)
	ew.printf("  Processed: %d (%.1f%%)\n", s.ProcessedFiles, calculatePercentage(s.ProcessedFiles, s.TotalFiles))
	ew.printf("  Degraded:  %d\n", s.DegradedFiles)
	ew.printf("  Failed:    %d (%.1f%%)\n", s.FailedFiles, calculatePercentage(s.FailedFiles, s.TotalFiles))
	ew.printf("\nRows:\n")
	ew.printf("  Data rows read:    %d\n", s.InputRows)
	ew.printf("  Rows kept:         %d\n", s.OutputRows)
	ew.printf("  Combined records:  %d\n", s.CombinedRecords)
	ew.printf("  Duplicates:        %d\n", s.Duplicates)

	if result.CombinedPath != "" || result.XLSXPath != "" || result.SQLitePath != "" {
		ew.printf("\nOutputs:\n")
		ew.printf("  Directory: %s\n", result.OutputDir)
		if result.CombinedPath != "" {
			ew.printf("  Combined:  %s\n", result.CombinedPath)
		}
		if result.XLSXPath != "" {
			ew.printf("  Workbook:  %s\n", result.XLSXPath)
		}
		if result.SQLitePath != "" {
			ew.printf("  Database:  %s (%d rows)\n", result.SQLitePath, result.StoredRows)
		}
	}
}

type jsonReport struct {
	RunID        string                  `json:"run_id"`
	StartedAt    time.Time               `json:"started_at"`
	OutputDir    string                  `json:"output_dir"`
	CombinedPath string                  `json:"combined_path,omitempty"`
	XLSXPath     string                  `json:"xlsx_path,omitempty"`
	SQLitePath   string                  `json:"sqlite_path,omitempty"`
	Summary      *pipeline.RunSummary    `json:"summary,omitempty"`
	Files        []*pipeline.FileResult  `json:"files,omitempty"`
	Failures     []*pipeline.FileFailure `json:"failures,omitempty"`
	Coverage     []YearCoverage          `json:"coverage,omitempty"`
}

func (rg *ReportGenerator) generateJSONReport(result *pipeline.RunResult, writer io.Writer) error {
	report := jsonReport{
		RunID:        result.RunID,
		StartedAt:    result.StartedAt,
		OutputDir:    result.OutputDir,
		CombinedPath: result.CombinedPath,
		XLSXPath:     result.XLSXPath,
		SQLitePath:   result.SQLitePath,
		Summary:      result.Summary,
	}
	if rg.config.IncludeFiles {
		report.Files = result.Files
	}
	if rg.config.IncludeFailures {
		report.Failures = result.Failures
	}
	if rg.config.IncludeCoverage {
		report.Coverage = Coverage(result.Combined)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateCSVReport(result *pipeline.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{"File", "Status", "Strategy", "Input_Rows", "Output_Rows", "Output_Path", "Error_Code", "Error"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeFiles {
		for _, f := range result.Files {
			status := "processed"
			if f.Degraded {
				status = "degraded"
			}
			var in, out string
			if f.Stats != nil {
				in, out = strconv.Itoa(f.Stats.InputRows), strconv.Itoa(f.Stats.OutputRows)
			}
			if err := csvWriter.Write([]string{f.Path, status, f.Strategy, in, out, f.OutputPath, "", ""}); err != nil {
				return fmt.Errorf("failed to write file record: %w", err)
			}
		}
	}

	if rg.config.IncludeFailures {
		for _, f := range result.Failures {
			if err := csvWriter.Write([]string{f.Path, "failed", "", "", "", "", string(f.Error.Code), f.Error.Message}); err != nil {
				return fmt.Errorf("failed to write failure record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// errWriter keeps the first write error so the console report can be
// written without checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
