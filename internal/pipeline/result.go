package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/internal/inference"
	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/pkg/errors"
)

// RunRequest represents a request for a normalization run. Files takes
// precedence over InputDir.
type RunRequest struct {
	InputDir  string
	Pattern   string
	Files     []string
	OutputDir string
}

// Validate validates the run request
func (r *RunRequest) Validate() error {
	if r.InputDir == "" && len(r.Files) == 0 {
		return fmt.Errorf("an input directory or at least one input file is required")
	}
	return nil
}

// ResolveOutputDir returns OutputDir, or the default output directory inside
// the input directory (or the directory of the first file).
func (r *RunRequest) ResolveOutputDir() string {
	if r.OutputDir != "" {
		return r.OutputDir
	}
	base := r.InputDir
	if base == "" && len(r.Files) > 0 {
		base = filepath.Dir(r.Files[0])
	}
	return filepath.Join(base, exporter.DefaultOutputDirName)
}

// FileResult describes one successfully processed file
type FileResult struct {
	Path       string                    `json:"path"`
	OutputPath string                    `json:"output_path,omitempty"`
	Location   *inference.HeaderLocation `json:"location,omitempty"`
	Strategy   string                    `json:"strategy"`
	Degraded   bool                      `json:"degraded"`
	Layout     *models.ColumnLayout      `json:"layout"`
	Stats      *normalizer.Stats         `json:"stats"`
	Warnings   []*errors.NormalizerError `json:"warnings,omitempty"`
	Duration   time.Duration             `json:"duration"`

	Table *models.CanonicalTable `json:"-"`
}

// FileFailure describes a file that was skipped
type FileFailure struct {
	Path  string                  `json:"path"`
	Error *errors.NormalizerError `json:"error"`
}

// RunSummary provides a high-level overview of a run
type RunSummary struct {
	TotalFiles      int           `json:"total_files"`
	ProcessedFiles  int           `json:"processed_files"`
	FailedFiles     int           `json:"failed_files"`
	DegradedFiles   int           `json:"degraded_files"`
	InputRows       int           `json:"input_rows"`
	OutputRows      int           `json:"output_rows"`
	CombinedRecords int           `json:"combined_records"`
	Duplicates      int           `json:"duplicates"`
	Duration        time.Duration `json:"duration"`
}

// RunResult contains the complete results of a run
type RunResult struct {
	RunID        string                `json:"run_id"`
	StartedAt    time.Time             `json:"started_at"`
	OutputDir    string                `json:"output_dir"`
	CombinedPath string                `json:"combined_path,omitempty"`
	XLSXPath     string                `json:"xlsx_path,omitempty"`
	SQLitePath   string                `json:"sqlite_path,omitempty"`
	StoredRows   int                   `json:"stored_rows,omitempty"`
	Files        []*FileResult         `json:"files"`
	Failures     []*FileFailure        `json:"failures,omitempty"`
	Combined     *models.CombinedTable `json:"-"`
	Summary      *RunSummary           `json:"summary"`
}

// FailureErrors returns the per-file errors of the run
func (r *RunResult) FailureErrors() []*errors.NormalizerError {
	errs := make([]*errors.NormalizerError, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f.Error
	}
	return errs
}

func (r *RunResult) summarize() {
	s := &RunSummary{
		TotalFiles:     len(r.Files) + len(r.Failures),
		ProcessedFiles: len(r.Files),
		FailedFiles:    len(r.Failures),
		Duration:       time.Since(r.StartedAt),
	}
	for _, f := range r.Files {
		if f.Degraded {
			s.DegradedFiles++
		}
		if f.Stats != nil {
			s.InputRows += f.Stats.InputRows
			s.OutputRows += f.Stats.OutputRows
		}
	}
	if r.Combined != nil {
		s.CombinedRecords = r.Combined.Len()
		s.Duplicates = r.Combined.Duplicates
	}
	r.Summary = s
}
