package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/internal/inference"
	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/internal/parsers"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service orchestrates the complete normalization process
type Service struct {
	config     *Config
	reader     *parsers.RawTableReader
	normalizer *normalizer.RowNormalizer
	csv        *exporter.CSVWriter
	logger     logger.Logger
}

// NewService creates a new pipeline service. A nil config selects
// DefaultConfig and nil markers select the default marker sets.
func NewService(config *Config, markers *normalizer.Markers, log logger.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline", err.Error(), err)
	}
	if markers != nil {
		if err := markers.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "markers", err.Error(), err)
		}
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	reader, err := parsers.NewRawTableReader(config.Reader)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:     config,
		reader:     reader,
		normalizer: normalizer.NewRowNormalizer(markers, log),
		csv:        exporter.NewCSVWriter(config.BOM, log),
		logger:     log.WithComponent("pipeline"),
	}, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// ProcessFile runs one file through the pipeline and returns its canonical
// table. The cleaned file is written only by Run.
func (s *Service) ProcessFile(ctx context.Context, path string) (*FileResult, error) {
	start := time.Now()
	log := s.logger.WithField("file_path", path)

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "process "+path, err)
	}

	raw, readStats, err := s.reader.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	result := &FileResult{Path: path}
	dataStart := s.config.FallbackDataStartRow

	location, err := inference.Locate(raw, s.config.MaxScanRows)
	if err != nil {
		warning := errors.InferenceError(errors.CodeHeaderNotFound, path, err.Error())
		log.WithError(warning).Warn("Year header not found, using generic columns")

		result.Degraded = true
		result.Strategy = inference.StrategyNone
		result.Layout = inference.GenericLayout(raw.Width(dataStart, len(raw)))
		result.Warnings = append(result.Warnings, warning)
	} else {
		mapping := inference.MapColumns(location.Matches, location.Width)
		if !mapping.Contiguous() {
			warning := errors.InferenceError(errors.CodeAmountColumnsGapped, path,
				fmt.Sprintf("gap before years %v", mapping.Gaps))
			log.WithError(warning).Warn("Amount columns are not contiguous")
			result.Warnings = append(result.Warnings, warning)
		}
		if mapping.Ambiguous {
			warning := errors.InferenceError(errors.CodeIndexColumnsUnresolved, path, mapping.Warning)
			log.WithError(warning).Warn("Index columns not located, leaving them empty")
			result.Warnings = append(result.Warnings, warning)
		}

		dataStart = location.DataStartRow
		result.Location = location
		result.Strategy = mapping.Strategy
		result.Layout = mapping.Layout()
	}

	if err := checkSchema(result.Layout, readStats.Width, path); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "process "+path, err)
	}

	var dataRows models.RawTable
	if dataStart < len(raw) {
		dataRows = raw[dataStart:]
	}
	rows, stats := s.normalizer.Normalize(dataRows, result.Layout)
	result.Stats = stats
	if len(rows) == 0 {
		// an all-subtotal file is still well formed: its cleaned file has
		// the header only
		warning := errors.ParseError(errors.CodeNoDataRows, path, dataStart+1, nil).
			WithContext("stats", stats.String())
		log.WithError(warning).Warn("No data row survived normalization")
		result.Warnings = append(result.Warnings, warning)
	}

	result.Table = Align(rows, s.config.Years)
	result.Table.Source = path
	result.Duration = time.Since(start)

	log.WithFields(logger.Fields{
		"strategy":  result.Strategy,
		"degraded":  result.Degraded,
		"records":   result.Table.Len(),
		"dropped":   stats.Dropped(),
		"data_from": dataStart,
	}).Debug("Processed file")

	return result, nil
}

// Run processes every input file of the request on the worker pool, writes
// the cleaned files and the combined file, and returns the run result. The
// returned error is set only when the run as a whole failed; per-file
// failures are listed in the result.
func (s *Service) Run(ctx context.Context, request *RunRequest) (*RunResult, error) {
	if err := request.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "input", "", err)
	}

	result := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		OutputDir: request.ResolveOutputDir(),
	}
	log := s.logger.WithField("run_id", result.RunID)

	files := request.Files
	if len(files) == 0 {
		found, err := parsers.Discover(request.InputDir, request.Pattern)
		if err != nil {
			return nil, err
		}
		files = found
	}
	if len(files) == 0 {
		return nil, errors.PipelineError(errors.CodeNoInputFiles, "normalize", nil).
			WithContext("input_dir", request.InputDir).
			WithContext("pattern", request.Pattern)
	}

	log.WithFields(logger.Fields{
		"files":      len(files),
		"output_dir": result.OutputDir,
	}).Info("Starting normalization run")

	var tracker *logger.ProgressTracker
	if s.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "normalize",
			Total:     int64(len(files)),
			Logger:    log,
		})
	}

	outcomes := make([]*FileResult, len(files))
	failures := make([]*FileFailure, len(files))

	// Workers never return an error so that one file cannot cancel another.
	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrentFiles)
	for i, path := range files {
		g.Go(func() error {
			fr, err := s.processAndWrite(ctx, path, result.OutputDir)
			if err != nil {
				normErr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "process "+path)
				log.WithError(normErr).WithField("file_path", path).Error("Skipping file")
				failures[i] = &FileFailure{Path: path, Error: normErr}
				if tracker != nil {
					tracker.Fail()
				}
				return nil
			}
			outcomes[i] = fr
			if tracker != nil {
				tracker.Succeed()
			}
			return nil
		})
	}
	_ = g.Wait()

	var tables []*models.CanonicalTable
	for i := range files {
		if outcomes[i] != nil {
			result.Files = append(result.Files, outcomes[i])
			tables = append(tables, outcomes[i].Table)
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, failures[i])
		}
	}

	if err := ctx.Err(); err != nil {
		result.summarize()
		return result, errors.InternalError(errors.CodeCancelled, "normalize", err)
	}

	if len(tables) == 0 {
		err := errors.PipelineError(errors.CodeNothingToCombine, "normalize", errors.NewErrorSummary(result.FailureErrors()))
		if tracker != nil {
			tracker.CompleteWithError(err)
		}
		result.summarize()
		return result, err
	}

	if err := s.combineAndExport(ctx, result, tables); err != nil {
		if tracker != nil {
			tracker.CompleteWithError(err)
		}
		result.summarize()
		return result, err
	}

	result.summarize()

	fields := logger.Fields{
		"processed": result.Summary.ProcessedFiles,
		"failed":    result.Summary.FailedFiles,
		"degraded":  result.Summary.DegradedFiles,
		"records":   result.Summary.CombinedRecords,
	}
	if tracker != nil {
		tracker.Complete()
		fields["progress"] = tracker.GetStats().String()
	}
	log.WithFields(fields).Info("Normalization run completed")

	return result, nil
}

// processAndWrite reports a panic as a failure of this file only.
func (s *Service) processAndWrite(ctx context.Context, path, outputDir string) (result *FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.InternalError(errors.CodeUnexpectedError, "process "+path, fmt.Errorf("panic: %v", r))
		}
	}()

	fr, err := s.ProcessFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if s.config.WriteCleaned {
		out := filepath.Join(outputDir, exporter.CleanedFileName(path))
		if err := s.csv.WriteCanonical(out, fr.Table); err != nil {
			return nil, err
		}
		fr.OutputPath = out
	}
	return fr, nil
}

func (s *Service) combineAndExport(ctx context.Context, result *RunResult, tables []*models.CanonicalTable) error {
	combined, err := Combine(tables)
	if err != nil {
		return err
	}
	result.Combined = combined

	result.CombinedPath = filepath.Join(result.OutputDir, exporter.CombinedFileName)
	if err := s.csv.WriteCombined(result.CombinedPath, combined); err != nil {
		return err
	}

	if s.config.XLSXPath != "" {
		err := logger.TimedOperation("write xlsx", s.logger.WithField("file_path", s.config.XLSXPath), func() error {
			return exporter.NewXLSXWriter("", s.logger).WriteCombined(s.config.XLSXPath, combined)
		})
		if err != nil {
			return err
		}
		result.XLSXPath = s.config.XLSXPath
	}

	if s.config.SQLitePath != "" {
		err := logger.TimedOperation("write sqlite", s.logger.WithField("file_path", s.config.SQLitePath), func() error {
			return s.saveSQLite(ctx, result, combined)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// saveSQLite stores the combined table and reports the row count read back
// from the database.
func (s *Service) saveSQLite(ctx context.Context, result *RunResult, combined *models.CombinedTable) error {
	store, err := exporter.OpenSQLite(ctx, s.config.SQLitePath, s.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.SaveCombined(ctx, combined); err != nil {
		return err
	}
	stored, err := store.Count(ctx)
	if err != nil {
		return err
	}

	result.SQLitePath = s.config.SQLitePath
	result.StoredRows = stored
	return nil
}

// CombineResult is the outcome of CombineCleaned
type CombineResult struct {
	RunID      string                `json:"run_id"`
	OutputPath string                `json:"output_path"`
	Sources    int                   `json:"sources"`
	Failures   []*FileFailure        `json:"failures,omitempty"`
	Combined   *models.CombinedTable `json:"-"`
}

// CombineCleaned reads previously written cleaned files, combines them and
// writes the combined file to outputPath. Unreadable files are skipped.
func (s *Service) CombineCleaned(ctx context.Context, paths []string, outputPath string) (*CombineResult, error) {
	result := &CombineResult{RunID: uuid.New().String(), OutputPath: outputPath}
	log := s.logger.WithField("run_id", result.RunID)

	var tables []*models.CanonicalTable
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, errors.InternalError(errors.CodeCancelled, "combine", err)
		}
		table, err := s.reader.ReadCanonical(ctx, path)
		if err != nil {
			normErr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "read "+path)
			log.WithError(normErr).WithField("file_path", path).Error("Skipping cleaned file")
			result.Failures = append(result.Failures, &FileFailure{Path: path, Error: normErr})
			continue
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return result, errors.PipelineError(errors.CodeNothingToCombine, "combine", nil)
	}

	combined, err := Combine(tables)
	if err != nil {
		return result, err
	}
	result.Combined = combined
	result.Sources = len(tables)

	err = logger.TimedOperation("write combined", log.WithField("file_path", outputPath), func() error {
		return s.csv.WriteCombined(outputPath, combined)
	})
	if err != nil {
		return result, err
	}

	log.WithFields(logger.Fields{
		"sources":    result.Sources,
		"records":    combined.Len(),
		"duplicates": combined.Duplicates,
		"file_path":  outputPath,
	}).Info("Combined cleaned files")
	return result, nil
}
