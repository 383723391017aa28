package config

import (
	"fmt"
	"strings"
	"time"

	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/internal/pipeline"
	"golang-rent-normalizer/internal/reporter"
	"golang-rent-normalizer/internal/scraper"
	"golang-rent-normalizer/pkg/logger"

	"github.com/spf13/viper"
)

// Config file keys that have no command-line flag
const (
	KeyStructuralLabels = "markers.structural_labels"
	KeyScaleExclusions  = "markers.scale_exclusions"
)

// PipelineOptions are the normalize settings after flags, environment and
// config file have been merged
type PipelineOptions struct {
	MaxScanRows      int
	FallbackStartRow int
	FirstYear        int
	LastYear         int
	Workers          int
	Encoding         string
	Delimiter        string
	NoBOM            bool
	SkipCleaned      bool
	XLSXPath         string
	SQLitePath       string
	Progress         bool
}

// CreatePipelineConfig creates a pipeline configuration from the options.
// Zero values keep the defaults.
func CreatePipelineConfig(opts PipelineOptions) (*pipeline.Config, error) {
	config := pipeline.DefaultConfig()

	if opts.MaxScanRows != 0 {
		config.MaxScanRows = opts.MaxScanRows
	}
	if opts.FallbackStartRow != 0 {
		config.FallbackDataStartRow = opts.FallbackStartRow
	}
	if opts.FirstYear != 0 {
		config.Years.First = opts.FirstYear
	}
	if opts.LastYear != 0 {
		config.Years.Last = opts.LastYear
	}
	if opts.Workers != 0 {
		config.MaxConcurrentFiles = opts.Workers
	}
	if opts.Encoding != "" {
		config.Reader.Encoding = strings.ToLower(opts.Encoding)
	}
	if opts.Delimiter != "" {
		delimiter := []rune(opts.Delimiter)
		if len(delimiter) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", opts.Delimiter)
		}
		config.Reader.Delimiter = delimiter[0]
	}

	config.BOM = !opts.NoBOM
	config.WriteCleaned = !opts.SkipCleaned
	config.XLSXPath = opts.XLSXPath
	config.SQLitePath = opts.SQLitePath
	config.ProgressReporting = opts.Progress

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return config, nil
}

// CreateMarkers builds the marker sets. Lists set in the config file replace
// the defaults.
func CreateMarkers(v *viper.Viper) (*normalizer.Markers, error) {
	markers := normalizer.DefaultMarkers()
	if v == nil {
		return markers, nil
	}

	if v.IsSet(KeyStructuralLabels) {
		markers.StructuralLabels = v.GetStringSlice(KeyStructuralLabels)
	}
	if v.IsSet(KeyScaleExclusions) {
		markers.ScaleExclusions = v.GetStringSlice(KeyScaleExclusions)
	}

	if err := markers.Validate(); err != nil {
		return nil, fmt.Errorf("invalid markers: %w", err)
	}
	return markers, nil
}

// CreateScraperConfig creates a scraper configuration
func CreateScraperConfig(urls []string, dataset string, timeout time.Duration, requestsPerSecond float64) (*scraper.Config, error) {
	config := scraper.DefaultConfig()

	if len(urls) > 0 {
		config.URLs = urls
	}
	if dataset != "" {
		config.Dataset = scraper.Dataset(strings.ToLower(dataset))
	}
	if timeout > 0 {
		config.Timeout = timeout
	}
	if requestsPerSecond > 0 {
		config.RequestsPerSecond = requestsPerSecond
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scraper config: %w", err)
	}
	return config, nil
}

// ScrapeOutputPath returns the default output file of a scraped dataset
func ScrapeOutputPath(dataset scraper.Dataset) string {
	if dataset == scraper.DatasetQuartiers {
		return "quartiers_real_estate_prices.csv"
	}
	return "morocco_real_estate_prices.csv"
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.IncludeCoverage = false
	case "console":
		config.Format = reporter.FormatConsole
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// CreateLoggerConfig creates the logger configuration. Verbose forces the
// debug level.
func CreateLoggerConfig(level, format string, verbose bool) *logger.Config {
	config := logger.DefaultConfig()

	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	return config
}

// ValidateConfig validates that all required configurations are valid
func ValidateConfig(pipelineConfig *pipeline.Config, markers *normalizer.Markers, reportConfig *reporter.ReportConfig) error {
	if pipelineConfig == nil {
		return fmt.Errorf("pipeline config is required")
	}
	if err := pipelineConfig.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}

	if markers != nil {
		if err := markers.Validate(); err != nil {
			return fmt.Errorf("invalid markers: %w", err)
		}
	}

	if reportConfig != nil {
		if err := reportConfig.Validate(); err != nil {
			return fmt.Errorf("invalid report config: %w", err)
		}
	}

	if pipelineConfig.XLSXPath != "" && pipelineConfig.XLSXPath == pipelineConfig.SQLitePath {
		return fmt.Errorf("workbook and database cannot share the path %s", pipelineConfig.XLSXPath)
	}

	return nil
}
