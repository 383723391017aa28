// Package pipeline runs the rent table normalization end to end.
//
// A run discovers the input files, then processes each of them on a bounded
// worker pool: read the raw table, locate the year header, map the amount
// and index columns, normalize the data rows, align them to the canonical
// year range and write the cleaned file. Once every file is done the cleaned
// tables are combined and written as one dataset.
//
// Failures are contained at file granularity. A file that cannot be read or
// whose layout contradicts its data is reported as a FileFailure and the
// run carries on; a file whose header cannot be located is processed in
// degraded mode with generic column names. The only error that fails a run
// is having nothing to combine.
package pipeline

import (
	"fmt"

	"golang-rent-normalizer/internal/inference"
	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/parsers"
)

// Config holds configuration options for the pipeline service
type Config struct {
	// Inference options
	MaxScanRows          int
	FallbackDataStartRow int
	Years                models.YearRange

	// Processing options
	MaxConcurrentFiles int
	ProgressReporting  bool

	// Output options
	WriteCleaned bool
	BOM          bool
	XLSXPath     string
	SQLitePath   string

	Reader *parsers.ReaderConfig
}

// DefaultConfig returns a default configuration for the pipeline service
func DefaultConfig() *Config {
	return &Config{
		MaxScanRows:          inference.DefaultMaxScanRows,
		FallbackDataStartRow: inference.FallbackDataStartRow,
		Years:                models.DefaultYearRange(),
		MaxConcurrentFiles:   4,
		ProgressReporting:    true,
		WriteCleaned:         true,
		BOM:                  true,
		Reader:               parsers.DefaultReaderConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxScanRows <= 0 {
		return fmt.Errorf("max scan rows must be positive, got %d", c.MaxScanRows)
	}
	if c.FallbackDataStartRow < 0 {
		return fmt.Errorf("fallback data start row cannot be negative, got %d", c.FallbackDataStartRow)
	}
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}
	if err := c.Years.Validate(); err != nil {
		return err
	}
	if c.Reader != nil {
		if err := c.Reader.Validate(); err != nil {
			return err
		}
	}
	return nil
}
