// Package parsers reads the regional rent exports into raw tables.
//
// The exports are produced by spreadsheet tools and vary from region to
// region: some carry a UTF-8 byte order mark, rows have different lengths,
// and header rows are mixed with data. The reader therefore makes no
// assumption about the layout. It returns every row as text cells and leaves
// the interpretation to the inference and normalizer packages.
//
// Key features:
//   - UTF-8 validation of the first lines, with an optional legacy
//     single-byte encoding for exports saved from older tools
//   - Transparent removal of a leading byte order mark
//   - Variable-length rows
//   - Typed file and parse errors carrying the offending path and line
//
// Example usage:
//
//	reader, err := parsers.NewRawTableReader(parsers.DefaultReaderConfig())
//	table, stats, err := reader.ReadFile(ctx, "montants-rabat.csv")
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// EncodingUTF8 is the expected encoding of the exports
	EncodingUTF8 = "utf-8"
	// EncodingWindows1252 covers exports saved by older spreadsheet tools
	EncodingWindows1252 = "windows-1252"
	// EncodingLatin1 is ISO-8859-1
	EncodingLatin1 = "iso-8859-1"

	encodingCheckLines = 100
	cancelCheckEvery   = 256
)

// ReaderConfig holds configuration for reading raw tables
type ReaderConfig struct {
	Delimiter        rune   `json:"delimiter"`
	Encoding         string `json:"encoding"`
	ValidateEncoding bool   `json:"validate_encoding"`
	TrimLeadingSpace bool   `json:"trim_leading_space"`
}

// DefaultReaderConfig returns a configuration with sensible defaults
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		Delimiter:        ',',
		Encoding:         EncodingUTF8,
		ValidateEncoding: true,
		TrimLeadingSpace: true,
	}
}

// Validate checks the reader configuration
func (c *ReaderConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\n' || c.Delimiter == '\r' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if _, err := decoderFor(c.Encoding); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", c.Encoding, err)
	}
	return nil
}

// ReadStats describes one read
type ReadStats struct {
	Rows     int           `json:"rows"`
	Width    int           `json:"width"`
	Duration time.Duration `json:"duration"`
}

func (s *ReadStats) String() string {
	return fmt.Sprintf("read %d rows (max width %d) in %v", s.Rows, s.Width, s.Duration)
}

// RawTableReader reads CSV exports into raw tables
type RawTableReader struct {
	config *ReaderConfig
	logger logger.Logger
}

// NewRawTableReader creates a reader with the given configuration
func NewRawTableReader(config *ReaderConfig) (*RawTableReader, error) {
	if config == nil {
		config = DefaultReaderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("parsers")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"encoding":          config.Encoding,
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created raw table reader")

	return &RawTableReader{config: config, logger: log}, nil
}

// ReadFile reads every row of the file at path. An empty file, an invalid
// encoding or malformed CSV yields a typed error.
func (r *RawTableReader) ReadFile(ctx context.Context, path string) (models.RawTable, *ReadStats, error) {
	start := time.Now()
	log := r.logger.WithField("file_path", path)

	file, err := r.open(path)
	if err != nil {
		log.WithError(err).Debug("Failed to open file")
		return nil, nil, err
	}
	defer file.Close()

	table, err := r.Read(ctx, file, path)
	if err != nil {
		return nil, nil, err
	}

	stats := &ReadStats{
		Rows:     len(table),
		Width:    table.Width(0, len(table)),
		Duration: time.Since(start),
	}
	log.WithFields(logger.Fields{
		"rows":  stats.Rows,
		"width": stats.Width,
	}).Debug("Read raw table")

	return table, stats, nil
}

// Read reads a raw table from src. name is used in errors only.
func (r *RawTableReader) Read(ctx context.Context, src io.Reader, name string) (models.RawTable, error) {
	decoder, err := decoderFor(r.config.Encoding)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", r.config.Encoding, err)
	}

	reader := csv.NewReader(transform.NewReader(src, unicode.BOMOverride(decoder)))
	r.configureReader(reader)

	var table models.RawTable
	for {
		if len(table)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.InternalError(errors.CodeCancelled, "reading "+name, err)
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(name, err)
		}
		table = append(table, record)
	}

	if len(table) == 0 {
		return nil, errors.FileError(errors.CodeFileEmpty, name, nil)
	}
	return table, nil
}

func (r *RawTableReader) open(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileError(path, err)
	}
	if info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, path, fmt.Errorf("is a directory"))
	}
	if info.Size() == 0 {
		return nil, errors.FileError(errors.CodeFileEmpty, path, nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fileError(path, err)
	}

	if r.config.ValidateEncoding && isUTF8(r.config.Encoding) {
		if err := validateEncoding(file, path); err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}
	return file, nil
}

func (r *RawTableReader) configureReader(reader *csv.Reader) {
	reader.Comma = r.config.Delimiter
	reader.TrimLeadingSpace = r.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
}

// validateEncoding checks that the first lines of the file are valid UTF-8
func validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for line := 1; line <= encodingCheckLines && scanner.Scan(); line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeEncodingError, path, line, fmt.Errorf("invalid UTF-8 encoding detected"))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingUTF8, "utf8":
		return true
	}
	return false
}

func decoderFor(name string) (transform.Transformer, error) {
	if isUTF8(name) {
		return encoding.Nop.NewDecoder(), nil
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case EncodingLatin1, "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

func fileError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

func csvError(name string, err error) error {
	var parseErr *csv.ParseError
	if stderrors.As(err, &parseErr) {
		return errors.ParseError(errors.CodeInvalidFormat, name, parseErr.Line, err)
	}
	return errors.FileError(errors.CodeFileCorrupted, name, err)
}
