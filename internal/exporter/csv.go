// Package exporter writes cleaned rent tables and scraped price listings.
//
// CSV is the primary output: one cleaned file per input plus the combined
// file, all UTF-8 with a byte order mark so that spreadsheet tools detect
// the encoding, with dot decimals and MISSING written as an empty cell.
// The combined table can additionally be exported as an XLSX workbook or
// stored in a SQLite database in long form.
package exporter

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"
)

const (
	// CleanedSuffix is appended to the base name of every cleaned file
	CleanedSuffix = "_cleaned.csv"
	// CombinedFileName is the name of the combined output
	CombinedFileName = "COMBINED_montants_loyers_cleaned.csv"
	// DefaultOutputDirName is created inside the input directory when no
	// output directory is given
	DefaultOutputDirName = "cleaned_data_revised"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CleanedFileName returns the output name for an input file:
// montants-rabat.csv becomes montants-rabat_cleaned.csv.
func CleanedFileName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + CleanedSuffix
}

// CSVWriter writes tables as CSV files
type CSVWriter struct {
	bom    bool
	logger logger.Logger
}

// NewCSVWriter creates a CSV writer. When bom is set every file starts with
// a UTF-8 byte order mark.
func NewCSVWriter(bom bool, log logger.Logger) *CSVWriter {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CSVWriter{bom: bom, logger: log.WithComponent("exporter")}
}

// WriteCanonical writes one cleaned table
func (w *CSVWriter) WriteCanonical(path string, table *models.CanonicalTable) error {
	rows := make([][]string, len(table.Records))
	for i, rec := range table.Records {
		rows[i] = rec.Cells()
	}
	return w.WriteRecords(path, table.Header(), rows)
}

// WriteCombined writes the combined table
func (w *CSVWriter) WriteCombined(path string, table *models.CombinedTable) error {
	rows := make([][]string, len(table.Records))
	for i, rec := range table.Records {
		rows[i] = rec.Cells()
	}
	return w.WriteRecords(path, table.Header(), rows)
}

// WriteListings writes scraped price listings
func (w *CSVWriter) WriteListings(path string, listings []*models.PriceListing) error {
	rows := make([][]string, len(listings))
	for i, l := range listings {
		rows[i] = l.Cells()
	}
	return w.WriteRecords(path, models.PriceListingHeader, rows)
}

// WriteRecords writes a header and rows to path. The file is written next
// to its destination and renamed into place, so a failed write never leaves
// a truncated file behind.
func (w *CSVWriter) WriteRecords(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, header, rows, w.bom); err != nil {
		tmp.Close()
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}

	w.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(rows),
	}).Debug("Wrote CSV file")
	return nil
}

// Encode writes header and rows as CSV to out
func Encode(out io.Writer, header []string, rows [][]string, bom bool) error {
	if bom {
		if _, err := out.Write(utf8BOM); err != nil {
			return err
		}
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}
