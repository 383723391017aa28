package exporter

import (
	"os"
	"path/filepath"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// DefaultSheetName is the worksheet holding the combined table
const DefaultSheetName = "Loyers"

// XLSXWriter exports the combined table as a single-sheet workbook
type XLSXWriter struct {
	sheet  string
	logger logger.Logger
}

// NewXLSXWriter creates a workbook writer. An empty sheet name selects
// DefaultSheetName.
func NewXLSXWriter(sheet string, log logger.Logger) *XLSXWriter {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &XLSXWriter{sheet: sheet, logger: log.WithComponent("exporter")}
}

// WriteCombined writes the table to path. Values are stored as numbers and
// MISSING cells are left empty.
func (w *XLSXWriter) WriteCombined(path string, table *models.CombinedTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), w.sheet); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}

	stream, err := f.NewStreamWriter(w.sheet)
	if err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}

	header := table.Header()
	headerRow := make([]interface{}, len(header))
	for i, name := range header {
		headerRow[i] = name
	}
	if err := stream.SetRow("A1", headerRow); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}

	for i, rec := range table.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.FileError(errors.CodeWriteFailed, path, err)
		}
		if err := stream.SetRow(cell, recordRow(rec)); err != nil {
			return errors.FileError(errors.CodeWriteFailed, path, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}

	w.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(table.Records),
		"sheet":     w.sheet,
	}).Debug("Wrote XLSX workbook")
	return nil
}

func recordRow(rec *models.Record) []interface{} {
	row := make([]interface{}, 0, 3+len(rec.Amounts)+len(rec.Indices))
	row = append(row, rec.Agglomeration, rec.HousingType, rec.Scale)
	for _, v := range rec.Amounts {
		row = append(row, cellOf(v))
	}
	for _, v := range rec.Indices {
		row = append(row, cellOf(v))
	}
	return row
}

func cellOf(v models.Value) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Number
}
