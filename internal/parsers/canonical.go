package parsers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/pkg/errors"
)

// CleanedFilePattern matches the per-file outputs of a normalize run
const CleanedFilePattern = "*_cleaned.csv"

// ReadCanonical reads a cleaned file back into a canonical table. The header
// must start with the identifier columns; the year range is taken from the
// Montant_ columns, which must be contiguous.
func (r *RawTableReader) ReadCanonical(ctx context.Context, path string) (*models.CanonicalTable, error) {
	raw, _, err := r.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseCanonical(raw, path)
}

// ParseCanonical interprets a raw table holding a cleaned file
func ParseCanonical(raw models.RawTable, source string) (*models.CanonicalTable, error) {
	header := raw[0]
	if len(header) < models.FirstNumericPos ||
		strings.TrimSpace(header[models.AgglomerationPos]) != models.ColAgglomeration ||
		strings.TrimSpace(header[models.HousingTypePos]) != models.ColHousingType ||
		strings.TrimSpace(header[models.ScalePos]) != models.ColScale {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1,
			fmt.Errorf("header must start with %s, %s, %s", models.ColAgglomeration, models.ColHousingType, models.ColScale))
	}

	amountCols := make(map[int]int)
	indexCols := make(map[int]int)
	first, last := 0, 0
	for col := models.FirstNumericPos; col < len(header); col++ {
		name := strings.TrimSpace(header[col])
		switch {
		case strings.HasPrefix(name, models.AmountPrefix):
			year, err := strconv.Atoi(strings.TrimPrefix(name, models.AmountPrefix))
			if err != nil {
				return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, fmt.Errorf("bad column %q", name))
			}
			amountCols[year] = col
			if first == 0 || year < first {
				first = year
			}
			if year > last {
				last = year
			}
		case strings.HasPrefix(name, models.IndexPrefix):
			year, err := strconv.Atoi(strings.TrimPrefix(name, models.IndexPrefix))
			if err != nil {
				return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, fmt.Errorf("bad column %q", name))
			}
			indexCols[year] = col
		}
	}

	years := models.YearRange{First: first, Last: last}
	if len(amountCols) == 0 || len(amountCols) != years.Len() {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1,
			fmt.Errorf("amount columns do not form a contiguous year range"))
	}

	table := &models.CanonicalTable{Source: source, Years: years}
	for i := 1; i < len(raw); i++ {
		if raw.IsBlankRow(i) {
			continue
		}
		agglomeration, _ := raw.Cell(i, models.AgglomerationPos)
		housingType, _ := raw.Cell(i, models.HousingTypePos)
		scale, _ := raw.Cell(i, models.ScalePos)

		record := models.NewRecord(agglomeration, housingType, scale, years)
		for y, year := range years.Years() {
			record.Amounts[y] = cellValue(raw[i], amountCols[year])
			if col, ok := indexCols[year]; ok {
				record.Indices[y] = cellValue(raw[i], col)
			}
		}
		table.Records = append(table.Records, record)
	}
	return table, nil
}

func cellValue(row []string, col int) models.Value {
	if col >= len(row) {
		return models.Missing()
	}
	return normalizer.NormalizeCell(row[col])
}
