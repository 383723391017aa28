package pipeline

import (
	"fmt"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
)

// Align projects normalized rows onto the canonical year range. Every record
// gets one amount and one index per year, MISSING where the row has no such
// column; columns outside the range and generic columns are dropped.
func Align(rows []*models.Row, years models.YearRange) *models.CanonicalTable {
	table := &models.CanonicalTable{
		Years:   years,
		Records: make([]*models.Record, 0, len(rows)),
	}

	for _, row := range rows {
		record := models.NewRecord(row.Agglomeration, row.HousingType, row.Scale, years)
		for i, year := range years.Years() {
			record.Amounts[i] = row.Value(models.AmountColumnName(year))
			record.Indices[i] = row.Value(models.IndexColumnName(year))
		}
		table.Records = append(table.Records, record)
	}
	return table
}

type dedupKey struct {
	agglomeration string
	housingType   string
	scale         string
	firstAmount   models.Value
}

func keyOf(r *models.Record) dedupKey {
	key := dedupKey{
		agglomeration: r.Agglomeration,
		housingType:   r.HousingType,
		scale:         r.Scale,
	}
	if len(r.Amounts) > 0 && r.Amounts[0].Valid {
		key.firstAmount = r.Amounts[0]
	}
	return key
}

// Combine concatenates tables in order and drops records whose identifiers
// and first-year amount were already seen. All tables must share one year
// range.
func Combine(tables []*models.CanonicalTable) (*models.CombinedTable, error) {
	if len(tables) == 0 {
		return nil, errors.PipelineError(errors.CodeNothingToCombine, "combine", nil)
	}

	years := tables[0].Years
	combined := &models.CombinedTable{Years: years}
	seen := make(map[dedupKey]struct{})

	for _, table := range tables {
		if table.Years != years {
			return nil, errors.SchemaError(errors.CodeYearRangeMismatch, table.Source, years.Len(), table.Years.Len()).
				WithContext("expected_years", years.String()).
				WithContext("actual_years", table.Years.String())
		}
		combined.Sources = append(combined.Sources, table.Source)

		for _, record := range table.Records {
			key := keyOf(record)
			if _, dup := seen[key]; dup {
				combined.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			combined.Records = append(combined.Records, record)
		}
	}

	return combined, nil
}

// checkSchema rejects layouts that reference columns the file does not have
func checkSchema(layout *models.ColumnLayout, width int, path string) error {
	if len(layout.Columns) == 0 {
		return nil
	}
	if highest := layout.MaxPosition(); highest >= width {
		return errors.SchemaError(errors.CodeSchemaMismatch, path, highest+1, width).
			WithContext("layout", fmt.Sprintf("%d numeric columns", len(layout.Columns)))
	}
	return nil
}
