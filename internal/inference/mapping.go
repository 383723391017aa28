package inference

import (
	"fmt"

	"golang-rent-normalizer/internal/models"
)

// StrategyNone is recorded when no index strategy fits the table
const StrategyNone = "none"

// IndexStrategy is one guess at where the index series starts relative to
// the last amount column.
type IndexStrategy struct {
	Name   string
	Offset int
}

// DefaultStrategies are tried in order. Most exports leave one empty
// separator column between the amount and index blocks; some do not.
var DefaultStrategies = []IndexStrategy{
	{Name: "separator_column", Offset: 2},
	{Name: "adjacent", Offset: 1},
}

// Columns returns the n index columns proposed by the strategy, and whether
// they all fit inside a table of the given width.
func (s IndexStrategy) Columns(lastAmount, n, width int) ([]int, bool) {
	if n == 0 {
		return nil, false
	}
	start := lastAmount + s.Offset
	if start+n > width {
		return nil, false
	}
	cols := make([]int, n)
	for i := range cols {
		cols[i] = start + i
	}
	return cols, true
}

// ColumnMapping is the outcome of MapColumns. It is never modified after
// construction.
type ColumnMapping struct {
	Years    models.YearColumnMap `json:"years"`
	Order    []int                `json:"order"`
	Strategy string               `json:"strategy"`
	// Ambiguous is set when no strategy located the index columns; Warning
	// then says why.
	Ambiguous bool   `json:"ambiguous"`
	Warning   string `json:"warning,omitempty"`
	// Gaps lists the years whose amount column does not directly follow
	// the previous year's.
	Gaps []int `json:"gaps,omitempty"`
}

// Contiguous reports whether the amount columns have no gaps
func (m *ColumnMapping) Contiguous() bool {
	return len(m.Gaps) == 0
}

// MapColumns maps every header year to its amount column and, when one of
// DefaultStrategies fits, to its index column.
func MapColumns(matches []YearMatch, width int) *ColumnMapping {
	return MapColumnsWith(matches, width, DefaultStrategies)
}

// MapColumnsWith is MapColumns with an explicit strategy list. Exactly one
// strategy's index columns are adopted, or none.
func MapColumnsWith(matches []YearMatch, width int, strategies []IndexStrategy) *ColumnMapping {
	mapping := &ColumnMapping{
		Years:    make(models.YearColumnMap, len(matches)),
		Order:    make([]int, 0, len(matches)),
		Strategy: StrategyNone,
	}

	lastAmount := -1
	for i, m := range matches {
		if i > 0 && m.Column != matches[i-1].Column+1 {
			mapping.Gaps = append(mapping.Gaps, m.Year)
		}
		mapping.Years[m.Year] = models.YearColumns{AmountColumn: m.Column}
		mapping.Order = append(mapping.Order, m.Year)
		if m.Column > lastAmount {
			lastAmount = m.Column
		}
	}

	n := len(mapping.Order)
	for _, strategy := range strategies {
		cols, ok := strategy.Columns(lastAmount, n, width)
		if !ok {
			continue
		}
		for i, year := range mapping.Order {
			yc := mapping.Years[year]
			yc.IndexColumn = cols[i]
			yc.HasIndex = true
			mapping.Years[year] = yc
		}
		mapping.Strategy = strategy.Name
		return mapping
	}

	mapping.Ambiguous = true
	mapping.Warning = fmt.Sprintf("%d index columns do not fit after amount column %d in width %d", n, lastAmount, width)
	return mapping
}

// Layout builds the column layout of the mapping: amount columns in header
// order followed by the index columns that were located.
func (m *ColumnMapping) Layout() *models.ColumnLayout {
	layout := &models.ColumnLayout{
		Columns: make([]models.NumericColumn, 0, 2*len(m.Order)),
	}
	for _, year := range m.Order {
		layout.Columns = append(layout.Columns, models.NumericColumn{
			Name:     models.AmountColumnName(year),
			Position: m.Years[year].AmountColumn,
			Kind:     models.KindAmount,
			Year:     year,
		})
	}
	for _, year := range m.Order {
		yc := m.Years[year]
		if !yc.HasIndex {
			continue
		}
		layout.Columns = append(layout.Columns, models.NumericColumn{
			Name:     models.IndexColumnName(year),
			Position: yc.IndexColumn,
			Kind:     models.KindIndex,
			Year:     year,
		})
	}
	return layout
}

// GenericLayout is the degraded layout used when the header could not be
// located: every column from position 3 up to width is a generic column.
func GenericLayout(width int) *models.ColumnLayout {
	layout := &models.ColumnLayout{}
	for pos := models.FirstNumericPos; pos < width; pos++ {
		layout.Columns = append(layout.Columns, models.NumericColumn{
			Name:     models.GenericColumnName(pos),
			Position: pos,
			Kind:     models.KindGeneric,
		})
	}
	return layout
}
