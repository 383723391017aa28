// Package inference works out the layout of a regional rent table from its
// first rows: which row carries the years, where the data starts, and which
// columns hold the amount and index series of every year.
//
// Inference is split into two explicit phases. Locate finds the year header
// and the first data row; MapColumns turns the header's year cells into a
// YearColumnMap. The ColumnLayout consumed by the normalizer is a pure
// function of the mapping, or of the table width when inference failed.
package inference

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang-rent-normalizer/internal/models"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxScanRows bounds how deep the header rows may go
	DefaultMaxScanRows = 10
	// MinYearCells is the number of year cells a header row must exceed
	MinYearCells = 5
	// FallbackDataStartRow is where data is assumed to start when the
	// header cannot be located
	FallbackDataStartRow = 5
	// maxScaleCodeLength is the longest Envergure code found on data rows
	maxScaleCodeLength = 3
)

var (
	yearPattern = regexp.MustCompile(`^20[0-2]\d$`)

	// ErrHeaderNotFound is returned when no year header or no data start
	// row exists inside the scan window
	ErrHeaderNotFound = errors.New("year header not found")
)

// YearMatch is a year cell found in the header row
type YearMatch struct {
	Year   int `json:"year"`
	Column int `json:"column"`
}

// HeaderLocation is the outcome of a successful Locate
type HeaderLocation struct {
	HeaderRow    int         `json:"header_row"`
	DataStartRow int         `json:"data_start_row"`
	Width        int         `json:"width"`
	Matches      []YearMatch `json:"matches"`
}

// Years lists the matched years in column order
func (h *HeaderLocation) Years() []int {
	years := make([]int, len(h.Matches))
	for i, m := range h.Matches {
		years[i] = m.Year
	}
	return years
}

// Locate scans the first maxScanRows rows for the year header row and the
// first data row after it. A row is the header when more than MinYearCells
// of its cells, from column 3 on, are years. When a year repeats, its
// leftmost column is kept.
func Locate(rows models.RawTable, maxScanRows int) (*HeaderLocation, error) {
	if maxScanRows <= 0 {
		maxScanRows = DefaultMaxScanRows
	}
	limit := maxScanRows
	if limit > len(rows) {
		limit = len(rows)
	}

	headerRow := -1
	var matches []YearMatch
	for r := 0; r < limit; r++ {
		found, count := scanYears(rows[r])
		if count > MinYearCells {
			headerRow = r
			matches = found
			break
		}
	}
	if headerRow < 0 {
		return nil, errors.Wrapf(ErrHeaderNotFound, "no row among the first %d has more than %d year cells", limit, MinYearCells)
	}

	dataStart := -1
	for r := headerRow + 1; r < limit; r++ {
		if isDataRow(rows, r) {
			dataStart = r
			break
		}
	}
	if dataStart < 0 {
		return nil, errors.Wrapf(ErrHeaderNotFound, "year header at row %d but no data row before row %d", headerRow, limit)
	}

	return &HeaderLocation{
		HeaderRow:    headerRow,
		DataStartRow: dataStart,
		Width:        rows.Width(0, limit),
		Matches:      matches,
	}, nil
}

// scanYears returns the unique year cells of a row in column order together
// with the count of all year cells, repeats included.
func scanYears(row []string) ([]YearMatch, int) {
	var matches []YearMatch
	seen := make(map[int]bool)
	count := 0
	for col := models.FirstNumericPos; col < len(row); col++ {
		year, ok := parseYear(row[col])
		if !ok {
			continue
		}
		count++
		if seen[year] {
			continue
		}
		seen[year] = true
		matches = append(matches, YearMatch{Year: year, Column: col})
	}
	return matches, count
}

func parseYear(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if !yearPattern.MatchString(cell) {
		return 0, false
	}
	year, err := strconv.Atoi(cell)
	if err != nil {
		return 0, false
	}
	return year, true
}

// isDataRow reports whether a row looks like the first data row: its
// Agglomeration cell is blank, or its Envergure cell is a short code.
func isDataRow(rows models.RawTable, r int) bool {
	if _, ok := rows.Cell(r, models.AgglomerationPos); !ok {
		return true
	}
	scale, _ := rows.Cell(r, models.ScalePos)
	return utf8.RuneCountInString(scale) <= maxScaleCodeLength
}
