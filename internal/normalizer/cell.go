// Package normalizer cleans the data rows of a regional rent table: it
// forward-fills the hierarchical identifier columns, drops header, subtotal
// and aggregate rows, and converts the numeric cells written with French
// conventions (comma decimals, space thousands separators) into values.
package normalizer

import (
	"math"
	"strings"

	"golang-rent-normalizer/internal/models"

	"github.com/shopspring/decimal"
)

// groupSeparators are the characters used as thousands separators in the
// exports: plain space, no-break space and narrow no-break space.
var groupSeparators = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// NormalizeCell converts a raw cell into a numeric value. Numbers pass
// through unchanged; text is read with a comma decimal separator. Anything
// that cannot be read yields MISSING, never an error.
func NormalizeCell(cell any) models.Value {
	switch v := cell.(type) {
	case nil:
		return models.Missing()
	case models.Value:
		return v
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return models.NewValue(float64(v))
	case int64:
		return models.NewValue(float64(v))
	case decimal.Decimal:
		return fromFloat(v.InexactFloat64())
	case string:
		return normalizeText(v)
	default:
		return models.Missing()
	}
}

func fromFloat(f float64) models.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return models.Missing()
	}
	return models.NewValue(f)
}

func normalizeText(s string) models.Value {
	s = groupSeparators.Replace(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return models.Missing()
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return models.Missing()
	}
	// "1e400" parses as a decimal but overflows float64
	return fromFloat(d.InexactFloat64())
}
