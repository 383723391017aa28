package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Identifier column names of the canonical schema
const (
	ColAgglomeration = "Agglomeration"
	ColHousingType   = "Type_Habitat"
	ColScale         = "Envergure"

	AmountPrefix  = "Montant_"
	IndexPrefix   = "Indice_"
	GenericPrefix = "Column_"
)

// Positions of the identifier columns in every raw table
const (
	AgglomerationPos = 0
	HousingTypePos   = 1
	ScalePos         = 2

	// FirstNumericPos is the first column that may hold a year or a value
	FirstNumericPos = 3
)

// AmountColumnName returns the canonical amount column name for year
func AmountColumnName(year int) string {
	return fmt.Sprintf("%s%d", AmountPrefix, year)
}

// IndexColumnName returns the canonical index column name for year
func IndexColumnName(year int) string {
	return fmt.Sprintf("%s%d", IndexPrefix, year)
}

// GenericColumnName names a numeric column whose year is unknown.
// Positions are zero based, names are one based.
func GenericColumnName(position int) string {
	return fmt.Sprintf("%s%d", GenericPrefix, position+1)
}

// Value is a numeric cell. A zero Value is MISSING.
type Value struct {
	Number float64
	Valid  bool
}

// Missing returns the MISSING value
func Missing() Value {
	return Value{}
}

// NewValue returns a present value. NaN and infinities cannot be written
// to any output and are MISSING.
func NewValue(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Missing()
	}
	return Value{Number: n, Valid: true}
}

// IsMissing reports whether the value is MISSING
func (v Value) IsMissing() bool {
	return !v.Valid
}

// Equal compares two values; MISSING equals MISSING.
func (v Value) Equal(other Value) bool {
	if !v.Valid || !other.Valid {
		return v.Valid == other.Valid
	}
	return v.Number == other.Number
}

// String renders the value with a dot decimal separator, or "" when MISSING.
func (v Value) String() string {
	if !v.Valid || math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
		return ""
	}
	return decimal.NewFromFloat(v.Number).String()
}

// MarshalJSON encodes MISSING as null
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Number)
}

// UnmarshalJSON decodes null as MISSING
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Missing()
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = NewValue(n)
	return nil
}

// RawTable holds the text cells of a file exactly as read
type RawTable [][]string

// Cell returns the trimmed cell at (row, col) and whether it is present.
// Cells beyond the end of a short row and blank cells are not present.
func (t RawTable) Cell(row, col int) (string, bool) {
	if row < 0 || row >= len(t) || col < 0 || col >= len(t[row]) {
		return "", false
	}
	cell := strings.TrimSpace(t[row][col])
	return cell, cell != ""
}

// Width returns the length of the widest row in t[from:to]
func (t RawTable) Width(from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > len(t) {
		to = len(t)
	}
	width := 0
	for i := from; i < to; i++ {
		if len(t[i]) > width {
			width = len(t[i])
		}
	}
	return width
}

// IsBlankRow reports whether every cell of the row is blank
func (t RawTable) IsBlankRow(row int) bool {
	if row < 0 || row >= len(t) {
		return true
	}
	for _, cell := range t[row] {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// YearRange is an inclusive range of calendar years
type YearRange struct {
	First int `json:"first" mapstructure:"first"`
	Last  int `json:"last" mapstructure:"last"`
}

// DefaultYearRange is the canonical 2001..2022 range
func DefaultYearRange() YearRange {
	return YearRange{First: 2001, Last: 2022}
}

// Len returns the number of years in the range
func (r YearRange) Len() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Years lists the years in ascending order
func (r YearRange) Years() []int {
	years := make([]int, 0, r.Len())
	for y := r.First; y <= r.Last; y++ {
		years = append(years, y)
	}
	return years
}

// Contains reports whether year falls inside the range
func (r YearRange) Contains(year int) bool {
	return year >= r.First && year <= r.Last
}

// Validate checks the range is well formed
func (r YearRange) Validate() error {
	if r.First <= 0 || r.Last <= 0 {
		return fmt.Errorf("year range bounds must be positive, got %d..%d", r.First, r.Last)
	}
	if r.Last < r.First {
		return fmt.Errorf("year range is reversed: %d..%d", r.First, r.Last)
	}
	return nil
}

func (r YearRange) String() string {
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// YearColumns locates one year's amount and index columns
type YearColumns struct {
	AmountColumn int  `json:"amount_column"`
	IndexColumn  int  `json:"index_column"`
	HasIndex     bool `json:"has_index"`
}

// YearColumnMap maps each header year to its columns
type YearColumnMap map[int]YearColumns

// Years lists the mapped years in ascending order
func (m YearColumnMap) Years() []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// ColumnKind classifies a numeric column
type ColumnKind string

const (
	KindAmount  ColumnKind = "amount"
	KindIndex   ColumnKind = "index"
	KindGeneric ColumnKind = "generic"
)

// NumericColumn is one value column of a layout
type NumericColumn struct {
	Name     string     `json:"name"`
	Position int        `json:"position"`
	Kind     ColumnKind `json:"kind"`
	Year     int        `json:"year,omitempty"`
}

// ColumnLayout describes where the numeric columns of a file live.
// The identifier columns are always at positions 0, 1 and 2.
type ColumnLayout struct {
	Columns []NumericColumn `json:"columns"`
}

// MaxPosition returns the highest column position used by the layout,
// including the identifier columns.
func (l *ColumnLayout) MaxPosition() int {
	highest := ScalePos
	for _, c := range l.Columns {
		if c.Position > highest {
			highest = c.Position
		}
	}
	return highest
}

// Names lists the numeric column names in layout order
func (l *ColumnLayout) Names() []string {
	names := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		names[i] = c.Name
	}
	return names
}

// IsGeneric reports whether the layout carries no year information
func (l *ColumnLayout) IsGeneric() bool {
	for _, c := range l.Columns {
		if c.Kind != KindGeneric {
			return false
		}
	}
	return true
}

// Row is one normalized data row
type Row struct {
	Agglomeration string           `json:"agglomeration"`
	HousingType   string           `json:"housing_type"`
	Scale         string           `json:"scale"`
	Values        map[string]Value `json:"values"`
}

// Value returns the named numeric value, MISSING when absent
func (r *Row) Value(name string) Value {
	if r.Values == nil {
		return Missing()
	}
	return r.Values[name]
}

// Record is a row of the canonical schema. Amounts and Indices are indexed
// by position in the table's YearRange.
type Record struct {
	Agglomeration string  `json:"agglomeration"`
	HousingType   string  `json:"housing_type"`
	Scale         string  `json:"scale"`
	Amounts       []Value `json:"amounts"`
	Indices       []Value `json:"indices"`
}

// NewRecord creates a record with every year MISSING
func NewRecord(agglomeration, housingType, scale string, years YearRange) *Record {
	return &Record{
		Agglomeration: agglomeration,
		HousingType:   housingType,
		Scale:         scale,
		Amounts:       make([]Value, years.Len()),
		Indices:       make([]Value, years.Len()),
	}
}

// Cells renders the record in canonical column order
func (r *Record) Cells() []string {
	cells := make([]string, 0, 3+len(r.Amounts)+len(r.Indices))
	cells = append(cells, r.Agglomeration, r.HousingType, r.Scale)
	for _, v := range r.Amounts {
		cells = append(cells, v.String())
	}
	for _, v := range r.Indices {
		cells = append(cells, v.String())
	}
	return cells
}

// CanonicalHeader returns the canonical column names for a year range
func CanonicalHeader(years YearRange) []string {
	header := []string{ColAgglomeration, ColHousingType, ColScale}
	for _, y := range years.Years() {
		header = append(header, AmountColumnName(y))
	}
	for _, y := range years.Years() {
		header = append(header, IndexColumnName(y))
	}
	return header
}

// CanonicalTable is one cleaned file
type CanonicalTable struct {
	Source  string    `json:"source"`
	Years   YearRange `json:"years"`
	Records []*Record `json:"records"`
}

// Header returns the table's column names
func (t *CanonicalTable) Header() []string {
	return CanonicalHeader(t.Years)
}

// Len returns the number of records
func (t *CanonicalTable) Len() int {
	return len(t.Records)
}

// CombinedTable is the deduplicated concatenation of canonical tables
type CombinedTable struct {
	Years      YearRange `json:"years"`
	Sources    []string  `json:"sources"`
	Records    []*Record `json:"records"`
	Duplicates int       `json:"duplicates"`
}

// Header returns the table's column names
func (t *CombinedTable) Header() []string {
	return CanonicalHeader(t.Years)
}

// Len returns the number of records
func (t *CombinedTable) Len() int {
	return len(t.Records)
}

// PriceListing is one row of scraped average prices per square meter
type PriceListing struct {
	Name                string `json:"name"`
	AvgPriceApartment   Value  `json:"avg_price_apartment"`
	AvgPriceVilla       Value  `json:"avg_price_villa"`
	Region              string `json:"region,omitempty"`
	LastUpdated         string `json:"last_updated,omitempty"`
	ConfidenceApartment string `json:"confidence_index_apartment,omitempty"`
	ConfidenceVilla     string `json:"confidence_index_villa,omitempty"`
}

// PriceListingHeader is the column order of exported listings
var PriceListingHeader = []string{
	"City/Province",
	"Avg Price Apartment (MAD/m²)",
	"Avg Price Villa (MAD/m²)",
	"Region",
	"Last Updated",
	"Confidence Index Apt.",
	"Confidence Index Villa",
}

// Validate performs basic validation on the listing
func (p *PriceListing) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("listing name cannot be empty")
	}
	if p.AvgPriceApartment.IsMissing() && p.AvgPriceVilla.IsMissing() {
		return fmt.Errorf("listing %s has no price", p.Name)
	}
	return nil
}

// Cells renders the listing in PriceListingHeader order
func (p *PriceListing) Cells() []string {
	return []string{
		p.Name,
		p.AvgPriceApartment.String(),
		p.AvgPriceVilla.String(),
		p.Region,
		p.LastUpdated,
		p.ConfidenceApartment,
		p.ConfidenceVilla,
	}
}
