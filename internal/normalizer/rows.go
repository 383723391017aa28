package normalizer

import (
	"fmt"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/logger"
)

// Stats counts what happened to the rows of one table
type Stats struct {
	InputRows         int `json:"input_rows"`
	BlankRows         int `json:"blank_rows"`
	MissingIdentifier int `json:"missing_identifier"`
	StructuralRows    int `json:"structural_rows"`
	ExcludedScale     int `json:"excluded_scale"`
	AllMissing        int `json:"all_missing"`
	OutputRows        int `json:"output_rows"`
}

// Dropped returns the number of rows removed for any reason
func (s *Stats) Dropped() int {
	return s.BlankRows + s.MissingIdentifier + s.StructuralRows + s.ExcludedScale + s.AllMissing
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d rows in, %d out (blank: %d, no identifier: %d, structural: %d, excluded scale: %d, no values: %d)",
		s.InputRows, s.OutputRows, s.BlankRows, s.MissingIdentifier, s.StructuralRows, s.ExcludedScale, s.AllMissing)
}

// RowNormalizer turns the data rows of a raw table into typed rows
type RowNormalizer struct {
	markers *Markers
	logger  logger.Logger
}

// NewRowNormalizer creates a row normalizer. A nil markers argument selects
// DefaultMarkers.
func NewRowNormalizer(markers *Markers, log logger.Logger) *RowNormalizer {
	if markers == nil {
		markers = DefaultMarkers()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &RowNormalizer{
		markers: markers,
		logger:  log.WithComponent("normalizer"),
	}
}

// Markers returns the marker sets in use
func (n *RowNormalizer) Markers() *Markers {
	return n.markers
}

// Normalize cleans the data rows (everything from the data start row on)
// against the given layout. Output order is input order minus dropped rows.
func (n *RowNormalizer) Normalize(rows models.RawTable, layout *models.ColumnLayout) ([]*models.Row, *Stats) {
	stats := &Stats{InputRows: len(rows)}

	kept := make([]int, 0, len(rows))
	for i := range rows {
		if rows.IsBlankRow(i) {
			stats.BlankRows++
			continue
		}
		kept = append(kept, i)
	}

	ids := make([]Identifiers, len(kept))
	for i, r := range kept {
		ids[i].Agglomeration, _ = rows.Cell(r, models.AgglomerationPos)
		ids[i].HousingType, _ = rows.Cell(r, models.HousingTypePos)
		ids[i].Scale, _ = rows.Cell(r, models.ScalePos)
	}
	ids = ForwardFill(ids, AssignGroups(ids))

	var result []*models.Row
	for i, r := range kept {
		id := ids[i]

		switch {
		case id.Agglomeration == "" || id.HousingType == "":
			stats.MissingIdentifier++
			continue
		case n.markers.IsStructural(id.Agglomeration):
			stats.StructuralRows++
			continue
		case id.Scale == "" || n.markers.IsExcludedScale(id.Scale):
			stats.ExcludedScale++
			continue
		}

		row := &models.Row{
			Agglomeration: id.Agglomeration,
			HousingType:   id.HousingType,
			Scale:         id.Scale,
			Values:        make(map[string]models.Value, len(layout.Columns)),
		}
		present := false
		for _, col := range layout.Columns {
			var v models.Value
			if col.Position < len(rows[r]) {
				v = NormalizeCell(rows[r][col.Position])
			}
			row.Values[col.Name] = v
			present = present || v.Valid
		}
		if !present {
			stats.AllMissing++
			continue
		}

		result = append(result, row)
	}

	stats.OutputRows = len(result)
	n.logger.WithFields(logger.Fields{
		"input_rows":  stats.InputRows,
		"output_rows": stats.OutputRows,
		"dropped":     stats.Dropped(),
	}).Debug("Normalized data rows")

	return result, stats
}
