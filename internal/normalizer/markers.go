package normalizer

import (
	"fmt"
	"strings"
	"sync"
)

// Markers lists the labels that identify non-data rows. Labels are compared
// after trimming, case-sensitively.
type Markers struct {
	// StructuralLabels are Agglomeration values of header, subtotal and
	// region rows.
	StructuralLabels []string `json:"structural_labels" mapstructure:"structural_labels"`
	// ScaleExclusions are Envergure values of aggregate rows.
	ScaleExclusions []string `json:"scale_exclusions" mapstructure:"scale_exclusions"`

	once       sync.Once
	structural map[string]struct{}
	excluded   map[string]struct{}
}

// DefaultMarkers returns the marker sets observed in the regional exports
func DefaultMarkers() *Markers {
	return &Markers{
		StructuralLabels: []string{"Agglomération", "Région", "Total ville", "Total région", "Fès Meknès"},
		ScaleExclusions:  []string{"VIL", "APS", "APE", "MLE"},
	}
}

// Validate checks that no marker is blank
func (m *Markers) Validate() error {
	for _, label := range m.StructuralLabels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("structural labels cannot contain a blank entry")
		}
	}
	for _, scale := range m.ScaleExclusions {
		if strings.TrimSpace(scale) == "" {
			return fmt.Errorf("scale exclusions cannot contain a blank entry")
		}
	}
	return nil
}

// IsStructural reports whether an Agglomeration value marks a non-data row
func (m *Markers) IsStructural(agglomeration string) bool {
	m.index()
	_, ok := m.structural[strings.TrimSpace(agglomeration)]
	return ok
}

// IsExcludedScale reports whether an Envergure value marks an aggregate row
func (m *Markers) IsExcludedScale(scale string) bool {
	m.index()
	_, ok := m.excluded[strings.TrimSpace(scale)]
	return ok
}

func (m *Markers) index() {
	m.once.Do(func() {
		m.structural = toSet(m.StructuralLabels)
		m.excluded = toSet(m.ScaleExclusions)
	})
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}
