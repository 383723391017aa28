package normalizer

// Identifiers are the three leading cells of a data row. An empty string
// means the cell was blank in the source.
type Identifiers struct {
	Agglomeration string
	HousingType   string
	Scale         string
}

// AssignGroups returns the group number of every row. A new group starts at
// each row carrying an Agglomeration; rows before the first such row form
// group 0.
func AssignGroups(ids []Identifiers) []int {
	groups := make([]int, len(ids))
	group := 0
	for i, id := range ids {
		if id.Agglomeration != "" && i > 0 {
			group++
		}
		groups[i] = group
	}
	return groups
}

// ForwardFill returns a copy of ids where blank Agglomeration and
// HousingType cells take the most recent value seen in the same group.
// Applying it twice gives the same result as applying it once.
func ForwardFill(ids []Identifiers, groups []int) []Identifiers {
	filled := make([]Identifiers, len(ids))
	copy(filled, ids)

	var lastAgglomeration, lastHousingType string
	for i := range filled {
		if i == 0 || groups[i] != groups[i-1] {
			lastAgglomeration, lastHousingType = "", ""
		}

		if filled[i].Agglomeration == "" {
			filled[i].Agglomeration = lastAgglomeration
		} else {
			lastAgglomeration = filled[i].Agglomeration
		}

		if filled[i].HousingType == "" {
			filled[i].HousingType = lastHousingType
		} else {
			lastHousingType = filled[i].HousingType
		}
	}
	return filled
}
