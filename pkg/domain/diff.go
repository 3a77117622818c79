package domain

// SpecDiff represents the changes between two specs.
// It is designed to be serialized to JSON so hosts and agents can see what an edit did.
type SpecDiff struct {
	// Mark is set when the chart kind changed.
	Mark *Mark `json:"mark,omitempty"`

	// Encoding contains only changed, added or removed channels.
	// For removals, the channel is present with a nil value.
	Encoding map[string]*Encoding `json:"encoding,omitempty"`

	// Filters contains changed, added or removed filters keyed by field.
	// For removals, the field is present with a nil value.
	Filters map[string]*Filter `json:"filters,omitempty"`
}

// Diff calculates the difference between oldSpec and newSpec.
// It returns nil when the specs are structurally equal.
func Diff(oldSpec, newSpec GraphSpec) *SpecDiff {
	diff := &SpecDiff{}

	if oldSpec.Mark != newSpec.Mark {
		m := newSpec.Mark
		diff.Mark = &m
	}

	enc := make(map[string]*Encoding)
	for ch, newEnc := range newSpec.Encoding {
		if oldEnc, ok := oldSpec.Encoding[ch]; !ok || oldEnc != newEnc {
			e := newEnc
			enc[ch] = &e
		}
	}
	for ch := range oldSpec.Encoding {
		if _, ok := newSpec.Encoding[ch]; !ok {
			enc[ch] = nil
		}
	}
	if len(enc) > 0 {
		diff.Encoding = enc
	}

	filters := make(map[string]*Filter)
	oldByField := make(map[string]Filter, len(oldSpec.Filters))
	for _, f := range oldSpec.Filters {
		oldByField[f.Field] = f
	}
	newByField := make(map[string]bool, len(newSpec.Filters))
	for _, f := range newSpec.Filters {
		newByField[f.Field] = true
		if old, ok := oldByField[f.Field]; !ok || !filtersEqual(old, f) {
			c := f.clone()
			filters[f.Field] = &c
		}
	}
	for field := range oldByField {
		if !newByField[field] {
			filters[field] = nil
		}
	}
	if len(filters) > 0 {
		diff.Filters = filters
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SpecDiff) IsEmpty() bool {
	return d.Mark == nil && len(d.Encoding) == 0 && len(d.Filters) == 0
}
