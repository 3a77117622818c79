package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encoding binds a field to a visual channel, with optional modifiers.
type Encoding struct {
	FieldSpec `mapstructure:",squash"`

	// Aggregate is the aggregation op applied by the renderer (e.g. "mean").
	Aggregate string `json:"aggregate,omitempty" yaml:"aggregate,omitempty" mapstructure:"aggregate"`

	// Scale is the scale type applied by the renderer (e.g. "log").
	Scale string `json:"scale,omitempty" yaml:"scale,omitempty" mapstructure:"scale"`
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// Filter restricts the rows of a field.
// Quantitative and temporal fields use Range; categorical fields use OneOf.
type Filter struct {
	Field string    `json:"field" yaml:"field" mapstructure:"field"`
	Type  FieldType `json:"type" yaml:"type" mapstructure:"type"`
	Range *Range    `json:"range,omitempty" yaml:"range,omitempty" mapstructure:"range"`
	OneOf []string  `json:"one_of,omitempty" yaml:"one_of,omitempty" mapstructure:"one_of"`
}

// Valid reports whether the predicate shape matches the field type.
func (f Filter) Valid() bool {
	if f.Field == "" || !f.Type.Valid() {
		return false
	}
	if f.Type.Categorical() {
		return f.Range == nil && len(f.OneOf) > 0
	}
	return f.Range != nil && len(f.OneOf) == 0 && f.Range.Min <= f.Range.Max
}

// String renders the filter the way the pill editor lists it.
func (f Filter) String() string {
	if f.Range != nil {
		return fmt.Sprintf("%s ≤ %s ≤ %s", formatNumber(f.Range.Min), f.Field, formatNumber(f.Range.Max))
	}
	return fmt.Sprintf("%s in [%s]", f.Field, strings.Join(f.OneOf, ", "))
}

func (f Filter) clone() Filter {
	c := f
	if f.Range != nil {
		r := *f.Range
		c.Range = &r
	}
	if f.OneOf != nil {
		c.OneOf = append([]string(nil), f.OneOf...)
	}
	return c
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GraphSpec is the declarative description of a chart handed to the renderer.
// Values are treated as immutable: every edit operation returns a copy.
type GraphSpec struct {
	Mark     Mark                `json:"mark,omitempty" yaml:"mark,omitempty" mapstructure:"mark"`
	Encoding map[string]Encoding `json:"encoding,omitempty" yaml:"encoding,omitempty" mapstructure:"encoding"`
	Filters  []Filter            `json:"filters,omitempty" yaml:"filters,omitempty" mapstructure:"filters"`
}

// Clone returns a deep copy of the spec.
func (s GraphSpec) Clone() GraphSpec {
	c := GraphSpec{Mark: s.Mark}
	if len(s.Encoding) > 0 {
		c.Encoding = make(map[string]Encoding, len(s.Encoding))
		for ch, enc := range s.Encoding {
			c.Encoding[ch] = enc
		}
	}
	if len(s.Filters) > 0 {
		c.Filters = make([]Filter, len(s.Filters))
		for i, f := range s.Filters {
			c.Filters[i] = f.clone()
		}
	}
	return c
}

// Equal reports structural equality. A nil and an empty encoding map are equal.
func (s GraphSpec) Equal(o GraphSpec) bool {
	if s.Mark != o.Mark || len(s.Encoding) != len(o.Encoding) || len(s.Filters) != len(o.Filters) {
		return false
	}
	for ch, enc := range s.Encoding {
		other, ok := o.Encoding[ch]
		if !ok || other != enc {
			return false
		}
	}
	for i := range s.Filters {
		if !filtersEqual(s.Filters[i], o.Filters[i]) {
			return false
		}
	}
	return true
}

func filtersEqual(a, b Filter) bool {
	if a.Field != b.Field || a.Type != b.Type || len(a.OneOf) != len(b.OneOf) {
		return false
	}
	if (a.Range == nil) != (b.Range == nil) {
		return false
	}
	if a.Range != nil && *a.Range != *b.Range {
		return false
	}
	for i := range a.OneOf {
		if a.OneOf[i] != b.OneOf[i] {
			return false
		}
	}
	return true
}

// Channels returns the bound channels in a stable order: required channels of the
// mark first, then the rest alphabetically.
func (s GraphSpec) Channels() []string {
	out := make([]string, 0, len(s.Encoding))
	seen := make(map[string]bool, len(s.Encoding))
	for _, ch := range s.Mark.RequiredChannels() {
		if _, ok := s.Encoding[ch]; ok {
			out = append(out, ch)
			seen[ch] = true
		}
	}
	rest := make([]string, 0, len(s.Encoding))
	for ch := range s.Encoding {
		if !seen[ch] {
			rest = append(rest, ch)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// FiltersFor returns the filters attached to field.
func (s GraphSpec) FiltersFor(field string) []Filter {
	var out []Filter
	for _, f := range s.Filters {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

// Describe returns a one-line summary such as "bar chart: x=category, y=mean(price)".
func (s GraphSpec) Describe() string {
	if s.Mark == "" {
		return "no chart yet"
	}
	parts := make([]string, 0, len(s.Encoding))
	for _, ch := range s.Channels() {
		enc := s.Encoding[ch]
		field := enc.Field
		if enc.Aggregate != "" {
			field = enc.Aggregate + "(" + field + ")"
		}
		if enc.Scale != "" {
			field += " [" + enc.Scale + "]"
		}
		parts = append(parts, ch+"="+field)
	}
	if len(parts) == 0 {
		return string(s.Mark) + " chart"
	}
	return string(s.Mark) + " chart: " + strings.Join(parts, ", ")
}
