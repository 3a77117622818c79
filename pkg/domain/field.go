package domain

// FieldType is the measurement type of a data column.
type FieldType string

const (
	TypeQuantitative FieldType = "quantitative"
	TypeNominal      FieldType = "nominal"
	TypeOrdinal      FieldType = "ordinal"
	TypeTemporal     FieldType = "temporal"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeQuantitative, TypeNominal, TypeOrdinal, TypeTemporal:
		return true
	}
	return false
}

// Categorical reports whether values of t are discrete categories.
func (t FieldType) Categorical() bool {
	return t == TypeNominal || t == TypeOrdinal
}

// FieldSpec references one column of the widget data.
// Identity is the pair (Field, Type).
type FieldSpec struct {
	Field string    `json:"field" yaml:"field" mapstructure:"field"`
	Type  FieldType `json:"type" yaml:"type" mapstructure:"type"`
}

// IsZero reports whether the field reference is unset.
func (f FieldSpec) IsZero() bool {
	return f.Field == "" && f.Type == ""
}

// Aggregations accepted on an encoding.
const (
	AggregateMean     = "mean"
	AggregateSum      = "sum"
	AggregateMedian   = "median"
	AggregateMin      = "min"
	AggregateMax      = "max"
	AggregateVariance = "variance"
	AggregateStdev    = "stdev"
	AggregateCount    = "count"
	AggregateDistinct = "distinct"
)

var quantitativeAggregates = map[string]bool{
	AggregateMean:     true,
	AggregateSum:      true,
	AggregateMedian:   true,
	AggregateMin:      true,
	AggregateMax:      true,
	AggregateVariance: true,
	AggregateStdev:    true,
}

// AllowsAggregate reports whether the aggregation op can be applied to a field of type t.
// Counting is meaningful for every type; the numeric summaries need a quantitative field.
func (t FieldType) AllowsAggregate(op string) bool {
	if !t.Valid() {
		return false
	}
	switch op {
	case AggregateCount, AggregateDistinct:
		return true
	}
	return t == TypeQuantitative && quantitativeAggregates[op]
}

var scalesByType = map[FieldType]map[string]bool{
	TypeQuantitative: {"linear": true, "log": true, "sqrt": true, "pow": true, "symlog": true},
	TypeTemporal:     {"time": true, "utc": true},
	TypeNominal:      {"ordinal": true, "point": true, "band": true},
	TypeOrdinal:      {"ordinal": true, "point": true, "band": true},
}

// AllowsScale reports whether the scale type can be applied to a field of type t.
func (t FieldType) AllowsScale(scale string) bool {
	return scalesByType[t][scale]
}

// Aggregates lists the aggregation ops valid for t, in display order.
func (t FieldType) Aggregates() []string {
	all := []string{
		AggregateCount, AggregateDistinct, AggregateMean, AggregateSum, AggregateMedian,
		AggregateMin, AggregateMax, AggregateVariance, AggregateStdev,
	}
	out := make([]string, 0, len(all))
	for _, op := range all {
		if t.AllowsAggregate(op) {
			out = append(out, op)
		}
	}
	return out
}
