package domain

// Remote state keys shared with the host. Names are part of the host contract.
const (
	KeyFlags           = "flags"
	KeySuggestedGraphs = "suggested_graphs"
	KeyGraphData       = "graph_data"
	KeyGraphSpec       = "graph_spec"
	KeySpecHistory     = "spec_history"
	KeyColumns         = "columns"
	KeySelectedColumns = "selected_columns"
	KeyGraphKind       = "graph_kind"
)

// ReadOnlyKeys are written by the host only.
var ReadOnlyKeys = map[string]bool{
	KeyFlags:           true,
	KeySuggestedGraphs: true,
	KeyGraphData:       true,
	KeyColumns:         true,
}
