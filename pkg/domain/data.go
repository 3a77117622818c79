package domain

import "encoding/json"

// GraphData is the dataset exposed to the renderer. The host publishes the bare
// rows on graph_data; the widget wraps them under "data".
type GraphData struct {
	Data json.RawMessage `json:"data"`
}

// IsEmpty reports whether no rows have been published yet.
func (d GraphData) IsEmpty() bool {
	return len(d.Data) == 0 || string(d.Data) == "null"
}
