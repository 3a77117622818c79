package main

import (
	"encoding/json"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
)

// demoSeed is a small sales dataset with two columns already picked, so the
// widget opens on the chart chooser.
func demoSeed() []ports.Update {
	columns := []domain.FieldSpec{
		{Field: "region", Type: domain.TypeNominal},
		{Field: "month", Type: domain.TypeTemporal},
		{Field: "revenue", Type: domain.TypeQuantitative},
		{Field: "units", Type: domain.TypeQuantitative},
	}
	rows := []map[string]any{
		{"region": "north", "month": "2024-01", "revenue": 120, "units": 12},
		{"region": "south", "month": "2024-01", "revenue": 80, "units": 9},
		{"region": "north", "month": "2024-02", "revenue": 150, "units": 14},
		{"region": "east", "month": "2024-02", "revenue": 95, "units": 10},
		{"region": "south", "month": "2024-03", "revenue": 110, "units": 11},
		{"region": "east", "month": "2024-03", "revenue": 70, "units": 6},
	}
	return []ports.Update{
		encode(domain.KeyColumns, columns),
		encode(domain.KeyGraphData, rows),
		encode(domain.KeySelectedColumns, []string{"region", "revenue"}),
		encode(domain.KeyFlags, domain.Flags{domain.FlagColumnsProvided: true}),
	}
}

func encode(key string, v any) ports.Update {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return ports.Update{Key: key, Value: raw, Origin: "demo"}
}
