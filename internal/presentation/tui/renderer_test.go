package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barChart() domain.GraphSpec {
	s := domain.SetMark(domain.GraphSpec{}, domain.MarkBar)
	s = domain.SetEncoding(s, domain.ChannelX, domain.FieldSpec{Field: "category", Type: domain.TypeNominal})
	return domain.SetEncoding(s, domain.ChannelY, domain.FieldSpec{Field: "price", Type: domain.TypeQuantitative})
}

func TestMarkdown(t *testing.T) {
	data := domain.GraphData{Data: json.RawMessage(`[{"category":"a","price":2}]`)}
	md, err := Markdown(barChart(), data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "## bar chart: x=category, y=price\n"))
	assert.Contains(t, md, "```mermaid\nxychart-beta\n")
	assert.Contains(t, md, "bar [2]")

	arc := domain.SetMark(domain.GraphSpec{}, domain.MarkArc)
	md, err = Markdown(arc, data)
	require.NoError(t, err)
	assert.Contains(t, md, "No terminal preview for arc charts")

	_, err = Markdown(barChart(), domain.GraphData{Data: json.RawMessage(`"rows"`)})
	assert.Error(t, err)
}

func TestChartRenderer_Render(t *testing.T) {
	var out bytes.Buffer
	r := &ChartRenderer{out: &out, render: func(md string) (string, error) { return md, nil }}

	require.NoError(t, r.Render(context.Background(), barChart(), nil))
	assert.Contains(t, out.String(), "bar chart")
	assert.Contains(t, out.String(), `x-axis "category" []`)
}

func TestPrintBanner(t *testing.T) {
	var out bytes.Buffer
	PrintBanner(&out)
	assert.Contains(t, out.String(), "|____/")
}
