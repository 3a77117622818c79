package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/bifrost/pkg/domain"
)

// ErrUnsupported is returned for specs a Mermaid xychart cannot draw.
var ErrUnsupported = errors.New("chart not supported by mermaid xychart")

// GenerateXYChart produces a Mermaid xychart-beta block for a bar, line or area
// spec over data. Rows are grouped by the x field in first-seen order and the
// y field is reduced with its aggregate (sum when none is set).
func GenerateXYChart(spec domain.GraphSpec, data domain.GraphData) (string, error) {
	series := "bar"
	switch spec.Mark {
	case domain.MarkBar:
	case domain.MarkLine, domain.MarkArea:
		series = "line"
	default:
		return "", fmt.Errorf("%w: mark %q", ErrUnsupported, spec.Mark)
	}
	x, okX := spec.Encoding[domain.ChannelX]
	y, okY := spec.Encoding[domain.ChannelY]
	if !okX || !okY {
		return "", fmt.Errorf("%w: x and y must be bound", ErrUnsupported)
	}

	var rows []map[string]any
	if !data.IsEmpty() {
		if err := json.Unmarshal(data.Data, &rows); err != nil {
			return "", fmt.Errorf("decode rows: %w", err)
		}
	}

	var labels []string
	groups := make(map[string][]any)
	for _, row := range rows {
		label := fmt.Sprint(row[x.Field])
		if _, seen := groups[label]; !seen {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], row[y.Field])
	}

	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = formatValue(reduce(y.Aggregate, groups[label]))
	}

	yTitle := y.Field
	if y.Aggregate != "" {
		yTitle = y.Aggregate + "(" + y.Field + ")"
	}
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = quote(l)
	}

	var sb strings.Builder
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title %s\n", quote(spec.Describe())))
	sb.WriteString(fmt.Sprintf("    x-axis %s [%s]\n", quote(x.Field), strings.Join(quoted, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis %s\n", quote(yTitle)))
	sb.WriteString(fmt.Sprintf("    %s [%s]\n", series, strings.Join(values, ", ")))
	return sb.String(), nil
}

// reduce applies op to the raw cells of one group. Cells that are not numbers
// are skipped, except by count and distinct.
func reduce(op string, cells []any) float64 {
	switch op {
	case domain.AggregateCount:
		return float64(len(cells))
	case domain.AggregateDistinct:
		seen := make(map[string]bool)
		for _, c := range cells {
			seen[fmt.Sprint(c)] = true
		}
		return float64(len(seen))
	}

	var nums []float64
	for _, c := range cells {
		if v, ok := number(c); ok {
			nums = append(nums, v)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range nums {
		sum += v
	}
	switch op {
	case domain.AggregateMean:
		return sum / float64(len(nums))
	case domain.AggregateMin, domain.AggregateMax:
		sort.Float64s(nums)
		if op == domain.AggregateMin {
			return nums[0]
		}
		return nums[len(nums)-1]
	case domain.AggregateMedian:
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 0 {
			return (nums[mid-1] + nums[mid]) / 2
		}
		return nums[mid]
	}
	return sum
}

func number(c any) (float64, bool) {
	switch v := c.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quote wraps s for a Mermaid label. Double quotes would end the label.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}
