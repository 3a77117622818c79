package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/bifrost/internal/presentation/graph"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// ChartRenderer implements ports.Renderer for terminals: a styled summary of
// the graph spec followed by a Mermaid xychart of the data when one can be drawn.
type ChartRenderer struct {
	out    io.Writer
	render func(string) (string, error)
}

// NewChartRenderer creates a renderer writing to out.
func NewChartRenderer(out io.Writer) *ChartRenderer {
	return &ChartRenderer{out: out, render: NewRenderer()}
}

// Markdown builds the document Render prints.
func Markdown(spec domain.GraphSpec, data domain.GraphData) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", spec.Describe())
	for _, f := range spec.Filters {
		fmt.Fprintf(&sb, "- filter: `%s`\n", f.String())
	}
	if len(spec.Filters) > 0 {
		sb.WriteString("\n")
	}

	chart, err := graph.GenerateXYChart(spec, data)
	switch {
	case errors.Is(err, graph.ErrUnsupported):
		fmt.Fprintf(&sb, "_No terminal preview for %s charts._\n", spec.Mark)
	case err != nil:
		return "", err
	default:
		sb.WriteString("```mermaid\n")
		sb.WriteString(chart)
		sb.WriteString("```\n")
	}
	return sb.String(), nil
}

// Render prints spec over data. Data other than domain.GraphData is drawn as empty.
func (r *ChartRenderer) Render(ctx context.Context, spec domain.GraphSpec, data any) error {
	rows, _ := data.(domain.GraphData)
	md, err := Markdown(spec, rows)
	if err != nil {
		return err
	}
	styled, err := r.render(md)
	if err != nil {
		return fmt.Errorf("style markdown: %w", err)
	}
	_, err = io.WriteString(r.out, styled)
	return err
}
