package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Bifrost banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	// Rainbow bridge, red to violet.
	lines := []struct{ text, color string }{
		{"  ____  _  __                _   ", "#f87171"},
		{" | __ )(_)/ _|_ __ ___  ___| |_ ", "#fb923c"},
		{" |  _ \\| | |_| '__/ _ \\/ __| __|", "#facc15"},
		{" | |_) | |  _| | | (_) \\__ \\ |_ ", "#4ade80"},
		{" |____/|_|_| |_|  \\___/|___/\\__|", "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Styled colors s with a hex color when the terminal supports it.
func Styled(s, hex string) string {
	return termenv.String(s).Foreground(termenv.ColorProfile().Color(hex)).String()
}
