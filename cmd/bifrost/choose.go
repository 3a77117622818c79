package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/bifrost"
	"github.com/aretw0/bifrost/internal/presentation/tui"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/surface"
	"github.com/aretw0/bifrost/pkg/widget"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chooseCmd = &cobra.Command{
	Use:   "choose",
	Short: "Pick a suggested chart from the terminal",
	Long: `Opens the chart chooser of a widget. Use the arrow keys (or h/l) to browse the
suggestions, Enter to pick one and q to quit. Without --server a demo dataset is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("server")
		wait, _ := cmd.Flags().GetDuration("wait")

		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return errors.New("choose needs an interactive terminal")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		s, err := attach(ctx, cfg, server, logger, bifrost.WithRenderer(tui.NewChartRenderer(out)))
		if err != nil {
			return err
		}
		defer s.Close()

		if err := waitForSuggestions(ctx, s, wait); err != nil {
			return err
		}

		var router *surface.Router
		if err := s.Do(ctx, func(w *widget.Widget) { router = surface.NewRouter(w, nil) }); err != nil {
			return err
		}
		defer s.Do(context.Background(), func(*widget.Widget) { router.Close() })

		var screen domain.Screen
		_ = s.Do(ctx, func(*widget.Widget) { screen = router.Screen() })
		if screen != domain.ScreenChartChooser {
			return fmt.Errorf("widget %q is on the %s step", cfg.Widget.ID, screen)
		}

		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		chosen, err := runChooser(ctx, s, router, os.Stdin, out)
		_ = term.Restore(fd, oldState)
		fmt.Fprintln(out)
		if err != nil || !chosen {
			return err
		}

		return s.Do(ctx, func(w *widget.Widget) {
			if _, err := w.Display(ctx); err != nil {
				logger.Error("Render failed", "err", err)
			}
		})
	},
}

// waitForSuggestions gives the host a moment to deliver its first suggestions.
func waitForSuggestions(ctx context.Context, s *bifrost.Session, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		var n int
		if err := s.Do(ctx, func(w *widget.Widget) { n = len(w.Suggestions.Value()) }); err != nil {
			return err
		}
		if n > 0 || time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// runChooser feeds key presses to the chart chooser until a chart is picked
// or the user quits. It reports whether a chart was picked.
func runChooser(ctx context.Context, s *bifrost.Session, router *surface.Router, in io.Reader, out io.Writer) (bool, error) {
	draw := func() (domain.Screen, error) {
		var line string
		var screen domain.Screen
		err := s.Do(ctx, func(*widget.Widget) {
			screen = router.Screen()
			if c := router.Chart(); c != nil {
				line = chooserLine(c)
			}
		})
		if err == nil && line != "" {
			fmt.Fprintf(out, "\r\x1b[2K%s", line)
		}
		return screen, err
	}

	if _, err := draw(); err != nil {
		return false, err
	}
	buf := make([]byte, 16)
	for {
		n, err := in.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		keys, quit := parseKeys(buf[:n])
		for _, k := range keys {
			if err := s.Do(ctx, func(*widget.Widget) {
				if c := router.Chart(); c != nil {
					c.HandleKey(k)
				}
			}); err != nil {
				return false, err
			}
		}
		screen, err := draw()
		if err != nil {
			return false, err
		}
		switch {
		case screen == domain.ScreenVisualize:
			return true, nil
		case screen != domain.ScreenChartChooser, quit:
			return false, nil
		}
	}
}

// chooserLine renders the highlighted suggestion as one status line.
func chooserLine(c *surface.ChartChooser) string {
	suggestions := c.Suggestions()
	i := c.Index()
	if i < 0 {
		return tui.Styled("no suggestions yet (q to quit)", "#9ca3af")
	}
	return fmt.Sprintf("%s [%d/%d] %s %s",
		tui.Styled("<", "#818cf8"), i+1, len(suggestions),
		suggestions[i].Describe(),
		tui.Styled(">", "#818cf8"))
}

func init() {
	rootCmd.AddCommand(chooseCmd)
	chooseCmd.Flags().String("server", "", "Host URL (http://...); empty runs a local demo")
	chooseCmd.Flags().Duration("wait", 2*time.Second, "How long to wait for the first suggestions")
}
