package domain

// Flags are host-set onboarding prerequisites. They are read-only to the widget.
type Flags map[string]bool

const (
	FlagColumnsProvided = "columns_provided"
	FlagKindProvided    = "kind_provided"
)

// Screen names an onboarding step.
type Screen string

const (
	ScreenColumnChooser Screen = "column_chooser"
	ScreenChartChooser  Screen = "chart_chooser"
	ScreenVisualize     Screen = "visualize"
)

// InitialScreen picks the first step the widget shows for the given flags.
func InitialScreen(flags Flags) Screen {
	switch {
	case !flags[FlagColumnsProvided]:
		return ScreenColumnChooser
	case !flags[FlagKindProvided]:
		return ScreenChartChooser
	default:
		return ScreenVisualize
	}
}

// ClampSelection keeps a suggestion index inside [-1, n-1].
// An empty list always yields -1.
func ClampSelection(index, n int) int {
	if n <= 0 {
		return -1
	}
	if index < 0 {
		return 0
	}
	if index > n-1 {
		return n - 1
	}
	return index
}
