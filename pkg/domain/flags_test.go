package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialScreen(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  Screen
	}{
		{name: "Nothing Provided", flags: Flags{FlagColumnsProvided: false, FlagKindProvided: false}, want: ScreenColumnChooser},
		{name: "Nil Flags", flags: nil, want: ScreenColumnChooser},
		{name: "Columns Only", flags: Flags{FlagColumnsProvided: true}, want: ScreenChartChooser},
		{name: "Kind Without Columns", flags: Flags{FlagKindProvided: true}, want: ScreenColumnChooser},
		{name: "Everything", flags: Flags{FlagColumnsProvided: true, FlagKindProvided: true}, want: ScreenVisualize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InitialScreen(tt.flags))
		})
	}
}

func TestClampSelection(t *testing.T) {
	assert.Equal(t, -1, ClampSelection(0, 0))
	assert.Equal(t, -1, ClampSelection(5, 0))
	assert.Equal(t, 0, ClampSelection(-1, 3))
	assert.Equal(t, 2, ClampSelection(3, 3))
	assert.Equal(t, 1, ClampSelection(1, 3))
}
