package domain

// Mark is the chart kind of a specification.
type Mark string

const (
	MarkBar    Mark = "bar"
	MarkLine   Mark = "line"
	MarkArea   Mark = "area"
	MarkPoint  Mark = "point"
	MarkCircle Mark = "circle"
	MarkSquare Mark = "square"
	MarkTick   Mark = "tick"
	MarkRect   Mark = "rect"
	MarkText   Mark = "text"
	MarkArc    Mark = "arc"
)

// Visual encoding channels.
const (
	ChannelX       = "x"
	ChannelY       = "y"
	ChannelColor   = "color"
	ChannelOpacity = "opacity"
	ChannelSize    = "size"
	ChannelShape   = "shape"
	ChannelTooltip = "tooltip"
	ChannelDetail  = "detail"
	ChannelText    = "text"
	ChannelTheta   = "theta"
	ChannelRadius  = "radius"
)

type markRule struct {
	required []string
	optional []string
}

var cartesianOptional = []string{ChannelColor, ChannelOpacity, ChannelSize, ChannelTooltip, ChannelDetail}

var markRules = map[Mark]markRule{
	MarkBar:    {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkLine:   {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkArea:   {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkPoint:  {required: []string{ChannelX, ChannelY}, optional: append([]string{ChannelShape}, cartesianOptional...)},
	MarkCircle: {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkSquare: {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkRect:   {required: []string{ChannelX, ChannelY}, optional: cartesianOptional},
	MarkTick:   {required: []string{ChannelX}, optional: append([]string{ChannelY}, cartesianOptional...)},
	MarkText:   {required: []string{ChannelX, ChannelY, ChannelText}, optional: cartesianOptional},
	MarkArc:    {required: []string{ChannelTheta}, optional: []string{ChannelColor, ChannelRadius, ChannelTooltip, ChannelDetail}},
}

// Known reports whether m is a supported mark.
func (m Mark) Known() bool {
	_, ok := markRules[m]
	return ok
}

// RequiredChannels returns the channels that must be bound for m to be drawable.
// An unknown or empty mark has no required set.
func (m Mark) RequiredChannels() []string {
	rule, ok := markRules[m]
	if !ok {
		return nil
	}
	return append([]string(nil), rule.required...)
}

// AllowsChannel reports whether ch may be bound under m.
// With no mark chosen yet every known channel is accepted.
func (m Mark) AllowsChannel(ch string) bool {
	if m == "" {
		return knownChannels[ch]
	}
	rule, ok := markRules[m]
	if !ok {
		return false
	}
	for _, c := range rule.required {
		if c == ch {
			return true
		}
	}
	for _, c := range rule.optional {
		if c == ch {
			return true
		}
	}
	return false
}

// Marks returns every supported mark in display order.
func Marks() []Mark {
	return []Mark{MarkBar, MarkLine, MarkArea, MarkPoint, MarkCircle, MarkSquare, MarkTick, MarkRect, MarkText, MarkArc}
}

var knownChannels = map[string]bool{
	ChannelX: true, ChannelY: true, ChannelColor: true, ChannelOpacity: true,
	ChannelSize: true, ChannelShape: true, ChannelTooltip: true, ChannelDetail: true,
	ChannelText: true, ChannelTheta: true, ChannelRadius: true,
}
