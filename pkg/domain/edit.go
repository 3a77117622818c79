package domain

import (
	"errors"
	"fmt"
)

// The edit operations below are total: an edit that would break a type or
// modifier invariant returns the input spec unchanged instead of failing.
// Editing surfaces only offer valid choices, so a rejected edit is never
// surfaced to the user.

// SetMark changes the chart kind. Channels the new mark does not allow are dropped.
func SetMark(spec GraphSpec, mark Mark) GraphSpec {
	if mark != "" && !mark.Known() {
		return spec
	}
	next := spec.Clone()
	next.Mark = mark
	for ch := range next.Encoding {
		if !mark.AllowsChannel(ch) {
			delete(next.Encoding, ch)
		}
	}
	return next
}

// SetEncoding binds field to channel. Modifiers already on the channel survive
// only if they remain valid for the new field type.
func SetEncoding(spec GraphSpec, channel string, field FieldSpec) GraphSpec {
	if field.Field == "" || !field.Type.Valid() || !spec.Mark.AllowsChannel(channel) {
		return spec
	}
	next := spec.Clone()
	if next.Encoding == nil {
		next.Encoding = make(map[string]Encoding)
	}
	enc := Encoding{FieldSpec: field}
	if prev, ok := spec.Encoding[channel]; ok {
		if field.Type.AllowsAggregate(prev.Aggregate) {
			enc.Aggregate = prev.Aggregate
		}
		if field.Type.AllowsScale(prev.Scale) {
			enc.Scale = prev.Scale
		}
	}
	next.Encoding[channel] = enc
	return next
}

// RemoveEncoding unbinds channel. The result may no longer be renderable.
func RemoveEncoding(spec GraphSpec, channel string) GraphSpec {
	if _, ok := spec.Encoding[channel]; !ok {
		return spec
	}
	next := spec.Clone()
	delete(next.Encoding, channel)
	return next
}

// AddOrReplaceFilter attaches filter to its field, replacing any filter already
// on that field in place.
func AddOrReplaceFilter(spec GraphSpec, filter Filter) GraphSpec {
	if !filter.Valid() {
		return spec
	}
	next := spec.Clone()
	f := filter.clone()
	for i := range next.Filters {
		if next.Filters[i].Field == f.Field {
			next.Filters[i] = f
			return next
		}
	}
	next.Filters = append(next.Filters, f)
	return next
}

// RemoveFilter drops the filter on field, if any.
func RemoveFilter(spec GraphSpec, field string) GraphSpec {
	idx := -1
	for i, f := range spec.Filters {
		if f.Field == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return spec
	}
	next := spec.Clone()
	next.Filters = append(next.Filters[:idx], next.Filters[idx+1:]...)
	if len(next.Filters) == 0 {
		next.Filters = nil
	}
	return next
}

// SetAggregation sets the aggregation op on channel. An empty op clears it.
func SetAggregation(spec GraphSpec, channel, op string) GraphSpec {
	enc, ok := spec.Encoding[channel]
	if !ok || enc.Aggregate == op {
		return spec
	}
	if op != "" && !enc.Type.AllowsAggregate(op) {
		return spec
	}
	next := spec.Clone()
	enc.Aggregate = op
	next.Encoding[channel] = enc
	return next
}

// SetScale sets the scale type on channel. An empty scale clears it.
func SetScale(spec GraphSpec, channel, scale string) GraphSpec {
	enc, ok := spec.Encoding[channel]
	if !ok || enc.Scale == scale {
		return spec
	}
	if scale != "" && !enc.Type.AllowsScale(scale) {
		return spec
	}
	next := spec.Clone()
	enc.Scale = scale
	next.Encoding[channel] = enc
	return next
}

// IsRenderable reports whether every channel required by the mark is bound.
// A spec without a mark is never renderable.
func IsRenderable(spec GraphSpec) bool {
	if !spec.Mark.Known() {
		return false
	}
	for _, ch := range spec.Mark.RequiredChannels() {
		if _, ok := spec.Encoding[ch]; !ok {
			return false
		}
	}
	return true
}

// Validate checks a spec received from outside the edit operations (host
// suggestions, decoded payloads). Missing required channels are not an error.
func Validate(spec GraphSpec) error {
	var errs []error
	if spec.Mark != "" && !spec.Mark.Known() {
		errs = append(errs, fmt.Errorf("unknown mark %q", spec.Mark))
	}
	for _, ch := range spec.Channels() {
		enc := spec.Encoding[ch]
		if !spec.Mark.AllowsChannel(ch) {
			errs = append(errs, fmt.Errorf("channel %q not allowed for mark %q", ch, spec.Mark))
		}
		if enc.Field == "" || !enc.Type.Valid() {
			errs = append(errs, fmt.Errorf("channel %q: invalid field %q of type %q", ch, enc.Field, enc.Type))
			continue
		}
		if enc.Aggregate != "" && !enc.Type.AllowsAggregate(enc.Aggregate) {
			errs = append(errs, fmt.Errorf("channel %q: aggregate %q not valid for %s field", ch, enc.Aggregate, enc.Type))
		}
		if enc.Scale != "" && !enc.Type.AllowsScale(enc.Scale) {
			errs = append(errs, fmt.Errorf("channel %q: scale %q not valid for %s field", ch, enc.Scale, enc.Type))
		}
	}
	seen := make(map[string]bool, len(spec.Filters))
	for _, f := range spec.Filters {
		if !f.Valid() {
			errs = append(errs, fmt.Errorf("malformed filter on %q", f.Field))
		}
		if seen[f.Field] {
			errs = append(errs, fmt.Errorf("duplicate filter on %q", f.Field))
		}
		seen[f.Field] = true
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSpec, errors.Join(errs...))
}
