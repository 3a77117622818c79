// Package suggest builds the charts a host offers for the columns the user picked.
//
// Suggestions are regenerated wholesale whenever the selection changes; they are
// never patched.
package suggest

import (
	"log/slog"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
)

// DefaultLimit caps the number of suggestions offered at once.
const DefaultLimit = 6

// Engine turns a column selection into suggested specs.
type Engine struct {
	limit  int
	logger *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLimit sets the maximum number of suggestions.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{limit: DefaultLimit, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type buckets struct {
	quantitative []domain.FieldSpec
	temporal     []domain.FieldSpec
	categorical  []domain.FieldSpec
}

func partition(columns []domain.FieldSpec, selected []string) buckets {
	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}
	var b buckets
	for _, col := range columns {
		if !want[col.Field] || !col.Type.Valid() {
			continue
		}
		switch {
		case col.Type == domain.TypeQuantitative:
			b.quantitative = append(b.quantitative, col)
		case col.Type == domain.TypeTemporal:
			b.temporal = append(b.temporal, col)
		default:
			b.categorical = append(b.categorical, col)
		}
	}
	return b
}

// Suggest returns renderable specs for the selected columns, in columns order.
// A non-empty kind keeps only charts of that mark, falling back to forcing the
// mark onto the candidates when none match.
func (e *Engine) Suggest(columns []domain.FieldSpec, selected []string, kind string) []domain.GraphSpec {
	b := partition(columns, selected)
	candidates := e.candidates(b)

	if kind != "" {
		mark := domain.Mark(kind)
		if !mark.Known() {
			e.logger.Warn("Unknown chart kind requested, ignoring it", "kind", kind)
		} else {
			candidates = restrict(candidates, mark)
		}
	}

	out := make([]domain.GraphSpec, 0, e.limit)
	for _, spec := range candidates {
		if len(out) == e.limit {
			break
		}
		if !domain.IsRenderable(spec) || domain.Validate(spec) != nil || contains(out, spec) {
			continue
		}
		out = append(out, spec)
	}
	e.logger.Debug("Suggestions built", "selected", len(selected), "count", len(out))
	return out
}

func (e *Engine) candidates(b buckets) []domain.GraphSpec {
	var out []domain.GraphSpec
	add := func(mark domain.Mark, bind ...binding) {
		spec := domain.SetMark(domain.GraphSpec{}, mark)
		for _, bd := range bind {
			spec = domain.SetEncoding(spec, bd.channel, bd.field)
			if bd.aggregate != "" {
				spec = domain.SetAggregation(spec, bd.channel, bd.aggregate)
			}
		}
		out = append(out, spec)
	}

	for _, t := range b.temporal {
		for _, q := range b.quantitative {
			add(domain.MarkLine, on(domain.ChannelX, t), on(domain.ChannelY, q))
			add(domain.MarkArea, on(domain.ChannelX, t), on(domain.ChannelY, q))
		}
	}
	for _, c := range b.categorical {
		for _, q := range b.quantitative {
			add(domain.MarkBar, on(domain.ChannelX, c), agg(domain.ChannelY, q, domain.AggregateMean))
			add(domain.MarkArc, agg(domain.ChannelTheta, q, domain.AggregateSum), on(domain.ChannelColor, c))
		}
	}
	for i, q1 := range b.quantitative {
		for _, q2 := range b.quantitative[i+1:] {
			add(domain.MarkPoint, on(domain.ChannelX, q1), on(domain.ChannelY, q2))
		}
	}
	for i, c1 := range b.categorical {
		for _, c2 := range b.categorical[i+1:] {
			add(domain.MarkRect, on(domain.ChannelX, c1), on(domain.ChannelY, c2), agg(domain.ChannelColor, c1, domain.AggregateCount))
		}
	}
	for _, c := range b.categorical {
		add(domain.MarkBar, on(domain.ChannelX, c), agg(domain.ChannelY, c, domain.AggregateCount))
	}
	for _, t := range b.temporal {
		add(domain.MarkBar, on(domain.ChannelX, t), agg(domain.ChannelY, t, domain.AggregateCount))
	}
	for _, q := range b.quantitative {
		add(domain.MarkTick, on(domain.ChannelX, q))
	}
	return out
}

type binding struct {
	channel   string
	field     domain.FieldSpec
	aggregate string
}

func on(ch string, f domain.FieldSpec) binding { return binding{channel: ch, field: f} }

func agg(ch string, f domain.FieldSpec, op string) binding {
	return binding{channel: ch, field: f, aggregate: op}
}

// restrict keeps candidates of mark. When none exist, every candidate is re-marked,
// which drops the channels mark does not allow.
func restrict(candidates []domain.GraphSpec, mark domain.Mark) []domain.GraphSpec {
	var same []domain.GraphSpec
	for _, c := range candidates {
		if c.Mark == mark {
			same = append(same, c)
		}
	}
	if len(same) > 0 {
		return same
	}
	forced := make([]domain.GraphSpec, 0, len(candidates))
	for _, c := range candidates {
		forced = append(forced, domain.SetMark(c, mark))
	}
	return forced
}

func contains(specs []domain.GraphSpec, spec domain.GraphSpec) bool {
	for _, s := range specs {
		if s.Equal(spec) {
			return true
		}
	}
	return false
}
