package ports

import (
	"context"

	"github.com/aretw0/bifrost/pkg/domain"
)

// Renderer draws a finished spec. It is treated as an opaque pure function:
// the widget never inspects what it produces.
type Renderer interface {
	Render(ctx context.Context, spec domain.GraphSpec, data any) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, spec domain.GraphSpec, data any) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, spec domain.GraphSpec, data any) error {
	return f(ctx, spec, data)
}
