package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/engine"
)

// Renderer consumes the per-frame outcome: overlay compositing, display,
// encoding. Real video output lives outside this module.
type Renderer interface {
	Render(ctx context.Context, f engine.Frame, out anpr.FrameOutcome) error
}

// LogRenderer writes annotations and alert state to the log.
type LogRenderer struct {
	Log zerolog.Logger
}

func (r LogRenderer) Render(_ context.Context, _ engine.Frame, out anpr.FrameOutcome) error {
	for _, a := range out.Annotations {
		r.Log.Debug().
			Uint64("seq", out.Seq).
			Str("plate", a.Plate).
			Float64("x0", a.BoxMin.X).
			Float64("y0", a.BoxMin.Y).
			Float64("x2", a.BoxMax.X).
			Float64("y2", a.BoxMax.Y).
			Msg("plate")
	}
	if out.Alert {
		r.Log.Info().Uint64("seq", out.Seq).Float64("opacity", out.Opacity).Msg("alert overlay raised")
	}
	return nil
}

// JSONRenderer writes one JSON outcome per frame.
type JSONRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(_ context.Context, _ engine.Frame, out anpr.FrameOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(out)
}

// MultiRenderer calls every renderer in order and stops at the first error.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(ctx context.Context, f engine.Frame, out anpr.FrameOutcome) error {
	for _, r := range m {
		if err := r.Render(ctx, f, out); err != nil {
			return err
		}
	}
	return nil
}
