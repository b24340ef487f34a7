package alert

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Sink plays an alert clip once. Implementations are fire-and-forget: they
// must not wait for playback to finish.
type Sink interface {
	PlayOnce(ctx context.Context, clipID string) error
}

// NopSink drops every request.
type NopSink struct{}

func (NopSink) PlayOnce(context.Context, string) error { return nil }

// LogSink only logs the request; used when no player is configured.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) PlayOnce(_ context.Context, clipID string) error {
	s.Log.Info().Str("clip", clipID).Msg("alert clip requested")
	return nil
}

// MultiSink fans a request out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) PlayOnce(ctx context.Context, clipID string) error {
	var errs []error
	for _, s := range m {
		if err := s.PlayOnce(ctx, clipID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
