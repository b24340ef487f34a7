package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anpr-watch/internal/alert"
	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/tracker"
	"anpr-watch/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

const recentConfirmations = 100

// RegistryWriter receives confirmed plates in registration mode.
type RegistryWriter interface {
	Append(plate string) error
}

// RegistryLookup answers membership in alert mode.
type RegistryLookup interface {
	Contains(plate string) bool
	Plates() []string
	Len() int
}

// Recorder persists or forwards confirmations. Failures are logged only.
type Recorder interface {
	Record(ctx context.Context, c anpr.Confirmation) error
}

// DeliveryReporter is a Recorder that exposes forwarding counters in Status.
type DeliveryReporter interface {
	Name() string
	Stats() anpr.DeliveryStats
}

type Options struct {
	Mode       anpr.Mode
	Tracker    tracker.Config
	Normalizer *utils.Normalizer
	Writer     RegistryWriter
	Registry   RegistryLookup
	Sink       alert.Sink
	Clip       string
	Recorders  []Recorder
	Now        func() time.Time
}

// Session owns all per-process plate state: the history window, the alert
// intensity and the registry handle. ProcessFrame is the only writer and is
// expected to be called from a single loop, one frame at a time; the mutex
// only gives status readers a consistent view.
type Session struct {
	mode       anpr.Mode
	normalizer *utils.Normalizer
	writer     RegistryWriter
	registry   RegistryLookup
	sink       alert.Sink
	clip       string
	recorders  []Recorder
	now        func() time.Time
	log        zerolog.Logger

	mu     sync.RWMutex
	window *tracker.Window
	decay  alert.Decay
	frames uint64
	stats  Stats
	recent []anpr.Confirmation
}

type Stats struct {
	Observations   uint64 `json:"observations"`
	Rejected       uint64 `json:"rejected"`
	Confirmations  uint64 `json:"confirmations"`
	Alerts         uint64 `json:"alerts"`
	SkippedFrames  uint64 `json:"skipped_frames"`
	RegistryErrors uint64 `json:"registry_errors"`
	SinkErrors     uint64 `json:"sink_errors"`
}

type Status struct {
	Mode         anpr.Mode     `json:"mode"`
	Frames       uint64        `json:"frames"`
	Intensity    float64       `json:"intensity"`
	Window       tracker.Stats `json:"window"`
	RegistrySize int           `json:"registry_size,omitempty"`
	Stats
	Deliveries map[string]anpr.DeliveryStats `json:"deliveries,omitempty"`
}

func NewSession(opts Options, log zerolog.Logger) (*Session, error) {
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, opts.Mode)
	}
	if err := opts.Tracker.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	switch opts.Mode {
	case anpr.ModeRegister:
		if opts.Writer == nil {
			return nil, fmt.Errorf("%w: registration mode needs a registry writer", ErrInvalidInput)
		}
	case anpr.ModeAlert:
		if opts.Registry == nil {
			return nil, fmt.Errorf("%w: alert mode needs a loaded registry", ErrInvalidInput)
		}
	}
	if opts.Normalizer == nil {
		opts.Normalizer = utils.NewNormalizer(utils.DefaultPlateLengths, utils.DefaultSubstitutions)
	}
	if opts.Sink == nil {
		opts.Sink = alert.NopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		mode:       opts.Mode,
		normalizer: opts.Normalizer,
		writer:     opts.Writer,
		registry:   opts.Registry,
		sink:       opts.Sink,
		clip:       opts.Clip,
		recorders:  opts.Recorders,
		now:        opts.Now,
		log:        log.With().Str("mode", string(opts.Mode)).Logger(),
		window:     tracker.New(opts.Tracker),
	}, nil
}

// ProcessFrame runs one frame through normalization, the history window,
// the registry policy and the alert decay. The decay tick and the window's
// frame counter advance even when the engine failed for this frame.
func (s *Session) ProcessFrame(ctx context.Context, in anpr.FrameInput) anpr.FrameOutcome {
	s.mu.Lock()
	out := s.processLocked(in)
	s.mu.Unlock()

	if out.Alert {
		if err := s.sink.PlayOnce(ctx, s.clip); err != nil {
			s.mu.Lock()
			s.stats.SinkErrors++
			s.mu.Unlock()
			s.log.Warn().Err(err).Str("clip", s.clip).Msg("failed to play alert clip")
		}
	}

	for _, c := range out.Confirmations {
		for _, r := range s.recorders {
			if err := r.Record(ctx, c); err != nil {
				s.log.Warn().
					Err(err).
					Str("plate", c.Plate).
					Str("confirmation_id", c.ID.String()).
					Msg("failed to record confirmation")
			}
		}
	}

	return out
}

func (s *Session) processLocked(in anpr.FrameInput) anpr.FrameOutcome {
	s.frames++
	out := anpr.FrameOutcome{Seq: in.Seq}

	if in.Err != nil {
		s.stats.SkippedFrames++
		out.Skipped = true
		s.log.Warn().Err(in.Err).Uint64("seq", in.Seq).Msg("recognition failed, skipping frame")
	} else {
		triggered := false
		for _, obs := range in.Observations {
			s.stats.Observations++
			plate, ok := s.normalizer.Normalize(obs.RawText)
			if !ok {
				s.stats.Rejected++
				continue
			}
			if !obs.NoBox {
				out.Annotations = append(out.Annotations, anpr.NewAnnotation(plate, obs.Polygon))
			}

			res := s.window.Ingest(plate)
			if !res.Confirmed {
				continue
			}

			c := s.confirm(plate, obs.Polygon, in.Seq)
			if c.Hit {
				triggered = true
			}
			out.Confirmations = append(out.Confirmations, c)
		}
		if triggered {
			s.decay.Trigger()
			s.stats.Alerts++
			out.Alert = true
		}
	}

	out.Opacity = s.decay.Tick()
	out.Truncated = s.window.Advance()
	if out.Truncated {
		s.log.Debug().Uint64("seq", in.Seq).Int("entries", s.window.Stats().Entries).Msg("history window truncated")
	}
	return out
}

func (s *Session) confirm(plate string, poly anpr.Polygon, seq uint64) anpr.Confirmation {
	c := anpr.Confirmation{
		ID:      uuid.New(),
		Plate:   plate,
		Mode:    s.mode,
		Frame:   seq,
		Polygon: poly,
		At:      s.now(),
	}
	s.stats.Confirmations++

	switch s.mode {
	case anpr.ModeRegister:
		if err := s.writer.Append(plate); err != nil {
			s.stats.RegistryErrors++
			s.log.Error().Err(err).Str("plate", plate).Msg("failed to append plate to registry")
		} else {
			c.Registered = true
			s.log.Info().Str("plate", plate).Uint64("seq", seq).Msg("plate registered")
		}
	case anpr.ModeAlert:
		c.Hit = s.registry.Contains(plate)
		if c.Hit {
			s.log.Warn().Str("plate", plate).Uint64("seq", seq).Msg("registered plate detected")
		} else {
			s.log.Debug().Str("plate", plate).Msg("plate confirmed, not in registry")
		}
	}

	s.recent = append(s.recent, c)
	if len(s.recent) > recentConfirmations {
		s.recent = s.recent[len(s.recent)-recentConfirmations:]
	}
	return c
}

func (s *Session) Mode() anpr.Mode { return s.mode }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Mode:      s.mode,
		Frames:    s.frames,
		Intensity: s.decay.Intensity(),
		Window:    s.window.Stats(),
		Stats:     s.stats,
	}
	if s.registry != nil {
		st.RegistrySize = s.registry.Len()
	}
	for _, r := range s.recorders {
		if d, ok := r.(DeliveryReporter); ok {
			if st.Deliveries == nil {
				st.Deliveries = make(map[string]anpr.DeliveryStats)
			}
			st.Deliveries[d.Name()] = d.Stats()
		}
	}
	return st
}

// RecentConfirmations returns up to limit confirmations, newest first.
func (s *Session) RecentConfirmations(plate string, hitsOnly bool, limit int) []anpr.Confirmation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]anpr.Confirmation, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.recent[i]
		if plate != "" && c.Plate != plate {
			continue
		}
		if hitsOnly && !c.Hit {
			continue
		}
		out = append(out, c)
	}
	return out
}

// RegistryPlates lists the loaded registry in alert mode.
func (s *Session) RegistryPlates() ([]string, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: no registry loaded in %s mode", ErrNotFound, s.mode)
	}
	return s.registry.Plates(), nil
}
