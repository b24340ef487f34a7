// Package pipeline drives the frame loop: pull a frame, recognize it, run it
// through the session, render the outcome. The session is always fed by a
// single goroutine in frame order, so its tick clock advances exactly once
// per frame whatever the recognition latency.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/engine"
)

// FrameProcessor is the session side of the loop.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, in anpr.FrameInput) anpr.FrameOutcome
}

type Config struct {
	// Workers > 0 runs recognition on that many goroutines while a single
	// consumer processes results in frame order.
	Workers int
	// Queue bounds the number of frames in flight in pipelined mode.
	Queue int
}

type Runner struct {
	cfg        Config
	source     Source
	recognizer engine.Recognizer
	session    FrameProcessor
	renderer   Renderer
	log        zerolog.Logger

	seq       uint64
	processed atomic.Uint64
}

func NewRunner(cfg Config, source Source, recognizer engine.Recognizer, session FrameProcessor, renderer Renderer, log zerolog.Logger) *Runner {
	if cfg.Queue <= 0 {
		cfg.Queue = 8
	}
	if renderer == nil {
		renderer = MultiRenderer{}
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		recognizer: recognizer,
		session:    session,
		renderer:   renderer,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Processed is the number of frames the session has seen.
func (r *Runner) Processed() uint64 {
	return r.processed.Load()
}

// Run loops until the source ends (nil) or fails, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Int("workers", r.cfg.Workers).Msg("frame loop started")
	var err error
	if r.cfg.Workers > 0 {
		err = r.runPipelined(ctx)
	} else {
		err = r.runSync(ctx)
	}
	r.log.Info().Uint64("frames", r.Processed()).Msg("frame loop stopped")
	return err
}

func (r *Runner) next(ctx context.Context) (engine.Frame, error) {
	f, err := r.source.Next(ctx)
	if err != nil {
		return f, err
	}
	r.seq++
	f.Seq = r.seq
	return f, nil
}

func (r *Runner) runSync(ctx context.Context) error {
	for {
		f, err := r.next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		obs, recErr := engine.Recognize(ctx, r.recognizer, f)
		r.consume(ctx, f, anpr.FrameInput{Seq: f.Seq, Observations: obs, Err: recErr})
	}
}

func (r *Runner) consume(ctx context.Context, f engine.Frame, in anpr.FrameInput) {
	out := r.session.ProcessFrame(ctx, in)
	r.processed.Add(1)
	if err := r.renderer.Render(ctx, f, out); err != nil {
		r.log.Warn().Err(err).Uint64("seq", f.Seq).Msg("render failed")
	}
}

type recognized struct {
	frame engine.Frame
	input anpr.FrameInput
}

func (r *Runner) runPipelined(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan engine.Frame, r.cfg.Queue)
	results := make(chan recognized, r.cfg.Queue)

	g.Go(func() error {
		defer close(jobs)
		for {
			f, err := r.next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for f := range jobs {
				obs, err := engine.Recognize(gctx, r.recognizer, f)
				select {
				case results <- recognized{frame: f, input: anpr.FrameInput{Seq: f.Seq, Observations: obs, Err: err}}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		pending := make(map[uint64]recognized)
		want := uint64(1)
		for res := range results {
			pending[res.frame.Seq] = res
			for {
				next, ok := pending[want]
				if !ok {
					break
				}
				delete(pending, want)
				r.consume(gctx, next.frame, next.input)
				want++
			}
		}
		return nil
	})

	return g.Wait()
}
