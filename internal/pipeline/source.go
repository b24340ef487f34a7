package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"anpr-watch/internal/engine"
)

var ErrSourceClosed = errors.New("frame source closed")

// Source yields frames in capture order. Next returns io.EOF when the
// stream ends.
type Source interface {
	Next(ctx context.Context) (engine.Frame, error)
}

// ReplaySource reads recorded engine output, one JSON document per line,
// and yields each line as a PixelFormatRecorded frame.
type ReplaySource struct {
	Width    int
	Height   int
	Interval time.Duration

	f    *os.File
	sc   *bufio.Scanner
	last time.Time
}

func OpenReplay(path string, width, height int, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ReplaySource{Width: width, Height: height, Interval: interval, f: f, sc: sc}, nil
}

func (r *ReplaySource) Next(ctx context.Context) (engine.Frame, error) {
	if err := r.pace(ctx); err != nil {
		return engine.Frame{}, err
	}
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		return engine.Frame{
			Format: engine.PixelFormatRecorded,
			Data:   data,
			Width:  r.Width,
			Height: r.Height,
			At:     time.Now(),
		}, nil
	}
	if err := r.sc.Err(); err != nil {
		return engine.Frame{}, fmt.Errorf("read replay: %w", err)
	}
	return engine.Frame{}, io.EOF
}

func (r *ReplaySource) pace(ctx context.Context) error {
	if r.Interval <= 0 {
		return ctx.Err()
	}
	if !r.last.IsZero() {
		if wait := r.Interval - time.Since(r.last); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	r.last = time.Now()
	return nil
}

func (r *ReplaySource) Close() error {
	return r.f.Close()
}

// ChannelSource is fed by Push, e.g. from the HTTP ingest endpoint.
type ChannelSource struct {
	frames    chan engine.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelSource(queue int) *ChannelSource {
	if queue <= 0 {
		queue = 1
	}
	return &ChannelSource{
		frames: make(chan engine.Frame, queue),
		done:   make(chan struct{}),
	}
}

// Push enqueues a frame, waiting for room until ctx is done.
func (c *ChannelSource) Push(ctx context.Context, f engine.Frame) error {
	select {
	case <-c.done:
		return ErrSourceClosed
	default:
	}
	select {
	case c.frames <- f:
		return nil
	case <-c.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ChannelSource) Next(ctx context.Context) (engine.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return engine.Frame{}, ctx.Err()
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
			return engine.Frame{}, io.EOF
		}
	}
}

// Close stops accepting frames; queued frames are still delivered.
func (c *ChannelSource) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *ChannelSource) Pending() int {
	return len(c.frames)
}
