// Package engine is the boundary to the external plate recognition engine.
// The engine itself is opaque; this package only describes how frames are
// handed to it and how its JSON output is decoded into observations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"anpr-watch/internal/domain/anpr"
)

var (
	ErrMalformedResult = errors.New("malformed recognition result")
	ErrUnsupported     = errors.New("unsupported pixel format")
)

type PixelFormat string

const (
	PixelFormatBGR24 PixelFormat = "bgr24"
	PixelFormatRGB24 PixelFormat = "rgb24"
	PixelFormatNV12  PixelFormat = "nv12"
	// PixelFormatRecorded marks a buffer that already holds the engine's JSON
	// output for the frame (replayed or pushed over HTTP).
	PixelFormatRecorded PixelFormat = "recorded"
)

// Frame is one video frame as handed to the engine.
type Frame struct {
	Seq    uint64
	Format PixelFormat
	Data   []byte
	Width  int
	Height int
	At     time.Time
}

// Result is the engine's answer for one frame.
type Result struct {
	NumPlates int
	JSON      []byte
}

// Recognizer is the recognition engine.
type Recognizer interface {
	Process(ctx context.Context, format PixelFormat, data []byte, width, height int) (Result, error)
}

type wirePlate struct {
	Text      string    `json:"text"`
	WarpedBox []float64 `json:"warpedBox"`
}

type wireResult struct {
	Plates []wirePlate `json:"plates"`
	Error  string      `json:"error,omitempty"`
}

// DecodePlates turns the engine JSON into observations. Only plates[].text
// and plates[].warpedBox are read; a plate whose box is not exactly eight
// numbers keeps its text and is marked NoBox.
func DecodePlates(res Result) ([]anpr.PlateObservation, error) {
	if res.NumPlates <= 0 || len(res.JSON) == 0 {
		return nil, nil
	}

	var wire wireResult
	if err := json.Unmarshal(res.JSON, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}

	plates := wire.Plates
	if res.NumPlates < len(plates) {
		plates = plates[:res.NumPlates]
	}

	out := make([]anpr.PlateObservation, 0, len(plates))
	for _, p := range plates {
		obs := anpr.PlateObservation{RawText: p.Text}
		if len(p.WarpedBox) == len(obs.Polygon) {
			copy(obs.Polygon[:], p.WarpedBox)
		} else {
			obs.NoBox = true
		}
		out = append(out, obs)
	}
	return out, nil
}

// Recorded is a Recognizer for PixelFormatRecorded frames: the buffer is the
// engine output, optionally {"error": "..."} to simulate an engine failure.
type Recorded struct{}

func (Recorded) Process(_ context.Context, format PixelFormat, data []byte, _, _ int) (Result, error) {
	if format != PixelFormatRecorded {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	if len(data) == 0 {
		return Result{}, nil
	}

	var wire wireResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}
	if wire.Error != "" {
		return Result{}, fmt.Errorf("recognition failed: %s", wire.Error)
	}
	return Result{NumPlates: len(wire.Plates), JSON: data}, nil
}

// Recognize runs the engine on a frame and decodes its output.
func Recognize(ctx context.Context, r Recognizer, f Frame) ([]anpr.PlateObservation, error) {
	res, err := r.Process(ctx, f.Format, f.Data, f.Width, f.Height)
	if err != nil {
		return nil, err
	}
	return DecodePlates(res)
}
