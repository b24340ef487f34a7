// Package tracker debounces noisy per-frame plate reads into confirmations.
//
// A Window keeps every accepted read in arrival order and reports a plate as
// confirmed when its occurrence count reaches the required repeat count. The
// window is cut back to its most recent entries every RefreshPeriod frames,
// which bounds memory and lets a plate confirm again in the next cycle.
package tracker

import "fmt"

const (
	DefaultRefreshPeriod = 10000
	DefaultResidual      = 200
)

// Policy decides how the repeat count turns into a confirmation.
type Policy string

const (
	// PolicyExact confirms on the single ingest where count == RequiredRepeats.
	// Duplicate reads of one plate inside a frame can step over the threshold
	// and skip the confirmation for the rest of the cycle.
	PolicyExact Policy = "exact"
	// PolicyOnce confirms the first time count >= RequiredRepeats and then
	// remembers the plate until the next truncation.
	PolicyOnce Policy = "once"
)

type Config struct {
	RequiredRepeats int
	RefreshPeriod   int
	Residual        int
	Policy          Policy
}

func (c Config) Validate() error {
	if c.RequiredRepeats <= 0 {
		return fmt.Errorf("required repeats must be positive, got %d", c.RequiredRepeats)
	}
	if c.RefreshPeriod <= 0 {
		return fmt.Errorf("refresh period must be positive, got %d", c.RefreshPeriod)
	}
	if c.Residual < 0 {
		return fmt.Errorf("residual must not be negative, got %d", c.Residual)
	}
	switch c.Policy {
	case PolicyExact, PolicyOnce, "":
	default:
		return fmt.Errorf("unknown confirmation policy %q", c.Policy)
	}
	return nil
}

// Result is the outcome of one Ingest.
type Result struct {
	Plate     string
	Count     int
	Confirmed bool
}

// Stats is a point-in-time view of the window.
type Stats struct {
	Entries     int `json:"entries"`
	Distinct    int `json:"distinct"`
	CycleFrames int `json:"cycle_frames"`
	Truncations int `json:"truncations"`
}

// Window is the history of recent normalized plates. It is not safe for
// concurrent use; the frame loop is its only writer.
type Window struct {
	cfg         Config
	entries     []string
	counts      map[string]int
	confirmed   map[string]struct{}
	cycle       int
	truncations int
}

func New(cfg Config) *Window {
	if cfg.Policy == "" {
		cfg.Policy = PolicyExact
	}
	return &Window{
		cfg:       cfg,
		counts:    make(map[string]int),
		confirmed: make(map[string]struct{}),
	}
}

// Ingest appends an already-normalized plate and reports whether this read
// confirms it. No length validation is done here.
func (w *Window) Ingest(plate string) Result {
	w.entries = append(w.entries, plate)
	w.counts[plate]++
	count := w.counts[plate]

	res := Result{Plate: plate, Count: count}
	switch w.cfg.Policy {
	case PolicyOnce:
		if _, done := w.confirmed[plate]; !done && count >= w.cfg.RequiredRepeats {
			w.confirmed[plate] = struct{}{}
			res.Confirmed = true
		}
	default:
		res.Confirmed = count == w.cfg.RequiredRepeats
	}
	return res
}

// Advance counts one processed frame and truncates the window once the
// counter passes RefreshPeriod. It must run on every frame, with or without
// detections. Returns true when a truncation happened.
func (w *Window) Advance() bool {
	w.cycle++
	if w.cycle <= w.cfg.RefreshPeriod {
		return false
	}
	w.cycle = 0
	w.truncate()
	return true
}

func (w *Window) truncate() {
	w.truncations++
	clear(w.confirmed)
	if len(w.entries) <= w.cfg.Residual {
		return
	}

	kept := make([]string, w.cfg.Residual)
	copy(kept, w.entries[len(w.entries)-w.cfg.Residual:])
	w.entries = kept

	clear(w.counts)
	for _, p := range kept {
		w.counts[p]++
	}
}

// Count returns how many times plate occurs in the current window.
func (w *Window) Count(plate string) int {
	return w.counts[plate]
}

// Entries returns a copy of the window contents, oldest first.
func (w *Window) Entries() []string {
	out := make([]string, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Window) Stats() Stats {
	return Stats{
		Entries:     len(w.entries),
		Distinct:    len(w.counts),
		CycleFrames: w.cycle,
		Truncations: w.truncations,
	}
}
