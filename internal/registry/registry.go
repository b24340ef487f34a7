// Package registry reads and writes the plate registry: a UTF-8 text file
// with one plate per line, no header and no deduplication.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// ErrUnavailable is returned when the registry file cannot be opened for the
// selected mode. Callers treat it as fatal at startup.
var ErrUnavailable = errors.New("registry unavailable")

// Writer appends confirmed plates. The file stays open for the session.
type Writer struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *bufio.Writer
	written int
}

func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s for append: %w", ErrUnavailable, path, err)
	}
	return &Writer{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes plate followed by a newline and flushes it to the file.
func (w *Writer) Append(plate string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("append %q: registry %s is closed", plate, w.path)
	}
	if _, err := w.w.WriteString(plate + "\n"); err != nil {
		return fmt.Errorf("append %q to %s: %w", plate, w.path, err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	w.written++
	return nil
}

// Written is the number of lines appended this session.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) Path() string { return w.path }

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	w.f = nil
	return errors.Join(flushErr, closeErr)
}

// Set is a registry loaded once at startup. It is read-only afterwards.
type Set struct {
	path   string
	plates map[string]struct{}
}

// Load reads every non-blank line of path into a Set.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}
	defer f.Close()

	s := &Set{path: path, plates: make(map[string]struct{})}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.plates[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, err)
	}
	return s, nil
}

// NewSet builds a Set from plates already in memory.
func NewSet(plates ...string) *Set {
	s := &Set{plates: make(map[string]struct{}, len(plates))}
	for _, p := range plates {
		s.plates[p] = struct{}{}
	}
	return s
}

func (s *Set) Contains(plate string) bool {
	_, ok := s.plates[plate]
	return ok
}

func (s *Set) Len() int { return len(s.plates) }

func (s *Set) Path() string { return s.path }

// Plates returns the registry contents sorted.
func (s *Set) Plates() []string {
	out := make([]string, 0, len(s.plates))
	for p := range s.plates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
