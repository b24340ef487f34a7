// Package player drives an external media player in slave mode through a
// named pipe. It is the audio adapter behind alert.Sink.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const DefaultControlPath = "/tmp/mplayer-control"

var ErrNoReader = errors.New("player control pipe has no reader")

// FIFOSink sends "loadfile <clip>" commands to the player's control pipe.
// The pipe is opened non-blocking per command so a missing player never
// stalls the frame loop.
type FIFOSink struct {
	Path string
}

func (s FIFOSink) PlayOnce(_ context.Context, clipID string) error {
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_APPEND|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("%w: %s", ErrNoReader, s.Path)
		}
		return fmt.Errorf("open player control %s: %w", s.Path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "loadfile %s\n", clipID); err != nil {
		return fmt.Errorf("write player command: %w", err)
	}
	return nil
}

// Process owns a background player listening on a control FIFO.
type Process struct {
	Command     string
	ControlPath string
	log         zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	cancel context.CancelFunc
}

func NewProcess(command, controlPath string, log zerolog.Logger) *Process {
	if command == "" {
		command = "mplayer"
	}
	if controlPath == "" {
		controlPath = DefaultControlPath
	}
	return &Process{
		Command:     command,
		ControlPath: controlPath,
		log:         log.With().Str("component", "player").Logger(),
	}
}

// Start recreates the control FIFO and spawns the player in idle slave mode.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return errors.New("player already started")
	}

	if err := os.Remove(p.ControlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale control pipe: %w", err)
	}
	if err := unix.Mkfifo(p.ControlPath, 0o666); err != nil {
		return fmt.Errorf("create control pipe %s: %w", p.ControlPath, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.Command,
		"-quiet", "-slave", "-idle", "-input", "file="+p.ControlPath)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", p.Command, err)
	}

	p.cmd = cmd
	p.cancel = cancel
	p.done = make(chan struct{})
	p.log.Info().Int("pid", cmd.Process.Pid).Str("control", p.ControlPath).Msg("player started")

	go func(done chan struct{}) {
		defer close(done)
		if err := cmd.Wait(); err != nil && runCtx.Err() == nil {
			p.log.Warn().Err(err).Msg("player exited")
			return
		}
		p.log.Debug().Msg("player stopped")
	}(p.done)

	return nil
}

// Sink returns the command sink bound to this player's control pipe.
func (p *Process) Sink() FIFOSink {
	return FIFOSink{Path: p.ControlPath}
}

// Stop kills the player and removes the control pipe.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.cmd = nil

	if err := os.Remove(p.ControlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove control pipe: %w", err)
	}
	return nil
}
