package player

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFIFOSinkWritesLoadfileCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "control")
	require.NoError(t, unix.Mkfifo(path, 0o600))

	reader, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	require.NoError(t, err)
	defer reader.Close()

	sink := FIFOSink{Path: path}
	require.NoError(t, sink.PlayOnce(context.Background(), "../sound/sound.mp3"))

	buf := make([]byte, 128)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "loadfile ../sound/sound.mp3\n", string(buf[:n]))
}

func TestFIFOSinkWithoutReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "control")
	require.NoError(t, unix.Mkfifo(path, 0o600))

	err := FIFOSink{Path: path}.PlayOnce(context.Background(), "sound.mp3")
	assert.ErrorIs(t, err, ErrNoReader)
}

func TestFIFOSinkMissingPipe(t *testing.T) {
	t.Parallel()

	err := FIFOSink{Path: filepath.Join(t.TempDir(), "absent")}.PlayOnce(context.Background(), "sound.mp3")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoReader)
}

func TestFIFOSinkAppendsToRegularFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "commands.log")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	sink := FIFOSink{Path: path}
	require.NoError(t, sink.PlayOnce(context.Background(), "a.mp3"))
	require.NoError(t, sink.PlayOnce(context.Background(), "b.mp3"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "loadfile a.mp3\nloadfile b.mp3\n", string(data))
}
