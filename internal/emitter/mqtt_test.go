package emitter

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-watch/internal/domain/anpr"
)

func TestRecordWithoutConnection(t *testing.T) {
	t.Parallel()

	e := NewMQTTEmitter(Config{Broker: "tcp://127.0.0.1:1"}, zerolog.Nop())
	err := e.Record(context.Background(), anpr.Confirmation{Plate: "XYZ789", Mode: anpr.ModeAlert})
	assert.ErrorIs(t, err, ErrNotConnected)

	st := e.Stats()
	assert.False(t, st.Connected)
	assert.Equal(t, uint64(1), st.Errors)
	assert.Zero(t, st.Published)

	e.Disconnect()
}

// Not parallel: it counts goroutines.
func TestFailedConnectLeavesNothingRunning(t *testing.T) {
	before := runtime.NumGoroutine()

	e := NewMQTTEmitter(Config{Broker: "tcp://127.0.0.1:1", ClientID: "anpr-watch-test"}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := e.Connect(ctx)
	require.Error(t, err)
	assert.False(t, e.client.IsConnectionOpen())
	assert.False(t, e.Stats().Connected)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 3*time.Second, 50*time.Millisecond, "connect goroutines outlived the failed connect")
}
