package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Transfers(t *testing.T) {
	c := NewController(Config{MaxConcurrentTransfers: 2})

	require.NoError(t, c.AcquireTransfer(context.Background()))
	require.NoError(t, c.AcquireTransfer(context.Background()))

	// Try 3rd
	assert.False(t, c.TryAcquireTransfer())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireTransfer(ctx), context.DeadlineExceeded)

	c.ReleaseTransfer()
	assert.True(t, c.TryAcquireTransfer())
}

func TestController_UnlimitedTransfers(t *testing.T) {
	c := NewController(Config{})
	for range 10 {
		require.NoError(t, c.AcquireTransfer(context.Background()))
	}
	assert.True(t, c.TryAcquireTransfer())
	c.ReleaseTransfer()
}

func TestController_AcquireIO(t *testing.T) {
	c := NewController(Config{BytesPerSec: 1000})

	// the bucket starts full
	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 1000))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// bucket is empty now
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireIO(ctx, 500))
}

func TestController_AcquireIOLargerThanBurst(t *testing.T) {
	c := NewController(Config{BytesPerSec: 1 << 20})

	// 1.5 buckets: first chunk is free, the rest waits about half a second
	require.NoError(t, c.AcquireIO(context.Background(), 3<<19))
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireTransfer(context.Background()))
	assert.True(t, c.TryAcquireTransfer())
	c.ReleaseTransfer()
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
	assert.Equal(t, Config{}, c.Config())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.AcquireTransfer(ctx), context.Canceled)
}

func TestRateLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, NewController(Config{BytesPerSec: 1 << 20}))

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestRateLimitedWriter_Canceled(t *testing.T) {
	c := NewController(Config{BytesPerSec: 10})
	require.NoError(t, c.AcquireIO(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := NewRateLimitedWriter(ctx, &buf, c).Write([]byte("x"))
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestRateLimitedReader(t *testing.T) {
	r := NewRateLimitedReader(context.Background(), strings.NewReader("snapshot"), nil)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", string(data))
}
