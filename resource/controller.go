// Package resource limits snapshot transfers between a cache and its remote.
//
// A Controller bounds two things:
//
//   - Transfers: how many pushes or pulls run at once (weighted semaphore)
//   - Bandwidth: bytes per second across all transfers (token bucket)
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentTransfers: 2,
//	    BytesPerSec:            50 << 20, // 50MB/s
//	})
//
//	if err := rc.AcquireTransfer(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseTransfer()
//
//	w = resource.NewRateLimitedWriter(ctx, w, rc)
//
// All methods are safe for concurrent use, and a nil *Controller imposes
// no limits.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds transfer limits. Zero values mean unlimited.
type Config struct {
	// MaxConcurrentTransfers is the number of transfers allowed to run at once.
	MaxConcurrentTransfers int64

	// BytesPerSec caps the combined throughput of all transfers.
	BytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	transfers *semaphore.Weighted // nil if unlimited
	limiter   *rate.Limiter       // nil if unlimited
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MaxConcurrentTransfers > 0 {
		c.transfers = semaphore.NewWeighted(cfg.MaxConcurrentTransfers)
	}
	if cfg.BytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}
	return c
}

// Config returns the limits c was created with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireTransfer blocks until a transfer slot is free or ctx is done.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil || c.transfers == nil {
		return ctx.Err()
	}
	return c.transfers.Acquire(ctx, 1)
}

// TryAcquireTransfer takes a transfer slot without blocking.
func (c *Controller) TryAcquireTransfer() bool {
	if c == nil || c.transfers == nil {
		return true
	}
	return c.transfers.TryAcquire(1)
}

// ReleaseTransfer returns a slot taken by AcquireTransfer or TryAcquireTransfer.
func (c *Controller) ReleaseTransfer() {
	if c == nil || c.transfers == nil {
		return
	}
	c.transfers.Release(1)
}

// AcquireIO waits until n bytes may be moved. Requests larger than one
// second of bandwidth are split so they never exceed the bucket size.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.limiter == nil {
		return nil
	}

	burst := c.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
