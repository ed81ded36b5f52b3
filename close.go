package buildcache

import (
	"context"
	"fmt"
	"time"
)

// Close releases the store handle. Data stays on disk and Initialize may
// reopen it. Closing an unopened cache is a no-op.
func (c *Cache[F]) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Clean closes the store handle, if open, and deletes everything persisted
// at the cache location.
//
// When the handle closes but deleting fails the cache stays closed and
// Clean may be retried.
func (c *Cache[F]) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	c.logger.DebugContext(ctx, "cleaning database")

	err := c.clean(ctx)

	c.opts.metricsCollector.RecordClean(time.Since(start), err)
	c.logger.LogClean(ctx, err)
	return err
}

func (c *Cache[F]) clean(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		err := c.store.Close()
		c.store = nil
		if err != nil {
			return translateError(ErrCleanup, "close", err)
		}
	}

	return translateError(ErrCleanup, "destroy", c.opts.backend.Destroy(ctx, c.location))
}
