package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes bounds the encoded snapshot bytes held by pending
	// background saves. If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent background saves.
	// If 0, defaults to 1, which queues overlapping saves.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec is the maximum write throughput of background saves.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages the resources shared by background saves.
// A nil Controller imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	bgSem    *semaphore.Weighted
	bgActive atomic.Int64

	// IO
	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}

	return c.cfg
}

// AcquireMemory reserves bytes of snapshot memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
// Requests larger than the limit are clamped to it so they can proceed alone.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, c.clamp(bytes)); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)

	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(c.clamp(bytes)) {
			return false
		}
	}

	c.memUsed.Add(bytes)

	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(c.clamp(bytes))
	}

	c.memUsed.Add(-bytes)
}

func (c *Controller) clamp(bytes int64) int64 {
	return min(bytes, c.cfg.MemoryLimitBytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// AcquireBackground reserves a background save slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}

	c.bgActive.Add(1)

	return nil
}

// TryAcquireBackground reserves a background save slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}

	if !c.bgSem.TryAcquire(1) {
		return false
	}

	c.bgActive.Add(1)

	return true
}

// ReleaseBackground releases a background save slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}

	c.bgActive.Add(-1)
	c.bgSem.Release(1)
}

// ActiveBackground returns the number of held background slots.
func (c *Controller) ActiveBackground() int64 {
	if c == nil {
		return 0
	}

	return c.bgActive.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Large requests are split into bursts the limiter can grant.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	c.ioBytes.Add(int64(bytes))

	if c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()

	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}

// IOBytes returns the total number of bytes passed through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}

	return c.ioBytes.Load()
}
