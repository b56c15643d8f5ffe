package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull 并发隔离舱已满且等待超时
var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead 并发隔离舱，限制同时在途的下游调用数
type Bulkhead struct {
	sem      *semaphore.Weighted
	maxWait  time.Duration
	inFlight atomic.Int64
}

// NewBulkhead 创建隔离舱，maxWait 为 0 时不等待，直接拒绝
func NewBulkhead(maxConcurrent int, maxWait time.Duration) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		maxWait: maxWait,
	}
}

// Execute 在隔离舱许可内执行 fn
func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	b.inFlight.Add(1)
	defer func() {
		b.inFlight.Add(-1)
		b.sem.Release(1)
	}()
	return fn(ctx)
}

// InFlight 当前在途调用数
func (b *Bulkhead) InFlight() int64 {
	return b.inFlight.Load()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		return nil
	}
	if b.maxWait <= 0 {
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadFull
	}
	return nil
}
