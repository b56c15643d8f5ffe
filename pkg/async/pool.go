// Package async 提供有界工作池与可追踪的后台任务执行器
package async

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool 有界工作池，用于把阻塞调用（如数据库访问）从调用方的 goroutine 中剥离，
// 使调用方的 deadline 在阻塞期间依然生效
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool 创建容量为 size 的工作池
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do 在工作池中执行 fn。ctx 结束时立即返回 ctx.Err()，fn 会继续运行直到结束后才归还名额
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Submit 在工作池中执行带返回值的 fn
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic in pool task: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
