package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/riskassessment/pkg/logger"
)

// Runner 执行与请求生命周期解耦的后台任务（缓存回写、事件发布、审计落库）。
// 任务继承调用方 context 中的值但不继承取消，失败只记录日志与计数，不影响调用方。
type Runner struct {
	wg        sync.WaitGroup
	timeout   time.Duration
	onDone    func(task string, err error)
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewRunner 创建后台任务执行器，timeout 为单个任务的超时，onDone 可为 nil
func NewRunner(timeout time.Duration, onDone func(task string, err error)) *Runner {
	return &Runner{timeout: timeout, onDone: onDone}
}

// Go 启动后台任务
func (r *Runner) Go(ctx context.Context, task string, fn func(ctx context.Context) error) {
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		runCtx := bg
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(bg, r.timeout)
			defer cancel()
		}

		err := r.run(runCtx, fn)
		if err != nil {
			r.failed.Add(1)
			logger.Warn(runCtx, "Background task failed", "task", task, "error", err)
		} else {
			r.succeeded.Add(1)
		}
		if r.onDone != nil {
			r.onDone(task, err)
		}
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in background task: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait 等待所有已启动的任务结束
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown 等待任务结束，ctx 到期则放弃等待
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats 返回成功与失败的任务数
func (r *Runner) Stats() (succeeded, failed int64) {
	return r.succeeded.Load(), r.failed.Load()
}
