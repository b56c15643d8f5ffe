package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig 重试配置
type RetryConfig struct {
	// 最大尝试次数（含首次）
	MaxAttempts uint
	// 首次退避间隔
	InitialInterval time.Duration
	// 最大退避间隔
	MaxInterval time.Duration
	// 退避倍数
	Multiplier float64
}

// Retry 指数退避重试
type Retry struct {
	cfg RetryConfig
}

// NewRetry 创建重试器
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	return &Retry{cfg: cfg}
}

// Permanent 包装不应重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Execute 执行 fn，失败时按退避策略重试，直到成功、遇到永久错误、次数耗尽或 ctx 结束
func (r *Retry) Execute(ctx context.Context, fn func(ctx context.Context) error, notify func(attempt uint, err error)) error {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	b.Multiplier = r.cfg.Multiplier

	var attempt uint
	op := func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err != nil && notify != nil {
			notify(attempt, err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
	)
	return err
}
