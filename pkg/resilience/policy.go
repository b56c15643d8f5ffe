// Package resilience 为下游调用提供隔离舱、熔断与重试的组合策略
package resilience

import (
	"context"
	"time"
)

// Config 组合策略配置
type Config struct {
	Name string
	// 隔离舱最大并发数
	MaxConcurrentCalls int
	// 隔离舱最大等待时间
	MaxWait        time.Duration
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	// 熔断状态变化回调
	OnStateChange func(name string, from, to State)
	// 每次尝试失败的回调
	OnAttemptFailure func(attempt uint, err error)
}

// Policy 按 隔离舱 -> 熔断 -> 重试 的顺序包裹一次下游调用
type Policy struct {
	name     string
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    *Retry
	onFail   func(attempt uint, err error)
}

// NewPolicy 创建组合策略
func NewPolicy(cfg Config) *Policy {
	return &Policy{
		name:     cfg.Name,
		bulkhead: NewBulkhead(cfg.MaxConcurrentCalls, cfg.MaxWait),
		breaker:  NewCircuitBreaker(cfg.Name, cfg.CircuitBreaker, cfg.OnStateChange),
		retry:    NewRetry(cfg.Retry),
		onFail:   cfg.OnAttemptFailure,
	}
}

// Name 策略名称
func (p *Policy) Name() string { return p.name }

// State 熔断器当前状态
func (p *Policy) State() State { return p.breaker.State() }

// Run 在策略保护下执行 fn
func (p *Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return p.breaker.Execute(ctx, func() error {
			return p.retry.Execute(ctx, fn, p.onFail)
		})
	})
}

// Execute 在策略保护下执行带返回值的 fn
func Execute[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
