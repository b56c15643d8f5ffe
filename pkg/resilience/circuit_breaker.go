package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen 熔断器处于打开状态（或半开探测名额已满），调用被短路
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreakerConfig 熔断配置
type CircuitBreakerConfig struct {
	// 统计窗口内失败率阈值（0~1）
	FailureRatio float64
	// 计算失败率前的最少调用数
	MinimumCalls uint32
	// 连续失败次数阈值，0 表示不启用
	ConsecutiveFailures uint32
	// 打开状态持续时间，之后进入半开
	OpenTimeout time.Duration
	// 半开状态允许的探测调用数
	HalfOpenMaxCalls uint32
	// 闭合状态下计数清零周期，0 表示不清零
	Interval time.Duration
}

// CircuitBreaker 基于 gobreaker 的熔断器
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker 创建熔断器，onStateChange 可为 nil
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, onStateChange func(name string, from, to State)) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio <= 0 || counts.Requests < cfg.MinimumCalls {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// 调用方主动取消或自身超时不计为下游故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.As(err, new(*callerDoneError))
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// callerDoneError 标记调用方 ctx 已结束时产生的失败
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

// Execute 在熔断保护下执行 fn。fn 失败时若 ctx 已结束，失败归因于调用方，不计入熔断统计
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if ctx.Err() != nil {
				return nil, &callerDoneError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})
	var done *callerDoneError
	if errors.As(err, &done) {
		return done.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State 当前状态
func (c *CircuitBreaker) State() State {
	return fromGobreaker(c.cb.State())
}
