// Package retry 提供远程调用的显式重试封装
package retry

import (
	"context"
	"errors"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy 重试策略
type Policy struct {
	// Attempts 最大尝试次数（包含首次）
	Attempts uint
	// InitialDelay 首次退避时长，之后按指数增长
	InitialDelay time.Duration
	// MaxDelay 单次退避上限
	MaxDelay time.Duration
	// Retryable 判断错误是否可重试，为 nil 时所有错误均重试
	Retryable func(error) bool
	// OnRetry 每次失败后的回调，n 从 0 开始
	OnRetry func(n uint, err error)
}

// DefaultPolicy 默认策略：3 次尝试，1s 起步，10s 封顶
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// permanentError 标记不可重试错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装错误使其不再重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被标记为不可重试
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do 按策略执行 fn，返回最后一次错误
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(p.InitialDelay),
		retrygo.MaxDelay(p.MaxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			if IsPermanent(err) {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err() == nil
			}
			if p.Retryable != nil {
				return p.Retryable(err)
			}
			return true
		}),
	}
	if p.OnRetry != nil {
		opts = append(opts, retrygo.OnRetry(p.OnRetry))
	}

	err := retrygo.Do(func() error {
		return fn(ctx)
	}, opts...)
	if err == nil {
		return nil
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}
