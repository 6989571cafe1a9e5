package core

import (
	"context"
	"time"
)

type OptionKey string

const (
	RetryOptionKey OptionKey = "retry_options"
)

type RetryOptions struct {
	Delay time.Duration
}

// WithRetryDelay makes retry loops running under ctx wait d between attempts.
func WithRetryDelay(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, RetryOptionKey, RetryOptions{Delay: d})
}

func GetRetryDelay(ctx context.Context, defaultDelay time.Duration) time.Duration {
	options, ok := ctx.Value(RetryOptionKey).(RetryOptions)
	if ok {
		return options.Delay
	}
	return defaultDelay
}
