package common

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScissorsErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_scissor_errors_caught_total",
			Help: "Total number of panics recovered in long-running node services",
		}, []string{"name"})
)

// Runnable is a long-running node service. It returns when ctx is canceled or the service fails.
type Runnable func(ctx context.Context) error

// RunWithScissors starts runnable in a go routine. A panic is recovered and reported on errC like a returned error.
func RunWithScissors(ctx context.Context, errC chan<- error, name string, runnable Runnable) {
	go func() {
		if err := WrapWithScissors(runnable, name)(ctx); err != nil {
			errC <- err
		}
	}()
}

// WrapWithScissors turns a panic in runnable into an error prefixed with name.
func WrapWithScissors(runnable Runnable, name string) Runnable {
	return func(ctx context.Context) (result error) {
		defer func() {
			if r := recover(); r != nil {
				switch x := r.(type) {
				case error:
					result = fmt.Errorf("%s: %w", name, x)
				default:
					result = fmt.Errorf("%s: %v", name, x)
				}
				ScissorsErrors.WithLabelValues(name).Inc()
			}
		}()
		return runnable(ctx)
	}
}
