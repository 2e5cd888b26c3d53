package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for engine invocations.
const (
	outcomeSuccess      = "success"
	outcomeNotFound     = "not_found"
	outcomeInvalidBoard = "invalid_board"
	outcomeExitError    = "exit_error"
	outcomeEmptyOutput  = "empty_output"
	outcomeTooLarge     = "output_too_large"
	outcomeTimeout      = "timeout"
	outcomeCanceled     = "canceled"
	outcomeError        = "error"
)

var (
	invocationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pointcloud_engine_invocation_seconds",
			Help:    "Duration of compute engine invocations, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointcloud_engine_invocations_total",
			Help: "Total number of compute engine invocations by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(invocationDuration)
	prometheus.MustRegister(invocationsTotal)

	for _, o := range []string{
		outcomeSuccess, outcomeNotFound, outcomeInvalidBoard, outcomeExitError,
		outcomeEmptyOutput, outcomeTooLarge, outcomeTimeout, outcomeCanceled, outcomeError,
	} {
		invocationsTotal.WithLabelValues(o)
	}
}

func observeInvocation(err error, d time.Duration) {
	invocationDuration.Observe(d.Seconds())
	invocationsTotal.WithLabelValues(outcome(err)).Inc()
}

// outcome maps an Invoke error to its metric label.
func outcome(err error) string {
	var execErr *ExecutionError
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrEngineNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrInvalidBoard):
		return outcomeInvalidBoard
	case errors.As(err, &execErr):
		return outcomeExitError
	case errors.Is(err, ErrEmptyOutput):
		return outcomeEmptyOutput
	case errors.Is(err, ErrOutputTooLarge):
		return outcomeTooLarge
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}
