// Package roi holds the bounded parameter search used when a derived region
// of interest has to satisfy an acceptance check, plus the volume-fraction
// check used as its default acceptance predicate.
package roi

import (
	"context"
	"fmt"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/pipelineerr"
)

// DefaultMaxAttempts bounds Search when the caller passes a non-positive ceiling.
const DefaultMaxAttempts = 5

// AdjustFunc derives the parameters for the next attempt. attempt is the
// 1-based number of the attempt that just failed. It must be pure.
type AdjustFunc[P any] func(params P, attempt int) P

// AcceptFunc decides whether an evaluation result is good enough. It must be pure.
type AcceptFunc[R any] func(result R) bool

// EvaluateFunc produces a result for one parameter set. It is the only step
// allowed to touch the filesystem or run tools.
type EvaluateFunc[P, R any] func(ctx context.Context, params P) (R, error)

// Identity returns its parameters unchanged.
func Identity[P any](params P, _ int) P { return params }

// Search evaluates params, then adjusted params, until accept returns true
// or maxAttempts evaluations have run. An evaluation error stops the search
// immediately. Running out of attempts returns a *pipelineerr.RetryExhausted
// carrying the last parameters tried.
func Search[P, R any](
	ctx context.Context,
	params P,
	adjust AdjustFunc[P],
	accept AcceptFunc[R],
	evaluate EvaluateFunc[P, R],
	maxAttempts int,
) (P, R, error) {
	var zero R
	if evaluate == nil || accept == nil {
		return params, zero, fmt.Errorf("roi search needs both evaluate and accept")
	}
	if adjust == nil {
		adjust = Identity[P]
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := ctxlog.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return params, zero, err
		}
		result, err := evaluate(ctx, params)
		if err != nil {
			return params, zero, fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if accept(result) {
			logger.Debug("ROI accepted.", "attempt", attempt)
			return params, result, nil
		}
		if attempt >= maxAttempts {
			return params, result, &pipelineerr.RetryExhausted{Attempts: attempt, Last: params}
		}
		logger.Debug("ROI rejected, adjusting parameters.", "attempt", attempt, "params", fmt.Sprintf("%+v", params))
		params = adjust(params, attempt)
	}
}
