package roi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"pgregory.net/rapid"
)

type erosion struct {
	MM int
}

func TestSearch_AcceptsFirstGoodResult(t *testing.T) {
	var seen []int
	evaluate := func(_ context.Context, p erosion) (int, error) {
		seen = append(seen, p.MM)
		return 10 - p.MM, nil
	}
	adjust := func(p erosion, _ int) erosion { return erosion{MM: p.MM + 2} }
	accept := func(r int) bool { return r <= 5 }

	params, result, err := Search(context.Background(), erosion{MM: 0}, adjust, accept, evaluate, 10)
	require.NoError(t, err)
	assert.Equal(t, erosion{MM: 6}, params)
	assert.Equal(t, 4, result)
	assert.Equal(t, []int{0, 2, 4, 6}, seen)
}

func TestSearch_ExhaustsWithIdentityAdjust(t *testing.T) {
	calls := 0
	evaluate := func(_ context.Context, p erosion) (bool, error) {
		calls++
		return false, nil
	}
	accept := func(ok bool) bool { return ok }

	params, _, err := Search(context.Background(), erosion{MM: 3}, nil, accept, evaluate, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrRetryExhausted)
	assert.Equal(t, 4, calls)
	assert.Equal(t, erosion{MM: 3}, params)

	var exhausted *pipelineerr.RetryExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, erosion{MM: 3}, exhausted.Last)
}

func TestSearch_EvaluationErrorStops(t *testing.T) {
	boom := errors.New("binarize failed")
	calls := 0
	evaluate := func(_ context.Context, _ erosion) (int, error) {
		calls++
		return 0, boom
	}
	_, _, err := Search(context.Background(), erosion{}, nil, func(int) bool { return true }, evaluate, 3)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, pipelineerr.ErrRetryExhausted)
	assert.Equal(t, 1, calls)
}

func TestSearch_DefaultsAndGuards(t *testing.T) {
	calls := 0
	evaluate := func(_ context.Context, _ int) (int, error) { calls++; return 0, nil }
	_, _, err := Search(context.Background(), 0, nil, func(int) bool { return false }, evaluate, 0)
	assert.ErrorIs(t, err, pipelineerr.ErrRetryExhausted)
	assert.Equal(t, DefaultMaxAttempts, calls)

	_, _, err = Search[int, int](context.Background(), 0, nil, nil, evaluate, 1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Search(ctx, 0, nil, func(int) bool { return true }, evaluate, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestSearch_NeverExceedsCeiling checks the attempt count against the
// ceiling for arbitrary acceptance points.
func TestSearch_NeverExceedsCeiling(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ceiling := rapid.IntRange(1, 20).Draw(rt, "ceiling")
		acceptAt := rapid.IntRange(0, 30).Draw(rt, "acceptAt")

		calls := 0
		evaluate := func(_ context.Context, p int) (int, error) {
			calls++
			return p, nil
		}
		adjust := func(p int, attempt int) int { return attempt }
		accept := func(r int) bool { return r >= acceptAt }

		_, _, err := Search(context.Background(), 0, adjust, accept, evaluate, ceiling)
		if calls > ceiling {
			rt.Fatalf("%d evaluations with ceiling %d", calls, ceiling)
		}
		if acceptAt < ceiling && err != nil {
			rt.Fatalf("expected acceptance at attempt %d, got %v", acceptAt+1, err)
		}
		if acceptAt >= ceiling && !errors.Is(err, pipelineerr.ErrRetryExhausted) {
			rt.Fatalf("expected exhaustion, got %v", err)
		}
	})
}
