package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openbraininstitute/entitykit/pkg/utils/retry"
)

func TestBlocking(t *testing.T) {
	t.Run("it calls f until it succeeds", func(t *testing.T) {
		calls := 0
		ret, err := retry.Blocking(
			context.Background(), retry.StaticBackoff(time.Millisecond),
			func() (int, error) {
				calls += 1
				if calls < 3 {
					return calls, fmt.Errorf("%w: not yet", retry.ErrRetry)
				}
				return calls, nil
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		if ret != 3 || calls != 3 {
			t.Errorf("ret = %d, calls = %d", ret, calls)
		}
	})

	t.Run("it stops at non-retry error", func(t *testing.T) {
		expectedErr := errors.New("fake")
		calls := 0
		_, err := retry.Blocking(
			context.Background(), retry.StaticBackoff(time.Millisecond),
			func() (int, error) {
				calls += 1
				return 0, expectedErr
			},
		)
		if !errors.Is(err, expectedErr) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("it gives up when backoff is exhausted", func(t *testing.T) {
		calls := 0
		ret, err := retry.Blocking(
			context.Background(), retry.Limit(2, retry.StaticBackoff(time.Millisecond)),
			func() (int, error) {
				calls += 1
				return calls, retry.ErrRetry
			},
		)
		if !errors.Is(err, retry.ErrGaveUp) || !errors.Is(err, retry.ErrRetry) {
			t.Errorf("unexpected error: %v", err)
		}
		if ret != 3 || calls != 3 {
			t.Errorf("ret = %d, calls = %d", ret, calls)
		}
	})

	t.Run("it stops when context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := retry.Blocking(
			ctx, retry.StaticBackoff(time.Hour),
			func() (int, error) { return 0, retry.ErrRetry },
		)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
