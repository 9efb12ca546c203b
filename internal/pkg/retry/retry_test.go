package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithRetry(t *testing.T) {
	log := zap.NewNop().Sugar()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), log, "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, 5, time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), log, "op", func() error {
			calls++
			return errors.New("persistent")
		}, 3, time.Millisecond)
		require.Error(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := WithRetry(ctx, log, "op", func() error {
			calls++
			return errors.New("transient")
		}, 5, 10*time.Second)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})

	t.Run("does not retry context errors from operation", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), log, "op", func() error {
			calls++
			return context.DeadlineExceeded
		}, 5, time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 1, calls)
	})
}
