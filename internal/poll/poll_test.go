package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntilStopsOnPredicate(t *testing.T) {
	var n int32
	var seen []int
	fetch := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&n, 1)), nil
	}

	err := Until(context.Background(), time.Millisecond, fetch, func(v int) bool { return v == 3 }, func(v int, _ error) {
		seen = append(seen, v)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestUntilKeepsGoingAfterErrors(t *testing.T) {
	calls := 0
	var errs int
	fetch := func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporarily down")
		}
		return "done", nil
	}

	err := Until(context.Background(), time.Millisecond, fetch, func(s string) bool { return s == "done" }, func(_ string, err error) {
		if err != nil {
			errs++
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, errs)
}

func TestUntilReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Until(ctx, 5*time.Millisecond, func(context.Context) (int, error) { return 0, nil }, func(int) bool { return false }, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEveryFiresImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var n int32
	go func() {
		defer close(done)
		Every(ctx, time.Hour, func(context.Context) { atomic.AddInt32(&n, 1) })
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
