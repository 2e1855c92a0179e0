package concurrency

import (
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/require"
)

func TestOnceSetOnce(t *testing.T) {
	o := NewOnce[int]()
	require.NoError(t, o.Set(1))
	require.ErrorIs(t, o.Set(2), ErrAlreadySet)

	ctx := Background(log.Default)
	v, err := o.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestOnceWaitCancelled(t *testing.T) {
	o := NewOnce[int]()
	ctx, cancel := Background(log.Default).WithCancel()
	cancel()

	_, err := o.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestOnceWaitUnblocksOnSet(t *testing.T) {
	o := NewOnce[string]()
	ctx := Background(log.Default)

	done := make(chan string, 1)
	go func() {
		v, err := o.Wait(ctx)
		require.NoError(t, err)
		done <- v
	}()

	require.NoError(t, o.Set("hello"))
	require.Equal(t, "hello", <-done)
}
