package authsdk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
)

func TestFutureCompletesOnce(t *testing.T) {
	t.Parallel()

	f := NewFuture[int]()
	f.OnSuccess(1)
	f.OnSuccess(2)
	f.OnException(errors.New("late"))

	v, err := f.Get(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("future should be done")
	}
}

func TestFutureGetRespectsContext(t *testing.T) {
	t.Parallel()

	f := NewFuture[string]()
	_, err := f.GetTimeout(10 * time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = f.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("value", func(t *testing.T) {
		t.Parallel()
		f := Go(t.Context(), func(context.Context) (string, error) { return "ok", nil })
		v, err := f.GetTimeout(time.Second)
		require.NoError(t, err)
		require.Equal(t, "ok", v)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		f := Go(t.Context(), func(context.Context) (string, error) { return "", boom })
		_, err := f.GetTimeout(time.Second)
		require.ErrorIs(t, err, boom)
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()
		f := Go(t.Context(), func(context.Context) (string, error) { panic("bad") })
		_, err := f.GetTimeout(time.Second)
		var panicErr *chain.PanicError
		require.ErrorAs(t, err, &panicErr)
		require.Equal(t, "bad", panicErr.Value)
	})
}

func TestNextAsync(t *testing.T) {
	t.Parallel()

	am := newFakeAM(t)
	client := am.client()

	svc, err := client.NewAuthService(AuthServiceConfig{Name: "Login"})
	require.NoError(t, err)

	var calls atomic.Int32
	got := make(chan *Step, 1)
	listener := ListenerFunc[*Step](func(step *Step, err error) {
		calls.Add(1)
		assert.NoError(t, err)
		got <- step
	})

	f := svc.NextAsync(t.Context(), listener)
	step, err := f.GetTimeout(5 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, step.Node)

	select {
	case notified := <-got:
		require.Same(t, step, notified)
	case <-time.After(5 * time.Second):
		t.Fatal("listener was not notified")
	}

	require.NoError(t, step.Node.Callbacks()[0].SetValue("nobody"))
	_, err = step.Node.NextAsync(t.Context(), nil).GetTimeout(5 * time.Second)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, int32(1), calls.Load())
}
