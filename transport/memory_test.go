package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Run("opens distinct contexts for the same label", func(t *testing.T) {
		tr := NewMemory()
		t.Cleanup(tr.Shutdown)

		a := tr.Open("frame")
		b := tr.Open("frame")
		assert.NotEqual(t, a.ID(), b.ID())
		assert.Contains(t, a.(memoryHandle).String(), "frame#")
	})

	t.Run("treats unknown handles as closed", func(t *testing.T) {
		tr := NewMemory()
		other := NewMemory()
		t.Cleanup(tr.Shutdown)
		t.Cleanup(other.Shutdown)

		foreign := other.Open("foreign")
		assert.True(t, tr.IsClosed(foreign))

		err := tr.Send(context.Background(), nil, foreign, "x")
		require.ErrorIs(t, err, ErrUnknownHandle)
		require.ErrorIs(t, tr.Close(foreign), ErrUnknownHandle)
	})

	t.Run("refuses to send with a cancelled context", func(t *testing.T) {
		tr := NewMemory()
		t.Cleanup(tr.Shutdown)
		top := tr.Open("top")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, tr.Send(ctx, nil, top, "x"), context.Canceled)
	})

	t.Run("shutdown closes every context", func(t *testing.T) {
		tr := NewMemory()
		a := tr.Open("a")
		b := tr.Open("b")

		tr.Shutdown()
		assert.True(t, tr.IsClosed(a))
		assert.True(t, tr.IsClosed(b))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		tr := NewMemory()
		t.Cleanup(tr.Shutdown)
		top := tr.Open("top")

		require.NoError(t, tr.Close(top))
		require.NoError(t, tr.Close(top))
	})

	t.Run("unsubscribe removes the subscriber", func(t *testing.T) {
		tr := NewMemory()
		t.Cleanup(tr.Shutdown)
		top := tr.Open("top")

		sub, err := tr.Subscribe(context.Background(), top, func(context.Context, string, Handle) {})
		require.NoError(t, err)
		require.NotEmpty(t, sub.ID())

		c, err := tr.lookup(top)
		require.NoError(t, err)
		assert.Equal(t, 1, c.subscribers.size())

		sub.Unsubscribe()
		assert.Equal(t, 0, c.subscribers.size())
	})
}
