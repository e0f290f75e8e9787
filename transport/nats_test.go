package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATS(t *testing.T) {
	t.Run("requires a connection", func(t *testing.T) {
		_, err := NewNATS(nil)
		require.Error(t, err)
	})

	t.Run("validates context ids", func(t *testing.T) {
		nc := setupNATS(t)
		tr, err := NewNATS(nc)
		require.NoError(t, err)

		for _, id := range []string{"", "a.b", "a b", "a*", "a>"} {
			_, err := tr.Handle(id)
			assert.Error(t, err, "id %q", id)
		}
	})

	t.Run("refuses to open a context twice", func(t *testing.T) {
		nc := setupNATS(t)
		tr, err := NewNATS(nc)
		require.NoError(t, err)

		id := "twice-" + newID()
		h, err := tr.Open(id)
		require.NoError(t, err)
		t.Cleanup(func() { _ = tr.Close(h) })

		_, err = tr.Open(id)
		require.Error(t, err)
	})

	t.Run("probes liveness of contexts owned by another connection", func(t *testing.T) {
		prefix := "hoot.test." + newID()[24:]
		owner, err := NewNATS(setupNATS(t), WithSubjectPrefix(prefix))
		require.NoError(t, err)
		prober, err := NewNATS(setupNATS(t), WithSubjectPrefix(prefix), WithLivenessTimeout(100*time.Millisecond))
		require.NoError(t, err)

		id := "remote-" + newID()
		opened, err := owner.Open(id)
		require.NoError(t, err)

		remote, err := prober.Handle(id)
		require.NoError(t, err)
		assert.False(t, prober.IsClosed(remote))

		require.NoError(t, owner.Close(opened))
		assert.Eventually(t, func() bool { return prober.IsClosed(remote) }, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("only subscribes to contexts opened locally", func(t *testing.T) {
		nc := setupNATS(t)
		tr, err := NewNATS(nc)
		require.NoError(t, err)

		remote, err := tr.Handle("elsewhere")
		require.NoError(t, err)
		_, err = tr.Subscribe(context.Background(), remote, func(context.Context, string, Handle) {})
		require.ErrorIs(t, err, ErrUnknownHandle)
	})
}
