package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContexts(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		ctxs, err := newContexts(context.Background(), DefaultConfig(), slog.Default())
		require.NoError(t, err)
		defer ctxs.shutdown()

		h, err := ctxs.open("alpha")
		require.NoError(t, err)
		assert.False(t, ctxs.IsClosed(h))
		require.NoError(t, ctxs.close(h))
		assert.True(t, ctxs.IsClosed(h))
	})

	t.Run("nats uses the configured url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Transport = transportNATS
		cfg.NATSURL = "nats://127.0.0.1:1"

		_, err := newContexts(context.Background(), cfg, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nats://127.0.0.1:1")
	})
}
