package natsx

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	t.Setenv(URLEnv, "")
	t.Setenv("NATS_URL", "")
	assert.Equal(t, nats.DefaultURL, URL())

	t.Setenv("NATS_URL", "nats://fallback:4222")
	assert.Equal(t, "nats://fallback:4222", URL())

	t.Setenv(URLEnv, "nats://hoot:4222")
	assert.Equal(t, "nats://hoot:4222", URL())
}

func TestResolveURL(t *testing.T) {
	t.Setenv(URLEnv, "nats://env:4222")
	assert.Equal(t, "nats://env:4222", ResolveURL(""))
	assert.Equal(t, "nats://config:4222", ResolveURL("nats://config:4222"))
}
