package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/hoot/pkg/natsx"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness wraps a transport together with the implementation specific way of
// opening and closing contexts.
type harness struct {
	Transport
	open  func(t *testing.T, label string) Handle
	close func(t *testing.T, h Handle)
}

// harnessFactory creates a fresh transport for one test
type harnessFactory func(t *testing.T) harness

type acceptanceTest struct {
	name string
	test func(t *testing.T, create harnessFactory)
}

func runAcceptanceTests(t *testing.T, name string, factory harnessFactory) {
	tests := []acceptanceTest{
		{"delivers payload with origin", testDeliversWithOrigin},
		{"fans out to every subscriber in order", testFanOutOrder},
		{"preserves order per sender", testPerSenderOrder},
		{"allows sending to self from a delivery", testSendToSelf},
		{"reports closed contexts", testIsClosed},
		{"stops delivering after unsubscribe", testUnsubscribe},
		{"stops delivering after subscriber context is cancelled", testSubscriberContextCancelled},
		{"validates subscribe arguments", testSubscribeValidation},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", name, tt.name), func(t *testing.T) {
			tt.test(t, factory)
		})
	}
}

func TestTransportImplementations(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		runAcceptanceTests(t, "Memory", func(t *testing.T) harness {
			tr := NewMemory()
			t.Cleanup(tr.Shutdown)
			return harness{
				Transport: tr,
				open:      func(_ *testing.T, label string) Handle { return tr.Open(label) },
				close:     func(t *testing.T, h Handle) { require.NoError(t, tr.Close(h)) },
			}
		})
	})

	t.Run("NATS", func(t *testing.T) {
		runAcceptanceTests(t, "NATS", func(t *testing.T) harness {
			nc := setupNATS(t)
			tr, err := NewNATS(nc, WithSubjectPrefix("hoot.test."+newID()[24:]))
			require.NoError(t, err)
			return harness{
				Transport: tr,
				open: func(t *testing.T, label string) Handle {
					h, err := tr.Open(label + "-" + newID())
					require.NoError(t, err)
					return h
				},
				close: func(t *testing.T, h Handle) { require.NoError(t, tr.Close(h)) },
			}
		})
	})
}

func setupNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := natsx.NewClient()
	if err != nil {
		t.Skipf("nats server not available at %s: %v", natsx.URL(), err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// inbox collects deliveries for assertions.
type inbox struct {
	mu      sync.Mutex
	raws    []string
	origins []string
}

func (i *inbox) record(_ context.Context, raw string, origin Handle) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.raws = append(i.raws, raw)
	if origin != nil {
		i.origins = append(i.origins, origin.ID())
	} else {
		i.origins = append(i.origins, "")
	}
}

func (i *inbox) payloads() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.raws...)
}

func (i *inbox) senders() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.origins...)
}

func eventuallyLen(t *testing.T, in *inbox, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(in.payloads()) >= n }, 2*time.Second, 5*time.Millisecond)
}

func testDeliversWithOrigin(t *testing.T, create harnessFactory) {
	h := create(t)
	ctx := context.Background()
	top := h.open(t, "top")
	frame := h.open(t, "frame")

	var in inbox
	sub, err := h.Subscribe(ctx, top, in.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, h.Send(ctx, frame, top, "hello"))
	eventuallyLen(t, &in, 1)
	assert.Equal(t, []string{"hello"}, in.payloads())
	assert.Equal(t, []string{frame.ID()}, in.senders())
}

func testFanOutOrder(t *testing.T, create harnessFactory) {
	h := create(t)
	ctx := context.Background()
	top := h.open(t, "top")

	var mu sync.Mutex
	var calls []string
	record := func(name string) Delivery {
		return func(_ context.Context, raw string, _ Handle) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+raw)
		}
	}

	_, err := h.Subscribe(ctx, top, record("first"))
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, top, record("second"))
	require.NoError(t, err)

	require.NoError(t, h.Send(ctx, nil, top, "a"))
	require.NoError(t, h.Send(ctx, nil, top, "b"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, calls)
}

func testPerSenderOrder(t *testing.T, create harnessFactory) {
	h := create(t)
	ctx := context.Background()
	top := h.open(t, "top")
	frame := h.open(t, "frame")

	var in inbox
	_, err := h.Subscribe(ctx, top, in.record)
	require.NoError(t, err)

	const n = 100
	want := make([]string, n)
	for i := range n {
		want[i] = fmt.Sprintf("msg-%d", i)
		require.NoError(t, h.Send(ctx, frame, top, want[i]))
	}

	eventuallyLen(t, &in, n)
	assert.Equal(t, want, in.payloads())
}

func testSendToSelf(t *testing.T, create harnessFactory) {
	h := create(t)
	ctx := context.Background()
	top := h.open(t, "top")

	var in inbox
	_, err := h.Subscribe(ctx, top, func(ctx context.Context, raw string, origin Handle) {
		in.record(ctx, raw, origin)
		if raw == "ping" {
			assert.NoError(t, h.Send(ctx, top, top, "pong"))
		}
	})
	require.NoError(t, err)

	require.NoError(t, h.Send(ctx, nil, top, "ping"))
	eventuallyLen(t, &in, 2)
	assert.Equal(t, []string{"ping", "pong"}, in.payloads())
}

func testIsClosed(t *testing.T, create harnessFactory) {
	h := create(t)
	top := h.open(t, "top")

	assert.False(t, h.IsClosed(top))
	h.close(t, top)
	assert.True(t, h.IsClosed(top))
	assert.True(t, h.IsClosed(nil))

	err := h.Send(context.Background(), nil, top, "late")
	require.ErrorIs(t, err, ErrClosed)

	_, err = h.Subscribe(context.Background(), top, func(context.Context, string, Handle) {})
	require.ErrorIs(t, err, ErrClosed)
}

func testUnsubscribe(t *testing.T, create harnessFactory) {
	h := create(t)
	ctx := context.Background()
	top := h.open(t, "top")

	var dropped, kept inbox
	sub, err := h.Subscribe(ctx, top, dropped.record)
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, top, kept.record)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, h.Send(ctx, nil, top, "after"))
	eventuallyLen(t, &kept, 1)
	assert.Empty(t, dropped.payloads())
}

func testSubscriberContextCancelled(t *testing.T, create harnessFactory) {
	h := create(t)
	top := h.open(t, "top")

	subCtx, cancel := context.WithCancel(context.Background())
	var cancelled, kept inbox
	_, err := h.Subscribe(subCtx, top, cancelled.record)
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), top, kept.record)
	require.NoError(t, err)

	cancel()
	require.NoError(t, h.Send(context.Background(), nil, top, "after"))
	eventuallyLen(t, &kept, 1)
	assert.Empty(t, cancelled.payloads())
}

func testSubscribeValidation(t *testing.T, create harnessFactory) {
	h := create(t)
	top := h.open(t, "top")

	_, err := h.Subscribe(context.Background(), top, nil)
	require.Error(t, err)

	_, err = h.Subscribe(context.Background(), nil, func(context.Context, string, Handle) {})
	require.ErrorIs(t, err, ErrNilHandle)

	err = h.Send(context.Background(), nil, nil, "x")
	require.ErrorIs(t, err, ErrNilHandle)
}
