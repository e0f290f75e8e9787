package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

var _ Transport = (*Memory)(nil)

// Memory is a process-local transport. Every opened context gets its own
// delivery goroutine that drains an unbounded inbox.
type Memory struct {
	contexts *haxmap.Map[string, *memoryContext]
}

func NewMemory() *Memory {
	return &Memory{
		contexts: haxmap.New[string, *memoryContext](),
	}
}

// Open creates a new context and starts its event loop. The label only shows
// up in logs; two contexts opened with the same label are distinct.
func (m *Memory) Open(label string) Handle {
	h := memoryHandle{id: newID(), label: label}
	c := &memoryContext{
		handle: h,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.contexts.Set(h.id, c)
	go c.loop()
	return h
}

// Close marks the context closed and stops its event loop. Pending deliveries
// are discarded. The handle stays known so IsClosed keeps answering true.
func (m *Memory) Close(h Handle) error {
	c, err := m.lookup(h)
	if err != nil {
		return err
	}
	c.close()
	return nil
}

// Shutdown closes every context opened on this transport.
func (m *Memory) Shutdown() {
	m.contexts.ForEach(func(_ string, c *memoryContext) bool {
		c.close()
		return true
	})
}

func (m *Memory) Send(ctx context.Context, from, to Handle, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := m.lookup(to)
	if err != nil {
		return err
	}
	return c.enqueue(memoryDelivery{raw: raw, origin: from})
}

func (m *Memory) Subscribe(ctx context.Context, h Handle, fn Delivery) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("delivery callback is required")
	}
	c, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: %s", ErrClosed, c.handle)
	}
	return c.subscribers.add(ctx, fn), nil
}

func (m *Memory) IsClosed(h Handle) bool {
	c, err := m.lookup(h)
	if err != nil {
		return true
	}
	return c.closed.Load()
}

func (m *Memory) lookup(h Handle) (*memoryContext, error) {
	if h == nil {
		return nil, ErrNilHandle
	}
	c, ok := m.contexts.Get(h.ID())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h.ID())
	}
	return c, nil
}

type memoryHandle struct {
	id    string
	label string
}

func (h memoryHandle) ID() string { return h.id }

func (h memoryHandle) String() string {
	if h.label == "" {
		return h.id
	}
	return h.label + "#" + h.id
}

type memoryDelivery struct {
	raw    string
	origin Handle
}

type memoryContext struct {
	handle      memoryHandle
	subscribers fanout

	mu    sync.Mutex
	inbox []memoryDelivery

	wake      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *memoryContext) enqueue(d memoryDelivery) error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClosed, c.handle)
	}
	c.inbox = append(c.inbox, d)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
		// loop already has a pending wake up
	}
	return nil
}

func (c *memoryContext) next() (memoryDelivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbox) == 0 || c.closed.Load() {
		return memoryDelivery{}, false
	}
	d := c.inbox[0]
	c.inbox[0] = memoryDelivery{}
	c.inbox = c.inbox[1:]
	return d, true
}

func (c *memoryContext) loop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			d, ok := c.next()
			if !ok {
				break
			}
			c.subscribers.deliver(d.raw, d.origin)
		}
	}
}

func (c *memoryContext) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		c.inbox = nil
		c.mu.Unlock()
		c.subscribers.clear()
		close(c.done)
	})
}
