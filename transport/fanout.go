package transport

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// fanout holds the subscribers of one context in subscription order.
type fanout struct {
	mu   sync.RWMutex
	subs []*subscription
}

func (f *fanout) add(ctx context.Context, fn Delivery) *subscription {
	id := newID()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		fn:      fn,
		onClose: func() { f.remove(id) },
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = slices.DeleteFunc(f.subs, func(s *subscription) bool { return s.id == id })
}

func (f *fanout) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = nil
}

func (f *fanout) size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// deliver runs every live subscriber in order on the calling goroutine.
func (f *fanout) deliver(raw string, origin Handle) {
	f.mu.RLock()
	subs := slices.Clone(f.subs)
	f.mu.RUnlock()

	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			sub.Unsubscribe()
			continue
		}
		sub.fn(sub.ctx, raw, origin)
	}
}

type subscription struct {
	id        string
	ctx       context.Context
	fn        Delivery
	closeOnce sync.Once
	onClose   func()
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}
