package health

import (
	"sync"
	"sync/atomic"
)

// Handler receives readiness notifications from a Signal.
type Handler func(ready bool)

// Signal is the readiness channel of a store client.
//
// Every Emit is delivered synchronously to all handlers subscribed at the
// time of the call, in subscription order. Emissions are serialised, so two
// concurrent Emit calls never interleave their deliveries. Late subscribers
// do not receive past emissions; Ready reports the last emitted value.
//
// Handlers run on the emitting goroutine and must not call Emit or
// Transition on the same Signal.
type Signal struct {
	emitMu sync.Mutex

	mu     sync.Mutex
	subs   []subscription
	nextID uint64

	ready atomic.Bool
}

type subscription struct {
	id      uint64
	handler Handler
}

// NewSignal returns a Signal whose initial state is not ready.
func NewSignal() *Signal {
	return &Signal{}
}

// Subscribe registers h and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (s *Signal) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, handler: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signal) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit records ready and delivers it to every current subscriber.
func (s *Signal) Emit(ready bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.ready.Store(ready)
	s.deliver(ready)
}

// Transition emits ready only when it differs from the last emitted value and
// reports whether an emission happened. Driver callbacks such as heartbeat
// monitors use it so a steady state does not flood subscribers.
func (s *Signal) Transition(ready bool) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if s.ready.Load() == ready {
		return false
	}
	s.ready.Store(ready)
	s.deliver(ready)
	return true
}

// Ready reports the last emitted value.
func (s *Signal) Ready() bool {
	return s.ready.Load()
}

// Subscribers returns the number of registered handlers.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Signal) deliver(ready bool) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.subs))
	for i, sub := range s.subs {
		handlers[i] = sub.handler
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ready)
	}
}
