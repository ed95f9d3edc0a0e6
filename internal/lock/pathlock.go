package lock

import (
	"context"
	"sync"
)

// PathLocker serializes work on the same key (a canonical output path) while
// letting different keys proceed in parallel. Waiting honours ctx, so a task
// whose deadline fires while queued behind a slow writer gives up instead of
// blocking forever.
type PathLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewPathLocker() *PathLocker {
	return &PathLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done. On success the returned
// function releases the key and must be called exactly once.
func (p *PathLocker) Lock(ctx context.Context, key string) (func(), error) {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		p.slots[key] = s
	}
	s.refs++
	p.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		p.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			p.drop(key, s)
		})
	}, nil
}

// Held reports how many callers currently hold or wait on key.
func (p *PathLocker) Held(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok {
		return s.refs
	}
	return 0
}

func (p *PathLocker) drop(key string, s *slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(p.slots, key)
	}
}
