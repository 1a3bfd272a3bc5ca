// Package keylock provides one mutex per string key. Slots are created on
// demand and dropped once nobody holds or waits for them, so the number of
// distinct keys over the process lifetime does not matter.
package keylock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTimeout is returned when a key could not be acquired within the
// locker's wait timeout.
var ErrTimeout = errors.New("keylock: wait timeout")

type slot struct {
	ch   chan struct{}
	refs int
}

type Locker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

// New returns a Locker. A zero timeout waits until ctx is done.
func New(timeout time.Duration) *Locker {
	return &Locker{slots: make(map[string]*slot), timeout: timeout}
}

// Lock acquires every key in ascending order and returns a function that
// releases them. Two callers locking overlapping key sets therefore never
// deadlock. If ctx ends first nothing stays locked and ctx.Err() is returned.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	for _, k := range keys {
		s := l.acquireRef(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-waitCtx.Done():
			l.dropRef(k)
			l.release(held)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrTimeout
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

// Held reports how many keys currently have a slot. Used by tests.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) acquireRef(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) dropRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Locker) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		s := l.slots[keys[i]]
		l.mu.Unlock()
		<-s.ch
		l.dropRef(keys[i])
	}
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
