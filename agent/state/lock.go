package state

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock hands out one exclusive slot per key. Slots are dropped once no
// caller holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]*lockSlot)}
}

func (k *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &lockSlot{sem: semaphore.NewWeighted(1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		k.release(key, slot)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			k.release(key, slot)
		})
	}, nil
}

func (k *keyedLock) release(key string, slot *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
