// Package keylock provides a mutex striped by string key. Holding the lock
// for one key never blocks callers working on a different key (modulo stripe
// collisions), which is what lets the expiry sweeper run without stalling
// reservations on unrelated items.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

type KeyLock struct {
	stripes []sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{stripes: make([]sync.Mutex, defaultStripes)}
}

// Lock acquires the stripe owning key and returns its unlock func.
func (k *KeyLock) Lock(key string) func() {
	m := &k.stripes[k.index(key)]
	m.Lock()
	return m.Unlock
}

func (k *KeyLock) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(k.stripes))
}
