package utils

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// KeyedLock serialises work per key using a fixed set of striped mutexes.
type KeyedLock struct {
	stripes []sync.Mutex
}

func NewKeyedLock(stripes int) *KeyedLock {
	if stripes <= 0 {
		stripes = 64
	}
	return &KeyedLock{stripes: make([]sync.Mutex, stripes)}
}

func (k *KeyedLock) stripe(key string) *sync.Mutex {
	return &k.stripes[xxhash.Sum64String(key)%uint64(len(k.stripes))]
}

// Lock acquires the stripe for key and returns its unlock func.
func (k *KeyedLock) Lock(key string) func() {
	m := k.stripe(key)
	m.Lock()
	return m.Unlock
}
