package lock

import (
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex hands out one mutex per key. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mutex   sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mutex.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mutex.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mutex.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mutex.Unlock()
		})
	}
}

// LockAll acquires keys in the order given. Callers must pass keys in a fixed global order.
func (k *KeyedMutex) LockAll(keys ...string) func() {
	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Size returns the number of live keys.
func (k *KeyedMutex) Size() int {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return len(k.entries)
}

func ListingKey(id string) string      { return "listing:" + id }
func TransactionKey(id string) string  { return "transaction:" + id }
func ConversationKey(id string) string { return "conversation:" + id }
