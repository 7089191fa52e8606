package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("listing:1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()

	assert.Equal(t, 0, k.Size())
}

func TestUnlockIsIdempotent(t *testing.T) {
	k := NewKeyedMutex()

	unlock := k.LockAll(ListingKey("1"), TransactionKey("2"))
	unlock()
	unlock()

	assert.Equal(t, 0, k.Size())
}
