package database

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocksIndependentUsers(t *testing.T) {
	locks := newUserLocks()

	unlockA := locks.lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock(2)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another user blocked")
	}
	unlockA()
	assert.Zero(t, locks.size())
}

func TestUserLocksSameUserWaits(t *testing.T) {
	locks := newUserLocks()

	var mu sync.Mutex
	var order []int

	unlock := locks.lock(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		u := locks.lock(1)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()
	<-done

	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, locks.size())
}
