package lifecycle

import (
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameEntity(t *testing.T) {
	var km KeyedMutex

	unlock := km.Lock("order", 1)

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("order", 1)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestKeyedMutexIndependentEntities(t *testing.T) {
	var km KeyedMutex

	unlock := km.Lock("order", 1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		u := km.Lock("order", 2)
		u()
		u = km.Lock("sample", 1)
		u()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct entities blocked each other")
	}
}
