package engine

import (
	"sync"
	"testing"
)

func TestActionGuard(t *testing.T) {
	guard := NewActionGuard()

	if !guard.TryBegin("bill:rec-1") {
		t.Fatal("first begin should succeed")
	}
	if guard.TryBegin("bill:rec-1") {
		t.Fatal("duplicate begin should be refused while pending")
	}
	if !guard.TryBegin("bill:rec-2") {
		t.Fatal("different key should be independent")
	}

	guard.End("bill:rec-1")
	if !guard.TryBegin("bill:rec-1") {
		t.Fatal("begin should succeed again after End")
	}
}

func TestActionGuardConcurrent(t *testing.T) {
	guard := NewActionGuard()

	const attempts = 50
	var wg sync.WaitGroup
	admitted := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.TryBegin("complete:rec-1") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one admitted attempt, got %d", count)
	}
}
