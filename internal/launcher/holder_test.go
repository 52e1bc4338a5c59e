package launcher

import (
	"sync"
	"testing"
)

func TestHolderEmpty(t *testing.T) {
	var ho Holder
	if ho.Current() != nil {
		t.Error("Current() on empty holder != nil")
	}
	if prev := ho.Replace(&Handle{id: "a"}); prev != nil {
		t.Errorf("Replace on empty holder returned %v, want nil", prev)
	}
}

func TestHolderReplaceReturnsPrevious(t *testing.T) {
	var ho Holder
	h1 := &Handle{id: "first"}
	h2 := &Handle{id: "second"}

	ho.Replace(h1)
	if ho.Current() != h1 {
		t.Error("Current() != h1 after first Replace")
	}

	prev := ho.Replace(h2)
	if prev != h1 {
		t.Errorf("Replace returned %v, want h1", prev)
	}
	if ho.Current() != h2 {
		t.Error("Current() != h2 after second Replace")
	}
}

func TestHolderConcurrentReplace(t *testing.T) {
	var ho Holder
	handles := make([]*Handle, 16)
	for i := range handles {
		handles[i] = &Handle{id: string(rune('a' + i))}
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ho.Replace(h)
		}()
	}
	wg.Wait()

	// Last writer wins; any of the handles is a valid final value.
	got := ho.Current()
	found := false
	for _, h := range handles {
		if got == h {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Current() = %v, not one of the replaced handles", got)
	}
}
