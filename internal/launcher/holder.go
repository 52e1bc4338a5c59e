package launcher

import "sync"

// Holder is a single-slot container for the most recently started singleton
// worker handle. Each Replace unconditionally overwrites the previous handle
// with last-writer-wins semantics. The displaced worker is not terminated;
// its fate belongs to whoever still holds its handle.
type Holder struct {
	mu sync.Mutex
	h  *Handle
}

// Replace stores h and returns the handle it displaced, which may be nil.
func (ho *Holder) Replace(h *Handle) *Handle {
	ho.mu.Lock()
	defer ho.mu.Unlock()
	prev := ho.h
	ho.h = h
	return prev
}

// Current returns the stored handle, or nil if no worker has been started.
func (ho *Holder) Current() *Handle {
	ho.mu.Lock()
	defer ho.mu.Unlock()
	return ho.h
}
