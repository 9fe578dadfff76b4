package stream

import "sync"

// Fragment is one piece of generated output held in memory until the next
// persistence checkpoint.
type Fragment struct {
	Kind        string // "text" | "tool"
	Content     string
	ToolName    string
	ToolPayload map[string]interface{}
}

// Buffer accumulates fragments emitted by the generation engine since the
// last successful persistence checkpoint, so a cancellation mid-stream loses
// nothing already produced. It is owned by the single orchestrator instance
// driving the session's stream; the mutex only covers the Drain done by a
// terminal-path goroutine against late Appends.
type Buffer struct {
	mu        sync.Mutex
	fragments []Fragment
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a fragment at the end, preserving emission order.
func (b *Buffer) Append(fragment Fragment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, fragment)
}

// Drain atomically reads and clears the buffer. After a successful drain the
// buffer is empty; draining again immediately yields nil.
func (b *Buffer) Drain() []Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.fragments
	b.fragments = nil
	return drained
}

// Len reports the number of unsaved fragments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}
