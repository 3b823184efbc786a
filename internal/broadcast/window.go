package broadcast

import (
	"sync"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
)

// Window keeps the most recent readings in a fixed-capacity ring buffer.
// Pushing into a full window overwrites the oldest entry in O(1).
type Window struct {
	mu    sync.Mutex
	buf   []domain.Reading
	start int
	size  int
}

// NewWindow creates a window holding up to capacity readings.
// A capacity of zero or less yields a window that stores nothing.
func NewWindow(capacity int) *Window {
	if capacity < 0 {
		capacity = 0
	}
	return &Window{buf: make([]domain.Reading, capacity)}
}

func (w *Window) Push(r domain.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return
	}
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = r
		w.size++
		return
	}
	w.buf[w.start] = r
	w.start = (w.start + 1) % len(w.buf)
}

// Readings returns a copy of the window contents, oldest first.
func (w *Window) Readings() []domain.Reading {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]domain.Reading, w.size)
	for i := range w.size {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) Cap() int {
	return len(w.buf)
}
