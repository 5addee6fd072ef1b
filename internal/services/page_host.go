package services

import "sync"

// PageHost is the page a quiz is embedded in. While a fullscreen quiz has a
// question in progress the session holds the host's input capture, which
// keeps page shortcuts and touch scrolling from reaching the page underneath.
// Every capture is paired with exactly one release.
type PageHost interface {
	CaptureInput()
	ReleaseInput()
}

// NoopHost is used when nothing needs to react to capture changes.
type NoopHost struct{}

func (NoopHost) CaptureInput() {}

func (NoopHost) ReleaseInput() {}

// FlagHost records the capture so a remote page can mirror it.
type FlagHost struct {
	mu       sync.Mutex
	captured bool
	acquired int
	released int
}

func (h *FlagHost) CaptureInput() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captured = true
	h.acquired++
}

func (h *FlagHost) ReleaseInput() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captured = false
	h.released++
}

func (h *FlagHost) Captured() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captured
}

// Counts returns how often the input was captured and released.
func (h *FlagHost) Counts() (acquired, released int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquired, h.released
}
