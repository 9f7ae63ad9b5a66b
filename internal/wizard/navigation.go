package wizard

import "sync"

// Navigator mirrors forward transitions onto a back/forward history. Popped
// entries are reported through the callback installed with OnPopped.
type Navigator interface {
	PushStep(Step)
	OnPopped(func(Step))
}

// History is a browser-like navigation stack. It starts with one entry for the
// member picker, the same way a page load owns an initial history entry.
type History struct {
	mu      sync.Mutex
	entries []Step
	index   int
	popped  func(Step)
}

// NewHistory returns a history positioned on StepSelectMember.
func NewHistory() *History {
	return &History{entries: []Step{StepSelectMember}}
}

// PushStep records a new entry and drops any forward entries.
func (h *History) PushStep(step Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], step)
	h.index = len(h.entries) - 1
}

// OnPopped installs the callback invoked by Back and Forward.
func (h *History) OnPopped(fn func(Step)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.popped = fn
}

// Back moves one entry back. It reports false when already at the oldest entry.
func (h *History) Back() bool {
	return h.move(-1)
}

// Forward moves one entry forward. It reports false at the newest entry.
func (h *History) Forward() bool {
	return h.move(1)
}

func (h *History) move(delta int) bool {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.index = next
	step := h.entries[next]
	fn := h.popped
	h.mu.Unlock()
	if fn != nil {
		fn(step)
	}
	return true
}

// Entries returns a copy of the recorded steps.
func (h *History) Entries() []Step {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneSteps(h.entries)
}

// Len reports how many entries are recorded.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
