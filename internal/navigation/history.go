package navigation

// History is the back-navigable trail of visited spine positions, most
// recent last. It always holds at least the position it was created with.
type History struct {
	entries []int
	length  int
}

// NewHistory returns a History for a spine of the given length, seeded with
// the initial position.
func NewHistory(initial, length int) *History {
	return &History{entries: []int{initial}, length: length}
}

// Push records pos as the newest entry. Out-of-range positions and a
// repeat of the newest entry are dropped; Push reports whether pos was added.
func (h *History) Push(pos int) bool {
	if pos < 0 || pos >= h.length {
		return false
	}
	if pos == h.Top() {
		return false
	}
	h.entries = append(h.entries, pos)
	return true
}

// PopBack removes the newest entry and returns the one before it. With a
// single entry left it does nothing and reports false.
func (h *History) PopBack() (int, bool) {
	if len(h.entries) <= 1 {
		return h.Top(), false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return h.Top(), true
}

// Top returns the newest entry.
func (h *History) Top() int {
	return h.entries[len(h.entries)-1]
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []int {
	out := make([]int, len(h.entries))
	copy(out, h.entries)
	return out
}
