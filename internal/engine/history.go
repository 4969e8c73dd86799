package engine

// History is a stack of state snapshots. The top always mirrors the live
// state, so restoring pops it and hands back the one underneath.
type History struct {
	stack []State
}

func NewHistory(initial State) *History {
	h := &History{}
	h.Save(initial)
	return h
}

func (h *History) Save(s State) {
	h.stack = append(h.stack, s.Clone())
}

// Restore undoes the most recent snapshot. It reports false when there is
// nothing before the current state.
func (h *History) Restore() (State, bool) {
	if len(h.stack) < 2 {
		return State{}, false
	}
	h.stack = h.stack[:len(h.stack)-1]
	return h.stack[len(h.stack)-1].Clone(), true
}

func (h *History) Len() int { return len(h.stack) }

// Reset drops every snapshot and starts over from s.
func (h *History) Reset(s State) {
	h.stack = h.stack[:0]
	h.Save(s)
}
