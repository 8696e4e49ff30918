package dedup

// Candidate is one recent item a new signal is compared against.
type Candidate struct {
	ID        int64
	Title     string
	SourceURL string
}

// Window is the ordered list of recent candidates for one company. It is never
// mutated in place; With returns an extended copy so a batch can keep using the
// old window while producing the next one.
type Window struct {
	items []Candidate
}

func NewWindow(items []Candidate) Window {
	copied := make([]Candidate, len(items))
	copy(copied, items)
	return Window{items: copied}
}

// With returns a new window with c appended after the existing items.
func (w Window) With(c Candidate) Window {
	next := make([]Candidate, len(w.items), len(w.items)+1)
	copy(next, w.items)
	return Window{items: append(next, c)}
}

func (w Window) Len() int {
	return len(w.items)
}

// Items returns a copy of the window contents in comparison order.
func (w Window) Items() []Candidate {
	out := make([]Candidate, len(w.items))
	copy(out, w.items)
	return out
}

func (w Window) Titles() []string {
	titles := make([]string, len(w.items))
	for i, item := range w.items {
		titles[i] = item.Title
	}
	return titles
}
