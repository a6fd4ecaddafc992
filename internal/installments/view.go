package installments

import (
	"slices"
	"sync"

	"nelfy/internal/core"
)

// RowState is the expand state of a parent row.
type RowState int

const (
	Collapsed RowState = iota
	Expanded
)

func (s RowState) String() string {
	if s == Expanded {
		return "expanded"
	}
	return "collapsed"
}

// View is the transient state of one user's transactions page: which group
// rows are open and the children loaded so far.
//
// Every navigation to the page calls Reset, which drops the state and starts
// a new generation. Fetches remember the generation they started under and
// their results are discarded if the page was reset meanwhile.
type View struct {
	mu         sync.Mutex
	generation uint64
	expanded   map[int64]bool
	children   map[int64][]core.Transaction
}

// NewView creates an empty view.
func NewView() *View {
	return &View{
		expanded: make(map[int64]bool),
		children: make(map[int64][]core.Transaction),
	}
}

// Reset discards all rows and returns the new generation.
func (v *View) Reset() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.expanded = make(map[int64]bool)
	v.children = make(map[int64][]core.Transaction)
	return v.generation
}

// Generation returns the current generation.
func (v *View) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

// State returns the expand state of a parent row.
func (v *View) State(parentID int64) RowState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.expanded[parentID] {
		return Expanded
	}
	return Collapsed
}

// Children returns a copy of the cached children of parentID.
func (v *View) Children(parentID int64) ([]core.Transaction, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.children[parentID]
	if !ok {
		return nil, false
	}
	return slices.Clone(c), true
}

// Store caches children loaded under generation gen. It reports false, and
// leaves the view untouched, when the view has been reset since.
func (v *View) Store(gen uint64, parentID int64, children []core.Transaction) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return false
	}
	v.children[parentID] = slices.Clone(children)
	return true
}

// StoreBatch caches every group of b under generation gen.
func (v *View) StoreBatch(gen uint64, b Batch) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return false
	}
	for id, c := range b.Children {
		v.children[id] = slices.Clone(c)
	}
	return true
}

// Evict drops the cached children of parentID. The row keeps its state and
// falls back to the backend summary until the children are fetched again.
func (v *View) Evict(parentID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.children[parentID]
	delete(v.children, parentID)
	return ok
}

// Drop forgets a group entirely, e.g. after it was deleted.
func (v *View) Drop(parentID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.children, parentID)
	delete(v.expanded, parentID)
}

// toggle flips the expand state under gen and returns the new state. The
// second result reports whether the children still need fetching.
func (v *View) toggle(gen uint64, parentID int64) (RowState, bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return Collapsed, false, false
	}
	if v.expanded[parentID] {
		delete(v.expanded, parentID)
		return Collapsed, false, true
	}
	v.expanded[parentID] = true
	_, cached := v.children[parentID]
	return Expanded, !cached, true
}

func (v *View) collapse(gen uint64, parentID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen == v.generation {
		delete(v.expanded, parentID)
	}
}
