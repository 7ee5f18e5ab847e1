// Package refselect ranks PLL1 reference inputs: the chip falls back
// through references in priority order when the active one drops out,
// and the priority register is programmed from this ranking.
package refselect

import "sort"

// Candidate is one selectable reference input.
type Candidate struct {
	Index    int
	Priority uint8 // lower value is preferred
	Enabled  bool
}

// Election is a fixed ranking over a candidate set.
type Election struct {
	order []int
}

// New ranks the enabled candidates by priority, input index breaking
// ties, and returns the election.
func New(cands []Candidate) *Election {
	enabled := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Index < enabled[j].Index
	})
	e := &Election{order: make([]int, len(enabled))}
	for i, c := range enabled {
		e.order[i] = c.Index
	}
	return e
}

// Order returns the enabled input indexes, best first.
func (e *Election) Order() []int {
	return e.order
}

// Active returns the preferred input index, or -1 when nothing is enabled.
func (e *Election) Active() int {
	if len(e.order) == 0 {
		return -1
	}
	return e.order[0]
}

// Rank returns the position of input idx in the order, or -1 when the
// input is not enabled.
func (e *Election) Rank(idx int) int {
	for i, v := range e.order {
		if v == idx {
			return i
		}
	}
	return -1
}
