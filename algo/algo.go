// Package algo implements the SCXML semantics helpers shared verbatim by the
// interpreter and by generated machines: event descriptor matching, ancestry
// and LCA queries, exit-set and entry-set computation, transition selection
// with conflict resolution, and the entry/exit orderings. Keeping both
// engines on this one package is what keeps them in lockstep.
package algo

import (
	"sort"
	"strings"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// StateSet is a set of states, used for configurations, exit sets and entry
// sets.
type StateSet map[*model.State]struct{}

// NewStateSet builds a set from the given states.
func NewStateSet(states ...*model.State) StateSet {
	s := make(StateSet, len(states))
	for _, st := range states {
		s[st] = struct{}{}
	}
	return s
}

func (s StateSet) Add(st *model.State)      { s[st] = struct{}{} }
func (s StateSet) Remove(st *model.State)   { delete(s, st) }
func (s StateSet) Contains(st *model.State) bool {
	_, ok := s[st]
	return ok
}
func (s StateSet) Len() int { return len(s) }

// Clone returns an independent copy.
func (s StateSet) Clone() StateSet {
	c := make(StateSet, len(s))
	for st := range s {
		c[st] = struct{}{}
	}
	return c
}

// SortedDocumentOrder returns the members sorted by document order.
func (s StateSet) SortedDocumentOrder() []*model.State {
	out := make([]*model.State, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentOrder < out[j].DocumentOrder
	})
	return out
}

// EntryOrder sorts states for entry: shallower first, document order within
// a depth.
func EntryOrder(states []*model.State) []*model.State {
	out := append([]*model.State(nil), states...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].DocumentOrder < out[j].DocumentOrder
	})
	return out
}

// ExitOrder sorts states for exit: deeper first, reverse document order
// within a depth.
func ExitOrder(states []*model.State) []*model.State {
	out := append([]*model.State(nil), states...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth > out[j].Depth
		}
		return out[i].DocumentOrder > out[j].DocumentOrder
	})
	return out
}

// MatchDescriptor reports whether one event descriptor matches an event name
// (W3C SCXML 3.12). "*" matches everything; otherwise tokens match exactly or
// as a dot-separated prefix: "foo" matches "foo" and "foo.bar" but never
// "foobar". A trailing ".*" is the explicit form of the same prefix match.
func MatchDescriptor(descriptor, event string) bool {
	if descriptor == "" {
		return false
	}
	if descriptor == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(descriptor, ".*"); ok {
		return event == prefix || strings.HasPrefix(event, prefix+".")
	}
	if descriptor == event {
		return true
	}
	return strings.HasPrefix(event, descriptor+".")
}

// MatchAnyDescriptor reports whether any descriptor in the list matches.
func MatchAnyDescriptor(descriptors []string, event string) bool {
	for _, d := range descriptors {
		if MatchDescriptor(d, event) {
			return true
		}
	}
	return false
}

// Ancestors returns the proper ancestors of s, nearest first, up to and
// including the document root.
func Ancestors(s *model.State) []*model.State {
	var out []*model.State
	for p := s.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// ProperAncestors returns the proper ancestors of s, nearest first, up to
// but not including stop. A nil stop walks to the root.
func ProperAncestors(s, stop *model.State) []*model.State {
	var out []*model.State
	for p := s.Parent; p != nil && p != stop; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// IsDescendant reports whether s is a proper descendant of ancestor.
func IsDescendant(s, ancestor *model.State) bool {
	if ancestor == nil {
		return false
	}
	for p := s.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// LCA returns the lowest state that is an ancestor-or-equal of every given
// state. Returns nil for an empty input.
func LCA(states ...*model.State) *model.State {
	if len(states) == 0 {
		return nil
	}
	chain := append([]*model.State{states[0]}, Ancestors(states[0])...)
	for _, cand := range chain {
		all := true
		for _, s := range states[1:] {
			if s != cand && !IsDescendant(s, cand) {
				all = false
				break
			}
		}
		if all {
			return cand
		}
	}
	return nil
}

// FindLCCA returns the lowest common ancestor of the given states that is a
// compound state or the document root (W3C findLCCA). Unlike LCA it never
// returns a member of the input set.
func FindLCCA(states []*model.State) *model.State {
	if len(states) == 0 {
		return nil
	}
	for _, anc := range Ancestors(states[0]) {
		if !anc.IsCompound() && !anc.IsRoot() {
			continue
		}
		all := true
		for _, s := range states[1:] {
			if !IsDescendant(s, anc) {
				all = false
				break
			}
		}
		if all {
			return anc
		}
	}
	return nil
}

// IsInFinalState reports whether s counts as completed under config: a
// compound state with an active final child, or a parallel state all of
// whose regions are complete (W3C isInFinalState).
func IsInFinalState(s *model.State, config StateSet) bool {
	switch {
	case s.IsCompound():
		for _, c := range s.Children {
			if c.IsFinal() && config.Contains(c) {
				return true
			}
		}
	case s.IsParallel():
		for _, c := range s.Children {
			if c.IsHistory() {
				continue
			}
			if !IsInFinalState(c, config) {
				return false
			}
		}
		return true
	}
	return false
}
