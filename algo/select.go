package algo

import (
	"sort"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// CondEvaluator evaluates a transition's cond attribute against the current
// datamodel. Implementations must treat evaluation errors as false (after
// raising error.execution in the session); the selector only sees the
// boolean.
type CondEvaluator func(t *model.Transition) bool

// HistoryLookup returns the recorded configuration of a history state and
// whether a record exists.
type HistoryLookup func(h *model.State) ([]*model.State, bool)

// DomainHint lets a compiled machine supply precomputed transition domains.
// A (nil, false) return falls back to the dynamic computation, which is also
// what the interpreter always uses.
type DomainHint interface {
	TransitionDomain(t *model.Transition) (*model.State, bool)
}

// EffectiveTargets resolves a transition's targets with history states
// replaced by their recorded configuration, or by their default transition's
// targets if no record exists (W3C getEffectiveTargetStates).
func EffectiveTargets(t *model.Transition, history HistoryLookup) []*model.State {
	var out []*model.State
	seen := make(map[*model.State]struct{})
	add := func(s *model.State) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, target := range t.TargetStates {
		if !target.IsHistory() {
			add(target)
			continue
		}
		if stored, ok := historyRecord(target, history); ok {
			for _, s := range stored {
				add(s)
			}
		} else if def := defaultHistoryTransition(target); def != nil {
			for _, s := range EffectiveTargets(def, history) {
				add(s)
			}
		}
	}
	return out
}

func historyRecord(h *model.State, history HistoryLookup) ([]*model.State, bool) {
	if history == nil {
		return nil, false
	}
	return history(h)
}

func defaultHistoryTransition(h *model.State) *model.Transition {
	if len(h.Transitions) == 0 {
		return nil
	}
	return h.Transitions[0]
}

// TransitionDomain computes the state within which a transition is processed
// (W3C getTransitionDomain): nil for a targetless transition, the source for
// an internal transition whose targets are all its descendants, and otherwise
// the lowest common compound ancestor of the source and all targets.
func TransitionDomain(t *model.Transition, history HistoryLookup) *model.State {
	targets := EffectiveTargets(t, history)
	if len(targets) == 0 {
		return nil
	}
	if t.Internal && t.Source.IsCompound() {
		all := true
		for _, s := range targets {
			if !IsDescendant(s, t.Source) {
				all = false
				break
			}
		}
		if all {
			return t.Source
		}
	}
	return FindLCCA(append([]*model.State{t.Source}, targets...))
}

func transitionDomain(t *model.Transition, history HistoryLookup, hint DomainHint) *model.State {
	if hint != nil {
		if d, ok := hint.TransitionDomain(t); ok {
			return d
		}
	}
	return TransitionDomain(t, history)
}

// ComputeExitSet returns the active states exited when the given transitions
// fire (W3C computeExitSet).
func ComputeExitSet(transitions []*model.Transition, config StateSet, history HistoryLookup, hint DomainHint) StateSet {
	out := make(StateSet)
	for _, t := range transitions {
		if t.IsTargetless() {
			continue
		}
		domain := transitionDomain(t, history, hint)
		for s := range config {
			if IsDescendant(s, domain) {
				out.Add(s)
			}
		}
	}
	return out
}

// Conflicts reports whether two transitions have intersecting exit sets
// under the given configuration.
func Conflicts(t1, t2 *model.Transition, config StateSet, history HistoryLookup, hint DomainHint) bool {
	e1 := ComputeExitSet([]*model.Transition{t1}, config, history, hint)
	e2 := ComputeExitSet([]*model.Transition{t2}, config, history, hint)
	if len(e1) == 0 && len(e2) == 0 {
		// Two targetless transitions from the same source still contend.
		return t1.Source == t2.Source
	}
	for s := range e1 {
		if e2.Contains(s) {
			return true
		}
	}
	return false
}

// TransitionMatcher reports whether a transition's descriptors match the
// candidate event. Compiled machines substitute a precomputed table here.
type TransitionMatcher func(t *model.Transition) bool

// MatchEventless matches only eventless transitions.
func MatchEventless(t *model.Transition) bool { return t.IsEventless() }

// MatchEvent returns a matcher for a named event.
func MatchEvent(name string) TransitionMatcher {
	return func(t *model.Transition) bool {
		return !t.IsEventless() && MatchAnyDescriptor(t.Events, name)
	}
}

// SelectTransitions computes the optimal enabled transition set for the
// current configuration (W3C selectTransitions / selectEventlessTransitions,
// folded over the matcher). For every active atomic state it walks up the
// ancestry and takes the first state with a matching transition whose cond
// holds, then removes conflicting transitions with child-over-ancestor
// preemption. The result is ordered by the document order of the atomic
// states that selected the transitions.
func SelectTransitions(config StateSet, match TransitionMatcher, cond CondEvaluator, history HistoryLookup, hint DomainHint) []*model.Transition {
	var enabled []*model.Transition
	seen := make(map[*model.Transition]struct{})

	var atomics []*model.State
	for s := range config {
		if s.IsAtomic() {
			atomics = append(atomics, s)
		}
	}
	sort.Slice(atomics, func(i, j int) bool {
		return atomics[i].DocumentOrder < atomics[j].DocumentOrder
	})

	for _, atomic := range atomics {
		chain := append([]*model.State{atomic}, Ancestors(atomic)...)
	perAtomic:
		for _, s := range chain {
			for _, t := range s.Transitions {
				if !match(t) {
					continue
				}
				if t.Cond != "" && !cond(t) {
					continue
				}
				if _, dup := seen[t]; !dup {
					seen[t] = struct{}{}
					enabled = append(enabled, t)
				}
				break perAtomic
			}
		}
	}
	return removeConflicting(enabled, config, history, hint)
}

// removeConflicting implements W3C removeConflictingTransitions: a later
// candidate whose source is a descendant of an already-kept transition's
// source preempts it; otherwise the later candidate is dropped.
func removeConflicting(enabled []*model.Transition, config StateSet, history HistoryLookup, hint DomainHint) []*model.Transition {
	var filtered []*model.Transition
	for _, t1 := range enabled {
		preempted := false
		var remove []*model.Transition
		for _, t2 := range filtered {
			if !Conflicts(t1, t2, config, history, hint) {
				continue
			}
			if IsDescendant(t1.Source, t2.Source) {
				remove = append(remove, t2)
			} else {
				preempted = true
				break
			}
		}
		if preempted {
			continue
		}
		if len(remove) > 0 {
			kept := filtered[:0]
			for _, t2 := range filtered {
				drop := false
				for _, r := range remove {
					if t2 == r {
						drop = true
						break
					}
				}
				if !drop {
					kept = append(kept, t2)
				}
			}
			filtered = kept
		}
		filtered = append(filtered, t1)
	}
	return filtered
}
