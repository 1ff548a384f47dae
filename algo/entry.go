package algo

import (
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// EntrySet is the result of ComputeEntrySet: the states to enter, the
// compound states entered through their initial transition (whose initial
// actions must run after onentry), and the default history content to
// execute, keyed by the history state's parent.
type EntrySet struct {
	ToEnter        StateSet
	DefaultEntry   StateSet
	HistoryDefault map[*model.State][]model.Action
}

// ComputeEntrySet computes the full set of states entered by the given
// transitions (W3C computeEntrySet): the targets themselves, their initial
// or history-replayed descendants, every region of entered parallels, and
// all ancestors up to each transition's domain.
func ComputeEntrySet(doc *model.Document, transitions []*model.Transition, history HistoryLookup, hint DomainHint) EntrySet {
	es := EntrySet{
		ToEnter:        make(StateSet),
		DefaultEntry:   make(StateSet),
		HistoryDefault: make(map[*model.State][]model.Action),
	}
	for _, t := range transitions {
		for _, target := range t.TargetStates {
			es.addDescendants(doc, target, history)
		}
		domain := transitionDomain(t, history, hint)
		for _, target := range EffectiveTargets(t, history) {
			es.addAncestors(doc, target, domain, history)
		}
	}
	return es
}

// addDescendants mirrors W3C addDescendantStatesToEnter.
func (es *EntrySet) addDescendants(doc *model.Document, state *model.State, history HistoryLookup) {
	if state.IsHistory() {
		if stored, ok := historyRecord(state, history); ok {
			for _, s := range stored {
				es.addDescendants(doc, s, history)
			}
			for _, s := range stored {
				es.addAncestors(doc, s, state.Parent, history)
			}
			return
		}
		def := defaultHistoryTransition(state)
		if def == nil {
			return
		}
		if len(def.Actions) > 0 {
			es.HistoryDefault[state.Parent] = def.Actions
		}
		for _, s := range def.TargetStates {
			es.addDescendants(doc, s, history)
		}
		for _, s := range def.TargetStates {
			es.addAncestors(doc, s, state.Parent, history)
		}
		return
	}

	es.ToEnter.Add(state)
	switch {
	case state.IsCompound():
		es.DefaultEntry.Add(state)
		for _, s := range doc.InitialTargets(state) {
			es.addDescendants(doc, s, history)
		}
		for _, s := range doc.InitialTargets(state) {
			es.addAncestors(doc, s, state, history)
		}
	case state.IsParallel():
		for _, region := range state.Children {
			if region.IsHistory() {
				continue
			}
			if !es.containsDescendantOf(region) {
				es.addDescendants(doc, region, history)
			}
		}
	}
}

// addAncestors mirrors W3C addAncestorStatesToEnter.
func (es *EntrySet) addAncestors(doc *model.Document, state, ancestor *model.State, history HistoryLookup) {
	for _, anc := range ProperAncestors(state, ancestor) {
		es.ToEnter.Add(anc)
		if !anc.IsParallel() {
			continue
		}
		for _, region := range anc.Children {
			if region.IsHistory() {
				continue
			}
			if !es.containsDescendantOf(region) {
				es.addDescendants(doc, region, history)
			}
		}
	}
}

func (es *EntrySet) containsDescendantOf(region *model.State) bool {
	for s := range es.ToEnter {
		if s == region || IsDescendant(s, region) {
			return true
		}
	}
	return false
}
