package codegen

import (
	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// Dispatch is the in-process twin of the dispatch table the generator
// emits: descriptors and static transition domains precomputed over the
// document, shared matcher semantics at lookup time. The conformance
// harness uses it to check engine parity without compiling generated
// source.
type Dispatch struct {
	doc         *model.Document
	descriptors map[string][]string
	domains     map[string]*model.State
}

// NewDispatch precomputes the tables for one document.
func NewDispatch(doc *model.Document) *Dispatch {
	d := &Dispatch{
		doc:         doc,
		descriptors: make(map[string][]string),
		domains:     make(map[string]*model.State),
	}
	g := &generator{doc: doc}
	g.walkTransitions(func(t *model.Transition) {
		key := interpreter.TransitionKey(t)
		d.descriptors[key] = t.Events
		if id, ok := staticDomain(t); ok {
			if id == "" {
				d.domains[key] = doc.Root
			} else {
				d.domains[key] = doc.StateByID(id)
			}
		}
	})
	return d
}

func (d *Dispatch) Matches(t *model.Transition, eventName string) bool {
	descriptors, ok := d.descriptors[interpreter.TransitionKey(t)]
	if !ok {
		descriptors = t.Events
	}
	if eventName == "" {
		return len(descriptors) == 0
	}
	return len(descriptors) > 0 && algo.MatchAnyDescriptor(descriptors, eventName)
}

func (d *Dispatch) TransitionDomain(t *model.Transition) (*model.State, bool) {
	domain, ok := d.domains[interpreter.TransitionKey(t)]
	if !ok {
		return nil, false
	}
	return domain, true
}

var _ interpreter.Dispatch = (*Dispatch)(nil)
