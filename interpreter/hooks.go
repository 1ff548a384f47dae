package interpreter

import (
	"context"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// Dispatch abstracts transition candidate matching and domain computation
// so a generated machine can substitute precomputed tables. The dynamic
// implementation evaluates descriptors through the shared algo matcher; a
// compiled one answers from tables built offline — against the same matcher,
// which is what keeps the engines aligned.
type Dispatch interface {
	algo.DomainHint

	// Matches reports whether the transition's descriptors match the event.
	// An empty event name asks for eventless transitions.
	Matches(t *model.Transition, eventName string) bool
}

// dynamicDispatch is the interpreter's default: descriptors are matched at
// selection time and domains computed per microstep.
type dynamicDispatch struct{}

func (dynamicDispatch) Matches(t *model.Transition, eventName string) bool {
	if eventName == "" {
		return t.IsEventless()
	}
	return !t.IsEventless() && algo.MatchAnyDescriptor(t.Events, eventName)
}

func (dynamicDispatch) TransitionDomain(*model.Transition) (*model.State, bool) {
	return nil, false
}

// ActionFunc is one compiled executable-content block. It returns the first
// action failure; the session converts it to error.execution and abandons
// the rest of the block.
type ActionFunc func(ctx context.Context, h *Hooks) error

// Compiled carries the inlined executable content emitted by the code
// generator, keyed by state id (and block index for multi-block handlers).
type Compiled struct {
	OnEntry        map[string][]ActionFunc
	OnExit         map[string][]ActionFunc
	Transition     map[string]ActionFunc // keyed by TransitionKey
	Initial        map[string]ActionFunc
	HistoryDefault map[string]ActionFunc
}

// Hooks is the runtime surface generated action bodies call. Every method
// funnels into the same primitives the interpreting executor uses, so the
// two engines cannot drift on action semantics.
type Hooks struct {
	s *Session
}

// Raise enqueues an internal event.
func (h *Hooks) Raise(event string) error {
	h.s.doRaise(event)
	return nil
}

// Log evaluates and emits a log line.
func (h *Hooks) Log(ctx context.Context, label, expr string) error {
	return h.s.doLog(ctx, label, expr)
}

// Assign evaluates expr and assigns it to location.
func (h *Hooks) Assign(ctx context.Context, location, expr string) error {
	return h.s.doAssign(ctx, &model.Assign{Location: location, Expr: expr})
}

// AssignValue assigns a literal value to location.
func (h *Hooks) AssignValue(ctx context.Context, location string, value any) error {
	return h.s.dm.Assign(ctx, location, value)
}

// Cond evaluates a boolean expression for an inlined if-chain.
func (h *Hooks) Cond(ctx context.Context, expr string) (bool, error) {
	return h.s.dm.EvaluateCondition(ctx, expr)
}

// Script runs inline script source.
func (h *Hooks) Script(ctx context.Context, source string) error {
	return h.s.dm.ExecuteScript(ctx, source)
}

// Foreach drives an inlined foreach body over the evaluated array.
func (h *Hooks) Foreach(ctx context.Context, array, item, index string, body func(context.Context) error) error {
	if !jsIdentifier.MatchString(item) {
		return rsm.ExecutionErrorf("foreach item %q is not a valid variable name", item)
	}
	if index != "" && !jsIdentifier.MatchString(index) {
		return rsm.ExecutionErrorf("foreach index %q is not a valid variable name", index)
	}
	value, err := h.s.dm.EvaluateValue(ctx, array)
	if err != nil {
		return err
	}
	items, err := h.s.dm.Iterate(value)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := h.s.dm.Declare(ctx, item, it.Value); err != nil {
			return err
		}
		if index != "" {
			if err := h.s.dm.Declare(ctx, index, it.Index); err != nil {
				return err
			}
		}
		if err := body(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Send executes an inlined send with the same attribute semantics as the
// interpreted action.
func (h *Hooks) Send(ctx context.Context, send *model.Send) error {
	return h.s.doSend(ctx, send)
}

// Cancel executes an inlined cancel.
func (h *Hooks) Cancel(ctx context.Context, cancel *model.CancelAction) error {
	return h.s.doCancel(ctx, cancel)
}
