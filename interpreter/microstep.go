package interpreter

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// microstep executes one selected transition set: exits, transition content,
// entries, in that order (W3C microstep).
func (s *Session) microstep(ctx context.Context, transitions []*model.Transition) {
	ctx, span := s.tracer.Start(ctx, "session.microstep",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.Int("transitions", len(transitions)),
		))
	defer span.End()

	s.exitStates(ctx, transitions)
	for _, t := range transitions {
		s.executeTransitionContent(ctx, t)
	}
	s.enterStates(ctx, transitions)
}

// exitStates computes the exit set, records history, and runs onexit
// handlers deepest-first (W3C exitStates).
func (s *Session) exitStates(ctx context.Context, transitions []*model.Transition) {
	exitSet := algo.ComputeExitSet(transitions, s.config, s.historyLookup, s.dispatch)
	if exitSet.Len() == 0 {
		return
	}

	// History is recorded against the configuration as it stood before any
	// state leaves it.
	for st := range exitSet {
		for _, h := range st.Children {
			if !h.IsHistory() {
				continue
			}
			var record []*model.State
			if h.Kind == model.KindHistoryDeep {
				for c := range s.config {
					if c.IsAtomic() && algo.IsDescendant(c, st) {
						record = append(record, c)
					}
				}
			} else {
				for _, c := range st.Children {
					if !c.IsHistory() && s.config.Contains(c) {
						record = append(record, c)
					}
				}
			}
			s.history[h] = record
		}
	}

	// Pending invokes of exited states never start.
	if len(s.pendingInvokes) > 0 {
		kept := s.pendingInvokes[:0]
		for _, st := range s.pendingInvokes {
			if !exitSet.Contains(st) {
				kept = append(kept, st)
			}
		}
		s.pendingInvokes = kept
	}

	for _, st := range algo.ExitOrder(exitSet.SortedDocumentOrder()) {
		for i := range st.OnExit {
			s.executeStateBlock(ctx, st, blockExit, i)
		}
		s.cancelInvokes(ctx, st)
		s.mu.Lock()
		s.config.Remove(st)
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.StateExited(st.ID)
		}
	}
}

// executeTransitionContent runs a transition's action block.
func (s *Session) executeTransitionContent(ctx context.Context, t *model.Transition) {
	if s.compiled != nil {
		if fn, ok := s.compiled.Transition[TransitionKey(t)]; ok {
			s.runCompiledBlock(ctx, fn)
			return
		}
	}
	s.executeBlock(ctx, t.Actions)
}

// enterStates computes and enters the full entry set shallowest-first,
// running onentry handlers, default initial content, and done.state
// bookkeeping (W3C enterStates).
func (s *Session) enterStates(ctx context.Context, transitions []*model.Transition) {
	entry := algo.ComputeEntrySet(s.doc, transitions, s.historyLookup, s.dispatch)

	for _, st := range algo.EntryOrder(entry.ToEnter.SortedDocumentOrder()) {
		s.mu.Lock()
		s.config.Add(st)
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.StateEntered(st.ID)
		}

		if s.doc.Binding == model.BindingLate && !s.dataDone[st] {
			s.initializeStateData(ctx, st)
			s.dataDone[st] = true
		}
		if len(st.Invokes) > 0 {
			s.pendingInvokes = append(s.pendingInvokes, st)
		}

		for i := range st.OnEntry {
			s.executeStateBlock(ctx, st, blockEntry, i)
		}
		if entry.DefaultEntry.Contains(st) && len(st.InitialActions) > 0 {
			s.executeInitialContent(ctx, st)
		}
		if actions, ok := entry.HistoryDefault[st]; ok {
			s.executeHistoryDefault(ctx, st, actions)
		}

		if st.IsFinal() {
			s.enterFinalState(ctx, st)
		}
	}
}

// enterFinalState raises done.state events and stops the session when a
// top-level final state is reached.
func (s *Session) enterFinalState(ctx context.Context, st *model.State) {
	parent := st.Parent
	if parent == nil {
		return
	}
	if parent.IsRoot() {
		s.running.Store(false)
		return
	}

	ev := rsm.NewEvent("done.state."+parent.ID, rsm.EventTypeInternal)
	if st.DoneData != nil {
		if data, err := s.evaluateDoneData(ctx, st.DoneData); err != nil {
			s.enqueueError(rsm.ErrorExecution, err)
		} else {
			ev.Data = data
		}
	}
	s.internal.Enqueue(ev)

	grandparent := parent.Parent
	if grandparent != nil && grandparent.IsParallel() {
		all := true
		for _, region := range grandparent.Children {
			if region.IsHistory() {
				continue
			}
			if !algo.IsInFinalState(region, s.config) {
				all = false
				break
			}
		}
		if all {
			s.internal.Enqueue(rsm.NewEvent("done.state."+grandparent.ID, rsm.EventTypeInternal))
		}
	}
}

// evaluateDoneData builds the done event payload from a final state's
// donedata declaration.
func (s *Session) evaluateDoneData(ctx context.Context, dd *model.DoneData) (any, error) {
	if dd.Content != nil {
		if dd.Content.Expr != "" {
			return s.dm.EvaluateValue(ctx, dd.Content.Expr)
		}
		return dd.Content.Value, nil
	}
	if len(dd.Params) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(dd.Params))
	for _, p := range dd.Params {
		value, err := s.evaluateParam(ctx, p)
		if err != nil {
			return nil, err
		}
		addParam(data, p.Name, value)
	}
	return data, nil
}

func (s *Session) evaluateParam(ctx context.Context, p model.Param) (any, error) {
	if p.Location != "" {
		return s.dm.EvaluateValue(ctx, p.Location)
	}
	return s.dm.EvaluateValue(ctx, p.Expr)
}

// addParam inserts a param value; duplicate names accumulate into an array
// in arrival order.
func addParam(data map[string]any, name string, value any) {
	prev, dup := data[name]
	if !dup {
		data[name] = value
		return
	}
	if arr, ok := prev.([]any); ok {
		data[name] = append(arr, value)
	} else {
		data[name] = []any{prev, value}
	}
}

// TransitionKey identifies a transition stably across the interpreter and
// generated code: source state id plus its index among the source's
// transitions.
func TransitionKey(t *model.Transition) string {
	for i, cand := range t.Source.Transitions {
		if cand == t {
			return t.Source.ID + "/" + strconv.Itoa(i)
		}
	}
	return t.Source.ID + "/initial"
}
