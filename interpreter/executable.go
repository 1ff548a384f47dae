package interpreter

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

type blockKind int

const (
	blockEntry blockKind = iota
	blockExit
)

// executeStateBlock runs one onentry/onexit block of a state, preferring a
// compiled body when one is installed.
func (s *Session) executeStateBlock(ctx context.Context, st *model.State, kind blockKind, idx int) {
	if s.compiled != nil {
		var fns []ActionFunc
		if kind == blockEntry {
			fns = s.compiled.OnEntry[st.ID]
		} else {
			fns = s.compiled.OnExit[st.ID]
		}
		if idx < len(fns) {
			s.runCompiledBlock(ctx, fns[idx])
			return
		}
	}
	var blocks [][]model.Action
	if kind == blockEntry {
		blocks = st.OnEntry
	} else {
		blocks = st.OnExit
	}
	if idx < len(blocks) {
		s.executeBlock(ctx, blocks[idx])
	}
}

func (s *Session) executeInitialContent(ctx context.Context, st *model.State) {
	if s.compiled != nil {
		if fn, ok := s.compiled.Initial[st.ID]; ok {
			s.runCompiledBlock(ctx, fn)
			return
		}
	}
	s.executeBlock(ctx, st.InitialActions)
}

func (s *Session) executeHistoryDefault(ctx context.Context, st *model.State, actions []model.Action) {
	if s.compiled != nil {
		if fn, ok := s.compiled.HistoryDefault[st.ID]; ok {
			s.runCompiledBlock(ctx, fn)
			return
		}
	}
	s.executeBlock(ctx, actions)
}

func (s *Session) runCompiledBlock(ctx context.Context, fn ActionFunc) {
	if err := fn(ctx, &Hooks{s: s}); err != nil {
		s.enqueueError(rsm.ErrorExecution, err)
	}
}

// executeBlock runs an action block. The first failing action raises
// error.execution and aborts the remainder of the block (W3C 5.9); the
// enclosing state or transition is unaffected.
func (s *Session) executeBlock(ctx context.Context, actions []model.Action) {
	if err := s.executeActions(ctx, actions); err != nil {
		s.enqueueError(rsm.ErrorExecution, err)
	}
}

// executeActions runs actions in order, stopping at the first failure. The
// error propagates so nested bodies (if arms, foreach bodies) abort the
// whole containing block.
func (s *Session) executeActions(ctx context.Context, actions []model.Action) error {
	for _, a := range actions {
		if err := s.executeAction(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) executeAction(ctx context.Context, action model.Action) error {
	switch a := action.(type) {
	case *model.Raise:
		s.doRaise(a.Event)
		return nil

	case *model.Log:
		return s.doLog(ctx, a.Label, a.Expr)

	case *model.Assign:
		return s.doAssign(ctx, a)

	case *model.ScriptAction:
		return s.dm.ExecuteScript(ctx, a.Source)

	case *model.If:
		for _, branch := range a.Branches {
			ok, err := s.dm.EvaluateCondition(ctx, branch.Cond)
			if err != nil {
				return err
			}
			if ok {
				return s.executeActions(ctx, branch.Body)
			}
		}
		return s.executeActions(ctx, a.Else)

	case *model.Foreach:
		return s.doForeach(ctx, a)

	case *model.Send:
		return s.doSend(ctx, a)

	case *model.CancelAction:
		return s.doCancel(ctx, a)

	default:
		return rsm.ExecutionErrorf("unknown executable content %T", action)
	}
}

func (s *Session) doRaise(event string) {
	s.internal.Enqueue(rsm.NewEvent(event, rsm.EventTypeInternal))
}

func (s *Session) doLog(ctx context.Context, label, expr string) error {
	message := ""
	if expr != "" {
		value, err := s.dm.EvaluateString(ctx, expr)
		if err != nil {
			return err
		}
		message = value
	}
	s.logger.Info(message, "label", label, "session", s.id, "name", s.name)
	return nil
}

func (s *Session) doAssign(ctx context.Context, a *model.Assign) error {
	if a.Location == "" {
		return rsm.ExecutionErrorf("assign requires a non-empty location")
	}
	var value any
	var err error
	if a.Expr != "" {
		value, err = s.dm.EvaluateValue(ctx, a.Expr)
	} else {
		value = a.Content
	}
	if err != nil {
		return err
	}
	return s.dm.Assign(ctx, a.Location, value)
}

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func (s *Session) doForeach(ctx context.Context, a *model.Foreach) error {
	if !jsIdentifier.MatchString(a.Item) {
		return rsm.ExecutionErrorf("foreach item %q is not a valid variable name", a.Item)
	}
	if a.Index != "" && !jsIdentifier.MatchString(a.Index) {
		return rsm.ExecutionErrorf("foreach index %q is not a valid variable name", a.Index)
	}
	value, err := s.dm.EvaluateValue(ctx, a.Array)
	if err != nil {
		return err
	}
	items, err := s.dm.Iterate(value)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.dm.Declare(ctx, a.Item, item.Value); err != nil {
			return err
		}
		if a.Index != "" {
			if err := s.dm.Declare(ctx, a.Index, item.Index); err != nil {
				return err
			}
		}
		if err := s.executeActions(ctx, a.Body); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) doCancel(ctx context.Context, a *model.CancelAction) error {
	sendID := a.SendID
	if sendID == "" {
		value, err := s.dm.EvaluateString(ctx, a.SendIDExpr)
		if err != nil {
			return err
		}
		sendID = value
	}
	// Unknown or already fired IDs are a silent no-op.
	s.sched.Cancel(sendID)
	return nil
}

// isSCXMLType reports whether typ is an accepted spelling of the SCXML
// event processor type.
func isSCXMLType(typ string) bool {
	switch typ {
	case "", "scxml", rsm.SCXMLEventProcessorURI:
		return true
	}
	return false
}

func (s *Session) doSend(ctx context.Context, a *model.Send) error {
	typ := a.Type
	if typ == "" && a.TypeExpr != "" {
		value, err := s.dm.EvaluateString(ctx, a.TypeExpr)
		if err != nil {
			return err
		}
		typ = value
	}
	if !isSCXMLType(typ) {
		return rsm.ExecutionErrorf("unsupported send type %q", typ)
	}

	name := a.Event
	if name == "" && a.EventExpr != "" {
		value, err := s.dm.EvaluateString(ctx, a.EventExpr)
		if err != nil {
			return err
		}
		name = value
	}
	if name == "" {
		return rsm.ExecutionErrorf("send requires an event name")
	}

	target := a.Target
	if target == "" && a.TargetExpr != "" {
		value, err := s.dm.EvaluateString(ctx, a.TargetExpr)
		if err != nil {
			return err
		}
		target = value
	}
	if target != "" && !strings.HasPrefix(target, "#_") {
		return rsm.ExecutionErrorf("invalid send target %q", target)
	}

	delayText := a.Delay
	if delayText == "" && a.DelayExpr != "" {
		value, err := s.dm.EvaluateString(ctx, a.DelayExpr)
		if err != nil {
			return err
		}
		delayText = value
	}
	delay, err := parseDelay(delayText)
	if err != nil {
		return err
	}
	if delay > 0 && target == "#_internal" {
		return rsm.ExecutionErrorf("internal events cannot be delayed")
	}

	sendID := a.ID
	if sendID == "" {
		sendID = uuid.NewString()
	}
	if a.IDLocation != "" {
		if err := s.dm.Assign(ctx, a.IDLocation, sendID); err != nil {
			return err
		}
	}

	data, err := s.buildSendPayload(ctx, a)
	if err != nil {
		return err
	}

	ev := rsm.NewEvent(name, rsm.EventTypeExternal)
	ev.Data = data
	ev.SendID = sendID
	ev.Origin = "#_scxml_" + s.id
	ev.OriginType = rsm.SCXMLEventProcessorURI
	ev.Target = target
	ev.TargetType = typ

	if delay > 0 {
		s.sched.Schedule(ev, delay, sendID)
		return nil
	}
	return s.routeEvent(ctx, ev)
}

func (s *Session) buildSendPayload(ctx context.Context, a *model.Send) (any, error) {
	if a.Content != nil {
		if a.Content.Expr != "" {
			return s.dm.EvaluateValue(ctx, a.Content.Expr)
		}
		return a.Content.Value, nil
	}
	if len(a.Params) == 0 && len(a.Namelist) == 0 {
		return nil, nil
	}
	data := make(map[string]any)
	for _, location := range a.Namelist {
		value, err := s.dm.EvaluateValue(ctx, location)
		if err != nil {
			return nil, err
		}
		addParam(data, location, value)
	}
	for _, p := range a.Params {
		value, err := s.evaluateParam(ctx, p)
		if err != nil {
			return nil, err
		}
		addParam(data, p.Name, value)
	}
	return data, nil
}

// routeEvent resolves an event's target to a local queue. Targets that are
// well-formed but unreachable produce error.communication; the caller (or
// the scheduler's delivery callback) enqueues it.
func (s *Session) routeEvent(ctx context.Context, ev *rsm.Event) error {
	switch {
	case ev.Target == "":
		// No target: delivered to the sending session's external queue.
		internalEv := *ev
		return s.enqueueExternal(&internalEv)

	case ev.Target == "#_internal":
		ev.Type = rsm.EventTypeInternal
		s.internal.Enqueue(ev)
		return nil

	case ev.Target == "#_parent":
		if s.parent == nil {
			return rsm.CommunicationErrorf("no parent session for target #_parent")
		}
		ev.InvokeID = s.parentInvokeID
		return s.parent.Send(ctx, ev)

	case strings.HasPrefix(ev.Target, "#_scxml_"):
		sessionID := strings.TrimPrefix(ev.Target, "#_scxml_")
		if sessionID == s.id {
			return s.enqueueExternal(ev)
		}
		for _, inv := range s.invocations {
			if inv.child.SessionID() == sessionID {
				return inv.child.Send(ctx, ev)
			}
		}
		if s.parent != nil && s.parent.SessionID() == sessionID {
			return s.parent.Send(ctx, ev)
		}
		return rsm.CommunicationErrorf("unreachable session %q", sessionID)

	case strings.HasPrefix(ev.Target, "#_"):
		invokeID := strings.TrimPrefix(ev.Target, "#_")
		if inv, ok := s.invocations[invokeID]; ok {
			return inv.child.Send(ctx, ev)
		}
		return rsm.CommunicationErrorf("unknown invoke target %q", invokeID)

	default:
		return rsm.ExecutionErrorf("invalid send target %q", ev.Target)
	}
}

func (s *Session) enqueueExternal(ev *rsm.Event) error {
	if err := s.external.Enqueue(ev); err != nil {
		return rsm.CommunicationErrorf("external queue: %v", err)
	}
	return nil
}

var delayPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(ms|s|m|h)?$`)

// parseDelay parses a CSS2 duration: "100ms", "1.5s", "0s". An empty string
// is no delay; a bare number is milliseconds.
func parseDelay(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	match := delayPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, rsm.ExecutionErrorf("malformed delay %q", text)
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, rsm.ExecutionErrorf("malformed delay %q", text)
	}
	unit := time.Millisecond
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}
	return time.Duration(value * float64(unit)), nil
}

