// Package interpreter executes SCXML documents directly against the shared
// semantics helpers in algo. It is the reference engine: generated machines
// must be observationally identical to a session running here over the same
// document.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/datamodel"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/queue"
)

// DocumentLoader resolves an invoke src attribute to a parsed document.
type DocumentLoader func(ctx context.Context, src string) (*model.Document, error)

// Observer receives state entry/exit and event notifications. Used by the
// conformance harness to compare engine traces and by tests to assert
// ordering.
type Observer interface {
	StateEntered(id string)
	StateExited(id string)
	EventProcessed(ev *rsm.Event)
}

// Session is a live SCXML session. All fields are owned by the session
// worker goroutine except the queues and scheduler, which are thread-safe.
type Session struct {
	id   string
	name string
	doc  *model.Document

	dm       rsm.DataModel
	dmLoader rsm.DataModelLoader
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    rsm.Clock
	observer Observer
	dispatch Dispatch
	compiled *Compiled

	internal *queue.Queue
	external *queue.ExternalQueue
	sched    *queue.Scheduler

	config  algo.StateSet
	history map[*model.State][]*model.State

	invocations    map[string]*invocation
	pendingInvokes []*model.State
	dataDone       map[*model.State]bool
	initialData    map[string]any

	parent         *Session
	parentInvokeID string
	docLoader      DocumentLoader

	extCapacity int
	running     atomic.Bool
	started     atomic.Bool
	cancelled   atomic.Bool
	done        chan struct{}
	cancel      context.CancelFunc
	ctx         context.Context

	mu sync.Mutex // guards config and history for cross-goroutine reads
}

type invocation struct {
	id    string
	inv   *model.Invoke
	child *Session
	state *model.State
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option        { return func(s *Session) { s.logger = l } }
func WithClock(c rsm.Clock) Option            { return func(s *Session) { s.clock = c } }
func WithDataModel(dm rsm.DataModel) Option   { return func(s *Session) { s.dm = dm } }
func WithObserver(o Observer) Option          { return func(s *Session) { s.observer = o } }
func WithDispatch(d Dispatch) Option          { return func(s *Session) { s.dispatch = d } }
func WithCompiled(c *Compiled) Option         { return func(s *Session) { s.compiled = c } }
func WithDocumentLoader(l DocumentLoader) Option {
	return func(s *Session) { s.docLoader = l }
}
func WithDataModelLoader(l rsm.DataModelLoader) Option {
	return func(s *Session) { s.dmLoader = l }
}
func WithExternalCapacity(n int) Option { return func(s *Session) { s.extCapacity = n } }

// WithInitialData seeds datamodel values, overriding <data> initializers of
// the same id. Invoke params and namelist flow into child sessions this way.
func WithInitialData(data map[string]any) Option {
	return func(s *Session) { s.initialData = data }
}

func withParent(parent *Session, invokeID string) Option {
	return func(s *Session) {
		s.parent = parent
		s.parentInvokeID = invokeID
	}
}

// New creates a session over a parsed document. The session does not run
// until Start.
func New(doc *model.Document, opts ...Option) (*Session, error) {
	if doc == nil {
		return nil, errors.New("interpreter: nil document")
	}
	s := &Session{
		id:          uuid.NewString(),
		name:        doc.Name,
		doc:         doc,
		logger:      slog.Default(),
		tracer:      otel.Tracer("interpreter"),
		clock:       rsm.NewSystemClock(),
		internal:    queue.NewQueue(),
		config:      make(algo.StateSet),
		history:     make(map[*model.State][]*model.State),
		invocations: make(map[string]*invocation),
		dataDone:    make(map[*model.State]bool),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatch == nil {
		s.dispatch = dynamicDispatch{}
	}
	s.external = queue.NewExternalQueue(s.extCapacity)
	if s.dm == nil {
		loader := s.dmLoader
		if loader == nil {
			var err error
			loader, err = datamodel.Lookup(doc.Datamodel)
			if err != nil {
				return nil, err
			}
		}
		dm, err := loader(context.Background())
		if err != nil {
			return nil, fmt.Errorf("interpreter: datamodel: %w", err)
		}
		s.dm = dm
	}
	return s, nil
}

func (s *Session) SessionID() string       { return s.id }
func (s *Session) Name() string            { return s.name }
func (s *Session) DataModel() rsm.DataModel { return s.dm }
func (s *Session) Done() <-chan struct{}   { return s.done }
func (s *Session) Running() bool           { return s.running.Load() }

// Configuration returns the active state IDs in document order.
func (s *Session) Configuration() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, st := range s.config.SortedDocumentOrder() {
		if st.ID != "" {
			out = append(out, st.ID)
		}
	}
	return out
}

// In reports whether the named state is active. It backs the datamodel's
// In() predicate.
func (s *Session) In(stateID string) bool {
	st := s.doc.StateByID(stateID)
	if st == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Contains(st)
}

// Start initializes the datamodel, enters the initial configuration, and
// launches the session worker.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("interpreter: session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.sched = queue.NewScheduler(s.clock, s.deliverScheduled)

	s.dm.SetInPredicate(s.In)
	ioProcessors := map[string]any{
		rsm.SCXMLEventProcessorURI: map[string]any{
			"location": "#_scxml_" + s.id,
		},
	}
	if err := s.dm.BindSystemVariables(s.id, s.name, ioProcessors); err != nil {
		return fmt.Errorf("interpreter: bind system variables: %w", err)
	}
	s.initializeDatamodel(s.ctx)

	if script, ok := s.doc.Script.(*model.ScriptAction); ok && script != nil {
		if err := s.dm.ExecuteScript(s.ctx, script.Source); err != nil {
			s.enqueueError(rsm.ErrorExecution, err)
		}
	}

	s.running.Store(true)
	go s.run()
	return nil
}

// Stop cancels the session. Running invocations terminate, the external
// queue rejects further events, and no done.invoke is reported upward.
func (s *Session) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return errors.New("interpreter: session not started")
	}
	s.cancelled.Store(true)
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send places an external event on the session's queue.
func (s *Session) Send(ctx context.Context, ev *rsm.Event) error {
	if ev.Type == "" {
		ev.Type = rsm.EventTypeExternal
	}
	if err := s.external.Enqueue(ev); err != nil {
		return rsm.CommunicationErrorf("session %s: %v", s.id, err)
	}
	return nil
}

// Cancel cancels a delayed send by ID; unknown IDs are a silent no-op.
func (s *Session) Cancel(ctx context.Context, sendID string) error {
	if s.sched == nil {
		return nil
	}
	s.sched.Cancel(sendID)
	return nil
}

// deliverScheduled is the scheduler's delivery callback. Timers only ever
// enqueue; the worker picks the event up at its next external wait.
func (s *Session) deliverScheduled(ev *rsm.Event) {
	if err := s.routeEvent(context.Background(), ev); err != nil {
		var perr *rsm.PlatformError
		if errors.As(err, &perr) {
			s.internal.Enqueue(rsm.NewErrorEvent(perr.EventName, perr))
		} else {
			s.internal.Enqueue(rsm.NewErrorEvent(rsm.ErrorCommunication, err))
		}
	}
}

// run is the session worker: initial entry, the macrostep loop, and final
// teardown all happen here.
func (s *Session) run() {
	ctx := s.ctx
	defer func() {
		s.external.Close()
		s.sched.Stop()
		_ = s.dm.Close()
		close(s.done)
	}()

	initial := &model.Transition{
		Source:       s.doc.Root,
		TargetStates: s.doc.InitialTargets(s.doc.Root),
	}
	for _, t := range initial.TargetStates {
		initial.Targets = append(initial.Targets, t.ID)
	}
	s.enterStates(ctx, []*model.Transition{initial})

	s.mainLoop(ctx)
	s.exitInterpreter(ctx)
}

func (s *Session) mainLoop(ctx context.Context) {
	for s.running.Load() {
		s.drainMacrostep(ctx)
		if !s.running.Load() {
			return
		}

		// Invoke phase: start invocations for states that became active
		// this macrostep and are still active.
		s.runPendingInvokes(ctx)
		if s.internal.Len() > 0 {
			continue
		}

		// Macrostep quiescence: _event unbinds until the next event.
		s.dm.SetCurrentEvent(nil)

		ev, err := s.external.Wait(ctx)
		if err != nil {
			s.running.Store(false)
			return
		}
		s.processExternalEvent(ctx, ev)
	}
}

// drainMacrostep runs eventless microsteps to quiescence, interleaved with
// draining the internal queue, per the W3C macrostep definition.
func (s *Session) drainMacrostep(ctx context.Context) {
	for s.running.Load() {
		transitions := s.selectTransitions(ctx, "")
		if len(transitions) == 0 {
			ev, ok := s.internal.Dequeue()
			if !ok {
				return
			}
			s.dm.SetCurrentEvent(ev)
			if s.observer != nil {
				s.observer.EventProcessed(ev)
			}
			transitions = s.selectTransitions(ctx, ev.Name)
			if len(transitions) == 0 {
				continue
			}
		}
		s.microstep(ctx, transitions)
	}
}

func (s *Session) processExternalEvent(ctx context.Context, ev *rsm.Event) {
	ctx, span := s.tracer.Start(ctx, "session.external_event",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("event.name", ev.Name),
		))
	defer span.End()

	s.dm.SetCurrentEvent(ev)
	if s.observer != nil {
		s.observer.EventProcessed(ev)
	}

	// Finalize and bookkeeping for events arriving from invoked children.
	if ev.InvokeID != "" {
		if inv, ok := s.invocations[ev.InvokeID]; ok {
			if len(inv.inv.Finalize) > 0 {
				s.executeBlock(ctx, inv.inv.Finalize)
			}
			if ev.Name == "done.invoke."+ev.InvokeID {
				delete(s.invocations, ev.InvokeID)
			}
		}
	}
	for _, inv := range s.invocations {
		if inv.inv.AutoForward {
			forwarded := *ev
			_ = inv.child.Send(ctx, &forwarded)
		}
	}

	transitions := s.selectTransitions(ctx, ev.Name)
	if len(transitions) > 0 {
		s.microstep(ctx, transitions)
	}
}

// selectTransitions delegates to the shared selector; an empty event name
// selects eventless transitions.
func (s *Session) selectTransitions(ctx context.Context, eventName string) []*model.Transition {
	match := func(t *model.Transition) bool {
		return s.dispatch.Matches(t, eventName)
	}
	cond := func(t *model.Transition) bool {
		ok, err := s.dm.EvaluateCondition(ctx, t.Cond)
		if err != nil {
			s.enqueueError(rsm.ErrorExecution, err)
			return false
		}
		return ok
	}
	return algo.SelectTransitions(s.config, match, cond, s.historyLookup, s.dispatch)
}

func (s *Session) historyLookup(h *model.State) ([]*model.State, bool) {
	stored, ok := s.history[h]
	return stored, ok
}

// enqueueError places an error.* event on the internal queue.
func (s *Session) enqueueError(name string, cause error) {
	var perr *rsm.PlatformError
	if errors.As(cause, &perr) {
		name = perr.EventName
	}
	s.logger.Debug("platform error", "session", s.id, "event", name, "cause", cause)
	s.internal.Enqueue(rsm.NewErrorEvent(name, cause))
}

// initializeDatamodel declares <data> items. Early binding initializes the
// whole document up front; late binding defers each state's values to first
// entry but pre-declares the ids so typeof checks see them.
func (s *Session) initializeDatamodel(ctx context.Context) {
	s.initializeStateData(ctx, s.doc.Root)
	s.dataDone[s.doc.Root] = true
	for _, st := range s.doc.States {
		if s.doc.Binding == model.BindingEarly {
			s.initializeStateData(ctx, st)
			s.dataDone[st] = true
		} else {
			for _, d := range st.Data {
				_ = s.dm.Declare(ctx, d.ID, nil)
			}
		}
	}
	for id, value := range s.initialData {
		_ = s.dm.Declare(ctx, id, value)
	}
}

func (s *Session) initializeStateData(ctx context.Context, st *model.State) {
	for _, d := range st.Data {
		var value any
		var err error
		switch {
		case d.Expr != "":
			value, err = s.dm.EvaluateValue(ctx, d.Expr)
		case d.Src != "":
			err = rsm.ExecutionErrorf("data %q: external src is not supported", d.ID)
		case d.Content != "":
			value, err = s.dm.EvaluateValue(ctx, d.Content)
			if err != nil {
				// Non-expression content loads as a literal string.
				value, err = d.Content, nil
			}
		}
		if err != nil {
			s.enqueueError(rsm.ErrorExecution, err)
			value = nil
		}
		if derr := s.dm.Declare(ctx, d.ID, value); derr != nil {
			s.enqueueError(rsm.ErrorExecution, derr)
		}
	}
}

// exitInterpreter runs the final onexit handlers, cancels invocations, and
// reports done.invoke to the parent when the session reached a top-level
// final state (W3C exitInterpreter).
func (s *Session) exitInterpreter(ctx context.Context) {
	s.mu.Lock()
	states := algo.ExitOrder(s.config.SortedDocumentOrder())
	s.mu.Unlock()

	var topFinal *model.State
	for _, st := range states {
		for i := range st.OnExit {
			s.executeStateBlock(ctx, st, blockExit, i)
		}
		s.cancelInvokes(ctx, st)
		if st.IsFinal() && st.Parent != nil && st.Parent.IsRoot() {
			topFinal = st
		}
		s.mu.Lock()
		s.config.Remove(st)
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.StateExited(st.ID)
		}
	}

	if topFinal != nil && s.parent != nil && !s.cancelled.Load() {
		ev := rsm.NewEvent("done.invoke."+s.parentInvokeID, rsm.EventTypeExternal)
		ev.InvokeID = s.parentInvokeID
		ev.Origin = "#_scxml_" + s.id
		ev.OriginType = rsm.SCXMLEventProcessorURI
		if topFinal.DoneData != nil {
			if data, err := s.evaluateDoneData(ctx, topFinal.DoneData); err == nil {
				ev.Data = data
			}
		}
		_ = s.parent.Send(context.Background(), ev)
	}
}

var _ rsm.Session = (*Session)(nil)
