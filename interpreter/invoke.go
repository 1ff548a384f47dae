package interpreter

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/parser"
)

// isSCXMLInvokeType reports whether typ names the SCXML invoke service.
func isSCXMLInvokeType(typ string) bool {
	switch typ {
	case "", "scxml", "http://www.w3.org/TR/scxml/", "http://www.w3.org/TR/scxml":
		return true
	}
	return false
}

// runPendingInvokes starts invocations on states that were entered this
// macrostep and are still active (W3C: invoke at macrostep end).
func (s *Session) runPendingInvokes(ctx context.Context) {
	pending := s.pendingInvokes
	s.pendingInvokes = nil
	for _, st := range pending {
		if !s.config.Contains(st) {
			continue
		}
		for _, inv := range st.Invokes {
			if err := s.startInvoke(ctx, st, inv); err != nil {
				s.enqueueError(rsm.ErrorExecution, err)
			}
		}
	}
}

func (s *Session) startInvoke(ctx context.Context, st *model.State, inv *model.Invoke) error {
	ctx, span := s.tracer.Start(ctx, "session.invoke",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("state.id", st.ID),
		))
	defer span.End()

	typ := inv.Type
	if typ == "" && inv.TypeExpr != "" {
		value, err := s.dm.EvaluateString(ctx, inv.TypeExpr)
		if err != nil {
			return err
		}
		typ = value
	}
	if !isSCXMLInvokeType(typ) {
		return rsm.ExecutionErrorf("unsupported invoke type %q", typ)
	}

	invokeID := inv.ID
	if invokeID == "" {
		// W3C 6.4.1: platform ids take the form stateid.platformid.
		invokeID = st.ID + "." + uuid.NewString()
	}
	if inv.IDLocation != "" {
		if err := s.dm.Assign(ctx, inv.IDLocation, invokeID); err != nil {
			return err
		}
	}

	childDoc, err := s.resolveInvokeDocument(ctx, inv)
	if err != nil {
		return err
	}

	data := make(map[string]any)
	for _, location := range inv.Namelist {
		value, verr := s.dm.EvaluateValue(ctx, location)
		if verr != nil {
			return verr
		}
		data[location] = value
	}
	for _, p := range inv.Params {
		value, verr := s.evaluateParam(ctx, p)
		if verr != nil {
			return verr
		}
		data[p.Name] = value
	}

	child, err := New(childDoc,
		WithLogger(s.logger),
		WithClock(s.clock),
		WithDocumentLoader(s.docLoader),
		WithInitialData(data),
		withParent(s, invokeID),
	)
	if err != nil {
		return rsm.ExecutionErrorf("invoke %s: %v", invokeID, err)
	}
	if err := child.Start(s.ctx); err != nil {
		return rsm.ExecutionErrorf("invoke %s: %v", invokeID, err)
	}

	s.invocations[invokeID] = &invocation{id: invokeID, inv: inv, child: child, state: st}
	s.logger.Debug("invocation started", "session", s.id, "invokeid", invokeID, "child", child.SessionID())
	return nil
}

// resolveInvokeDocument loads the child document from src, srcexpr, or
// inline content.
func (s *Session) resolveInvokeDocument(ctx context.Context, inv *model.Invoke) (*model.Document, error) {
	src := inv.Src
	if src == "" && inv.SrcExpr != "" {
		value, err := s.dm.EvaluateString(ctx, inv.SrcExpr)
		if err != nil {
			return nil, err
		}
		src = value
	}
	if src != "" {
		if s.docLoader == nil {
			return nil, rsm.ExecutionErrorf("invoke src %q: no document loader configured", src)
		}
		return s.docLoader(ctx, src)
	}
	if inv.Content != nil {
		text := inv.Content.Value
		if inv.Content.Expr != "" {
			value, err := s.dm.EvaluateString(ctx, inv.Content.Expr)
			if err != nil {
				return nil, err
			}
			text = value
		}
		if !strings.Contains(text, "<scxml") {
			return nil, rsm.ExecutionErrorf("invoke content is not an scxml document")
		}
		doc, result, err := parser.ParseBytes([]byte(text), "invoke")
		if err != nil {
			return nil, rsm.ExecutionErrorf("invoke content: %v", err)
		}
		if result.HasErrors() {
			return nil, rsm.ExecutionErrorf("invoke content: %s", result.Diagnostics[0].Message)
		}
		return doc, nil
	}
	return nil, rsm.ExecutionErrorf("invoke requires src, srcexpr or content")
}

// cancelInvokes terminates the invocations owned by an exiting state. A
// cancelled child never reports done.invoke.
func (s *Session) cancelInvokes(ctx context.Context, st *model.State) {
	for id, inv := range s.invocations {
		if inv.state != st {
			continue
		}
		_ = inv.child.Stop(context.Background())
		delete(s.invocations, id)
		s.logger.Debug("invocation cancelled", "session", s.id, "invokeid", id)
	}
}
