// Package ecmascript implements the ECMAScript datamodel (W3C SCXML B.2) on
// top of goja. One goja runtime is created per session; the session drives
// it from its single worker, so no locking is needed around evaluation.
package ecmascript

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/datamodel"
)

// Name is the datamodel attribute value this backend serves.
const Name = "ecmascript"

const valueSlot = "__rsm_assign_value"

func init() {
	datamodel.Register(Name, Loader())
}

// Loader returns the registry loader for the ECMAScript backend.
func Loader() rsm.DataModelLoader {
	return func(ctx context.Context) (rsm.DataModel, error) {
		return New(), nil
	}
}

// Model is a session-scoped ECMAScript evaluation surface.
type Model struct {
	rt       *goja.Runtime
	current  *rsm.Event
	eventObj goja.Value
	in       func(string) bool
	bound    bool
}

func New() *Model {
	m := &Model{rt: goja.New(), eventObj: goja.Undefined()}
	m.installEventAccessor()
	_ = m.rt.Set("In", func(id string) bool {
		if m.in == nil {
			return false
		}
		return m.in(id)
	})
	return m
}

func (m *Model) installEventAccessor() {
	getter := m.rt.ToValue(func(goja.FunctionCall) goja.Value {
		return m.eventObj
	})
	setter := m.rt.ToValue(func(goja.FunctionCall) goja.Value {
		panic(m.rt.NewTypeError("%s is read-only", rsm.EventSystemVariable))
	})
	_ = m.rt.GlobalObject().DefineAccessorProperty(
		rsm.EventSystemVariable, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// defineReadOnly installs an immutable system variable whose assignment
// throws, so user scripts see error.execution rather than a silent no-op.
func (m *Model) defineReadOnly(name string, value any) error {
	v := m.rt.ToValue(value)
	getter := m.rt.ToValue(func(goja.FunctionCall) goja.Value { return v })
	setter := m.rt.ToValue(func(goja.FunctionCall) goja.Value {
		panic(m.rt.NewTypeError("%s is read-only", name))
	})
	return m.rt.GlobalObject().DefineAccessorProperty(
		name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func (m *Model) BindSystemVariables(sessionID, name string, ioProcessors map[string]any) error {
	if m.bound {
		return errors.New("ecmascript: system variables already bound")
	}
	if err := m.defineReadOnly(rsm.SessionIDSystemVariable, sessionID); err != nil {
		return err
	}
	if err := m.defineReadOnly(rsm.NameSystemVariable, name); err != nil {
		return err
	}
	if err := m.defineReadOnly(rsm.IOProcessorsSystemVariable, ioProcessors); err != nil {
		return err
	}
	m.bound = true
	return nil
}

func (m *Model) SetInPredicate(in func(stateID string) bool) { m.in = in }

func (m *Model) SetCurrentEvent(event *rsm.Event) {
	m.current = event
	if event == nil {
		m.eventObj = goja.Undefined()
		return
	}
	obj := m.rt.NewObject()
	_ = obj.Set("name", event.Name)
	_ = obj.Set("type", string(event.Type))
	_ = obj.Set("sendid", event.SendID)
	_ = obj.Set("origin", event.Origin)
	_ = obj.Set("origintype", event.OriginType)
	_ = obj.Set("invokeid", event.InvokeID)
	if event.Data == nil {
		_ = obj.Set("data", goja.Undefined())
	} else {
		_ = obj.Set("data", m.rt.ToValue(event.Data))
	}
	m.eventObj = obj
}

func (m *Model) EvaluateValue(ctx context.Context, expression string) (any, error) {
	v, err := m.run(expression, true)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

func (m *Model) EvaluateCondition(ctx context.Context, expression string) (bool, error) {
	v, err := m.run(expression, true)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

func (m *Model) EvaluateString(ctx context.Context, expression string) (string, error) {
	v, err := m.run(expression, true)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// run evaluates an expression, preferring value position (parenthesized) so
// object literals evaluate as expressions rather than blocks. Compilation is
// attempted before execution so the fallback never runs side effects twice.
func (m *Model) run(expression string, wrap bool) (goja.Value, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, errors.New("ecmascript: empty expression")
	}
	var prog *goja.Program
	var err error
	if wrap {
		prog, err = goja.Compile("", "("+expression+"\n)", false)
	}
	if prog == nil || err != nil {
		prog, err = goja.Compile("", expression, false)
	}
	if err != nil {
		return nil, fmt.Errorf("ecmascript: %w", err)
	}
	v, err := m.rt.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("ecmascript: %w", err)
	}
	return v, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*`)

func rootIdentifier(location string) string {
	return identPattern.FindString(strings.TrimSpace(location))
}

func (m *Model) Assign(ctx context.Context, location string, value any) error {
	root := rootIdentifier(location)
	if root == "" {
		return fmt.Errorf("ecmascript: invalid assignment location %q", location)
	}
	if !m.HasBinding(root) {
		return fmt.Errorf("ecmascript: assignment to undeclared location %q", location)
	}
	if err := m.rt.Set(valueSlot, m.rt.ToValue(value)); err != nil {
		return fmt.Errorf("ecmascript: %w", err)
	}
	if _, err := m.rt.RunString(strings.TrimSpace(location) + " = " + valueSlot + ";"); err != nil {
		return fmt.Errorf("ecmascript: assign to %q: %w", location, err)
	}
	return nil
}

func (m *Model) ExecuteScript(ctx context.Context, source string) error {
	if _, err := m.rt.RunString(source); err != nil {
		return fmt.Errorf("ecmascript: script: %w", err)
	}
	return nil
}

func (m *Model) Declare(ctx context.Context, name string, value any) error {
	var v goja.Value
	if value == nil {
		v = goja.Undefined()
	} else {
		v = m.rt.ToValue(value)
	}
	if err := m.rt.GlobalObject().Set(name, v); err != nil {
		return fmt.Errorf("ecmascript: declare %q: %w", name, err)
	}
	return nil
}

func (m *Model) HasBinding(name string) bool {
	return m.rt.GlobalObject().Get(name) != nil
}

func (m *Model) Iterate(value any) ([]rsm.IterationItem, error) {
	if value == nil {
		return nil, errors.New("ecmascript: foreach array is not iterable")
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("ecmascript: foreach array is not iterable (got %T)", value)
	}
	// Shallow copy so mutation of the array inside the loop body does not
	// affect the iteration (W3C 4.6).
	items := make([]rsm.IterationItem, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rsm.IterationItem{Value: rv.Index(i).Interface(), Index: i}
	}
	return items, nil
}

func (m *Model) Close() error {
	m.current = nil
	m.eventObj = goja.Undefined()
	return nil
}

var _ rsm.DataModel = (*Model)(nil)
