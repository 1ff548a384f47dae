// Package null implements the null datamodel (W3C SCXML B.1). The only
// expression language it accepts is the In() predicate plus the boolean
// literals; everything else evaluates to an error, which the executor turns
// into error.execution.
package null

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/datamodel"
)

// Name is the datamodel attribute value this backend serves.
const Name = "null"

func init() {
	datamodel.Register(Name, Loader())
}

// Loader returns the registry loader for the null backend.
func Loader() rsm.DataModelLoader {
	return func(ctx context.Context) (rsm.DataModel, error) {
		return New(), nil
	}
}

var errNoDatamodel = errors.New("null: the null datamodel cannot evaluate expressions")

var inPattern = regexp.MustCompile(`^In\(\s*'?([^'")\s]+)'?\s*\)$`)

// Model is the null evaluation surface.
type Model struct {
	in func(string) bool
}

func New() *Model { return &Model{} }

func (m *Model) EvaluateCondition(ctx context.Context, expression string) (bool, error) {
	expr := strings.TrimSpace(expression)
	switch expr {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if match := inPattern.FindStringSubmatch(expr); match != nil {
		if m.in == nil {
			return false, nil
		}
		return m.in(match[1]), nil
	}
	return false, fmt.Errorf("null: unsupported condition %q", expression)
}

func (m *Model) EvaluateValue(ctx context.Context, expression string) (any, error) {
	return nil, errNoDatamodel
}

func (m *Model) EvaluateString(ctx context.Context, expression string) (string, error) {
	return "", errNoDatamodel
}

func (m *Model) Assign(ctx context.Context, location string, value any) error {
	return errNoDatamodel
}

func (m *Model) ExecuteScript(ctx context.Context, source string) error {
	return errNoDatamodel
}

func (m *Model) Declare(ctx context.Context, name string, value any) error {
	return errNoDatamodel
}

func (m *Model) HasBinding(name string) bool { return false }

func (m *Model) Iterate(value any) ([]rsm.IterationItem, error) {
	return nil, errNoDatamodel
}

func (m *Model) SetCurrentEvent(event *rsm.Event) {}

func (m *Model) BindSystemVariables(sessionID, name string, ioProcessors map[string]any) error {
	return nil
}

func (m *Model) SetInPredicate(in func(stateID string) bool) { m.in = in }

func (m *Model) Close() error { return nil }

var _ rsm.DataModel = (*Model)(nil)
