// Package model holds the immutable in-memory representation of an SCXML
// document. The tree is built once by the parser (or by generated code) and
// never mutated afterwards; sessions share it freely.
package model

import (
	"fmt"
)

// MaxDepth is the maximum supported state nesting depth. Documents deeper
// than this are rejected as malformed.
const MaxDepth = 16

// Kind identifies the role of a state node.
type Kind int

const (
	KindAtomic Kind = iota
	KindCompound
	KindParallel
	KindFinal
	KindHistoryShallow
	KindHistoryDeep
)

func (k Kind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindCompound:
		return "compound"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	case KindHistoryShallow:
		return "history(shallow)"
	case KindHistoryDeep:
		return "history(deep)"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Binding is the document-level datamodel binding mode (W3C SCXML 5.3.3).
type Binding int

const (
	BindingEarly Binding = iota
	BindingLate
)

// Position is a source location carried for diagnostics.
type Position struct {
	Line   int
	Column int
}

// State is one node of the state tree.
type State struct {
	ID            string
	Kind          Kind
	Parent        *State // nil for the document root
	Children      []*State
	DocumentOrder int // pre-order DFS rank, assigned by NewDocument
	Depth         int // root is 0, assigned by NewDocument

	// Initial holds the resolved initial target IDs of a compound state.
	// Populated by the parser from the initial attribute, the <initial>
	// element, or the first child in document order.
	Initial []string

	// InitialActions are the executable content of the <initial> element's
	// transition, run when the state is entered by default entry.
	InitialActions []Action

	Transitions []*Transition

	// OnEntry and OnExit are ordered lists of handler blocks. An action
	// failure aborts only its own block.
	OnEntry [][]Action
	OnExit  [][]Action

	Data     []Data
	Invokes  []*Invoke
	DoneData *DoneData
	Pos      Position
}

func (s *State) IsAtomic() bool   { return s.Kind == KindAtomic || s.Kind == KindFinal }
func (s *State) IsCompound() bool { return s.Kind == KindCompound }
func (s *State) IsParallel() bool { return s.Kind == KindParallel }
func (s *State) IsFinal() bool    { return s.Kind == KindFinal }

func (s *State) IsHistory() bool {
	return s.Kind == KindHistoryShallow || s.Kind == KindHistoryDeep
}

// IsRoot reports whether this node represents the <scxml> element itself.
func (s *State) IsRoot() bool { return s.Parent == nil }

// Transition is an outgoing edge of a state.
type Transition struct {
	Source *State

	// Events holds the whitespace-split event descriptors. Empty means the
	// transition is eventless.
	Events []string

	Cond string

	// Targets holds the target state IDs; empty means targetless.
	Targets      []string
	TargetStates []*State // resolved by NewDocument

	Internal      bool
	Actions       []Action
	DocumentOrder int
	Pos           Position
}

// IsEventless reports whether the transition fires on the empty event.
func (t *Transition) IsEventless() bool { return len(t.Events) == 0 }

// IsTargetless reports whether the transition changes no state.
func (t *Transition) IsTargetless() bool { return len(t.Targets) == 0 }

// Data is one <data> declaration.
type Data struct {
	ID      string
	Expr    string
	Src     string
	Content string
	Pos     Position
}

// Param is a <param> child of send, invoke or donedata.
type Param struct {
	Name     string
	Expr     string
	Location string
}

// Content is a <content> child of send, invoke or donedata.
type Content struct {
	Expr  string
	Value string
}

// DoneData is the payload description of a final state.
type DoneData struct {
	Content *Content
	Params  []Param
}

// Invoke is an <invoke> declaration on a state.
type Invoke struct {
	Type        string
	TypeExpr    string
	Src         string
	SrcExpr     string
	ID          string
	IDLocation  string
	Namelist    []string
	AutoForward bool
	Params      []Param
	Content     *Content
	Finalize    []Action
	Pos         Position
}

// Document is a parsed, immutable SCXML document.
type Document struct {
	Name      string
	Datamodel string // "ecmascript", "null", or "" (defaults to null)
	Binding   Binding
	Version   string

	// Root represents the <scxml> element. Its ID is the empty string and
	// it is excluded from StateByID lookups.
	Root *State

	// States lists every named state in document order.
	States []*State

	// Script is the optional document-level <script>, run at session start.
	Script Action

	byID map[string]*State
}

// NewDocument finalizes a constructed state tree: assigns document order and
// depth, indexes states by ID, and resolves transition and initial targets.
// It returns an error for duplicate IDs, unresolved targets, or a tree deeper
// than MaxDepth. Both the parser and generated code go through here so the
// two engines agree on ordering.
func NewDocument(name, datamodel string, binding Binding, version string, root *State) (*Document, error) {
	d := &Document{
		Name:      name,
		Datamodel: datamodel,
		Binding:   binding,
		Version:   version,
		Root:      root,
		byID:      make(map[string]*State),
	}

	order := 0
	var walk func(s *State, depth int) error
	walk = func(s *State, depth int) error {
		if depth > MaxDepth {
			return fmt.Errorf("state %q exceeds maximum nesting depth %d", s.ID, MaxDepth)
		}
		s.DocumentOrder = order
		s.Depth = depth
		order++
		if s.ID != "" {
			if _, dup := d.byID[s.ID]; dup {
				return fmt.Errorf("duplicate state id %q", s.ID)
			}
			d.byID[s.ID] = s
			d.States = append(d.States, s)
		}
		for _, c := range s.Children {
			c.Parent = s
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	root.Parent = nil
	if err := walk(root, 0); err != nil {
		return nil, err
	}

	// Resolve transition targets and stamp transition document order by
	// source state.
	for _, s := range append([]*State{root}, d.States...) {
		for _, t := range s.Transitions {
			t.Source = s
			t.DocumentOrder = s.DocumentOrder
			t.TargetStates = t.TargetStates[:0]
			for _, id := range t.Targets {
				target, ok := d.byID[id]
				if !ok {
					return nil, fmt.Errorf("transition in state %q targets unknown state %q", s.ID, id)
				}
				t.TargetStates = append(t.TargetStates, target)
			}
		}
		if s.IsCompound() && len(s.Initial) == 0 && len(s.Children) > 0 {
			// Default initial state: first child in document order.
			for _, c := range s.Children {
				if !c.IsHistory() {
					s.Initial = []string{c.ID}
					break
				}
			}
		}
		for _, id := range s.Initial {
			if _, ok := d.byID[id]; !ok {
				return nil, fmt.Errorf("state %q declares unknown initial target %q", s.ID, id)
			}
		}
	}
	return d, nil
}

// StateByID returns the named state, or nil.
func (d *Document) StateByID(id string) *State { return d.byID[id] }

// InitialTargets returns the resolved initial states of s. For the root and
// compound states this is the Initial list; for parallel states it is every
// child region.
func (d *Document) InitialTargets(s *State) []*State {
	if s.IsParallel() {
		out := make([]*State, 0, len(s.Children))
		for _, c := range s.Children {
			if !c.IsHistory() {
				out = append(out, c)
			}
		}
		return out
	}
	out := make([]*State, 0, len(s.Initial))
	for _, id := range s.Initial {
		if t := d.byID[id]; t != nil {
			out = append(out, t)
		}
	}
	return out
}
