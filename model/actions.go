package model

// Action is the closed variant over SCXML executable content. Every concrete
// action carries the attributes of its source element; the interpreter
// dispatches by type switch and the code generator emits a straight-line
// body per action. The isAction marker keeps the set closed to this package.
type Action interface {
	isAction()
}

// Raise raises an internal event (SCXML 6.4).
type Raise struct {
	Event string
	Pos   Position
}

// Send sends an event to a destination (SCXML 6.2).
type Send struct {
	Event      string
	EventExpr  string
	Target     string
	TargetExpr string
	Type       string
	TypeExpr   string
	ID         string
	IDLocation string
	Delay      string
	DelayExpr  string
	Namelist   []string
	Params     []Param
	Content    *Content
	Pos        Position
}

// CancelAction cancels a pending delayed send (SCXML 6.3).
type CancelAction struct {
	SendID     string
	SendIDExpr string
	Pos        Position
}

// Assign changes the value of a datamodel location (SCXML 5.4).
type Assign struct {
	Location string
	Expr     string
	Content  string // inline content fallback when expr is absent
	Pos      Position
}

// Log emits a message to the host log sink (SCXML 4.8).
type Log struct {
	Label string
	Expr  string
	Pos   Position
}

// Branch is one cond/body arm of an If.
type Branch struct {
	Cond string
	Body []Action
}

// If is conditional execution with elseif/else arms (SCXML 4.3).
type If struct {
	Branches []Branch // the if arm first, then each elseif in order
	Else     []Action
	Pos      Position
}

// Foreach iterates over an array value (SCXML 4.6).
type Foreach struct {
	Array string
	Item  string
	Index string
	Body  []Action
	Pos   Position
}

// ScriptAction runs a script in the datamodel scope (SCXML 5.8).
type ScriptAction struct {
	Source string
	Pos    Position
}

func (*Raise) isAction()        {}
func (*Send) isAction()         {}
func (*CancelAction) isAction() {}
func (*Assign) isAction()       {}
func (*Log) isAction()          {}
func (*If) isAction()           {}
func (*Foreach) isAction()      {}
func (*ScriptAction) isAction() {}
