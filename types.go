package rsm

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// SCXMLEventProcessorURI identifies the SCXML Event I/O Processor
// (W3C SCXML C.1). It is the default type for <send> and the origintype
// of events it delivers.
const SCXMLEventProcessorURI = "http://www.w3.org/TR/scxml/#SCXMLEventProcessor"

// System variable names (W3C SCXML 5.10).
const (
	EventSystemVariable        = "_event"
	SessionIDSystemVariable    = "_sessionid"
	NameSystemVariable         = "_name"
	IOProcessorsSystemVariable = "_ioprocessors"
)

// Well-known error event names (W3C SCXML 8.1).
const (
	ErrorExecution     = "error.execution"
	ErrorCommunication = "error.communication"
)

// EventType classifies how an event entered the session.
type EventType string

const (
	EventTypeInternal EventType = "internal"
	EventTypeExternal EventType = "external"
	EventTypePlatform EventType = "platform"
)

// Event represents an SCXML event as defined in the W3C specification.
type Event struct {
	ID         string    `json:"id"`                   // Unique event ID (ULID, monotonic per session)
	Name       string    `json:"name"`                 // Event name for descriptor matching
	Type       EventType `json:"type"`                 // Internal, external, or platform
	Data       any       `json:"data"`                 // Event data payload
	SendID     string    `json:"sendid,omitempty"`     // ID from the originating send element
	Origin     string    `json:"origin,omitempty"`     // Origin of external events (#_scxml_<sessionid>)
	OriginType string    `json:"origintype,omitempty"` // I/O processor type URI of the origin
	InvokeID   string    `json:"invokeid,omitempty"`   // Set on events from invoked sessions
	Target     string    `json:"target,omitempty"`     // Target URI from the original send
	TargetType string    `json:"targettype,omitempty"` // I/O processor type URI from the send
	Timestamp  time.Time `json:"timestamp"`            // When the event was created
}

// NewEvent creates an event with a fresh ID and the given name and type.
func NewEvent(name string, typ EventType) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Name:      name,
		Type:      typ,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent creates a platform error event. name should be one of the
// error.* event names; the cause message becomes the event data.
func NewErrorEvent(name string, cause error) *Event {
	ev := NewEvent(name, EventTypePlatform)
	if cause != nil {
		ev.Data = cause.Error()
	}
	return ev
}

// IsError reports whether the event is a platform error event.
func (e *Event) IsError() bool {
	return e.Type == EventTypePlatform && len(e.Name) >= 5 && e.Name[:5] == "error"
}

// PlatformError represents a failure that the platform reports to the
// running session as an error event rather than aborting it.
type PlatformError struct {
	EventName string         // The error event name (error.execution, error.communication)
	Message   string         // Error message
	Data      map[string]any // Additional error data (element, location, etc.)
	Cause     error          // Wrapped underlying error
}

func (e *PlatformError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

var _ error = (*PlatformError)(nil)

// ExecutionErrorf builds a PlatformError that maps to error.execution.
func ExecutionErrorf(format string, args ...any) *PlatformError {
	return &PlatformError{EventName: ErrorExecution, Message: fmt.Sprintf(format, args...)}
}

// CommunicationErrorf builds a PlatformError that maps to error.communication.
func CommunicationErrorf(format string, args ...any) *PlatformError {
	return &PlatformError{EventName: ErrorCommunication, Message: fmt.Sprintf(format, args...)}
}

// IterationItem is one element produced by DataModel.Iterate.
type IterationItem struct {
	Value any
	Index int
}

// DataModel is the evaluation surface a datamodel language backend must
// expose. Implementations are scoped to one session and are not safe for
// concurrent use; the session drives them from its single worker.
//
// Every method returns structured errors; the executor converts them into
// error.execution events. Implementations never panic across this boundary.
type DataModel interface {
	// EvaluateValue evaluates a value expression and returns the result.
	EvaluateValue(ctx context.Context, expression string) (any, error)

	// EvaluateCondition evaluates a boolean expression (transition cond,
	// if/elseif cond).
	EvaluateCondition(ctx context.Context, expression string) (bool, error)

	// EvaluateString evaluates an expression and coerces the result to a
	// string (log expr, eventexpr, delayexpr, sendidexpr).
	EvaluateString(ctx context.Context, expression string) (string, error)

	// Assign assigns a value to a location expression. The location must be
	// a declared, writable lvalue in the datamodel language.
	Assign(ctx context.Context, location string, value any) error

	// ExecuteScript runs a script in the session scope.
	ExecuteScript(ctx context.Context, source string) error

	// Declare introduces a datamodel variable, overwriting any previous
	// binding of the same name.
	Declare(ctx context.Context, name string, value any) error

	// HasBinding reports whether name is declared in the session scope.
	HasBinding(name string) bool

	// Iterate produces a stable snapshot of an array value for foreach.
	// Returns an error if the value is not iterable.
	Iterate(value any) ([]IterationItem, error)

	// SetCurrentEvent binds the _event system variable. A nil event unbinds
	// it.
	SetCurrentEvent(event *Event)

	// BindSystemVariables installs _sessionid, _name and _ioprocessors.
	// Called once per session; the variables are immutable afterwards and
	// user assignment to them fails.
	BindSystemVariables(sessionID, name string, ioProcessors map[string]any) error

	// SetInPredicate installs the In(stateId) predicate backing function.
	// The predicate must reflect the live configuration.
	SetInPredicate(in func(stateID string) bool)

	// Close releases the backend.
	Close() error
}

// DataModelLoader constructs a datamodel backend for a session.
type DataModelLoader func(ctx context.Context) (DataModel, error)

// EventProcessor is the abstract I/O processor interface (W3C SCXML C).
// The built-in SCXML processor routes events between local sessions; hosts
// may register processors for other type URIs.
type EventProcessor interface {
	// Send delivers a fully-formed event. All datamodel evaluation has
	// already happened; implementations handle transport only. A transport
	// failure maps to error.communication.
	Send(ctx context.Context, event *Event) error

	// Location returns the address external entities can use to reach the
	// given session through this processor. Used to populate _ioprocessors.
	Location(sessionID string) string

	// Type returns the I/O processor type URI.
	Type() string
}

// Session is a live state machine instance.
type Session interface {
	// SessionID returns the unique session identifier.
	SessionID() string

	// Name returns the document name, if any.
	Name() string

	// Start enters the initial configuration and begins processing events.
	Start(ctx context.Context) error

	// Stop cancels the session: running invocations are terminated and no
	// further events are accepted.
	Stop(ctx context.Context) error

	// Send places an external event on the session's external queue.
	Send(ctx context.Context, event *Event) error

	// Cancel cancels a delayed send by its send ID. Unknown or already
	// fired IDs are a silent no-op.
	Cancel(ctx context.Context, sendID string) error

	// Configuration returns the IDs of the currently active states in
	// document order.
	Configuration() []string

	// In reports whether the state with the given ID is active.
	In(stateID string) bool

	// Running reports whether the session is still processing events.
	Running() bool

	// Done is closed when the session has terminated.
	Done() <-chan struct{}

	// DataModel returns the session's datamodel backend.
	DataModel() DataModel
}
