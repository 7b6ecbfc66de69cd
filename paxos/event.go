package paxos

// EventType discriminates inputs to the core.
type EventType int8

const (
	EventMessage EventType = iota
	EventTimeout
)

// Event is one input fed to a role by the driver: either an inbound message
// or a timer expiry.
type Event struct {
	Type  EventType
	From  NodeID
	Msg   Message
	Timer TimerID
}

// MessageEvent wraps an inbound message as an Event.
func MessageEvent(from NodeID, msg Message) Event {
	return Event{Type: EventMessage, From: from, Msg: msg}
}

// TimeoutEvent wraps a timer expiry as an Event.
func TimeoutEvent(id TimerID) Event {
	return Event{Type: EventTimeout, Timer: id}
}

// ActionType discriminates outputs of the core.
type ActionType int8

const (
	ActionSend ActionType = iota
	ActionSetTimer
	ActionCancelTimer
	ActionProposeValue
	ActionChoseValue
)

var actionTypeString = [...]string{
	"Send",
	"SetTimer",
	"CancelTimer",
	"ProposeValue",
	"ChoseValue",
}

// String representation of ActionType
func (a ActionType) String() string {
	if int(a) < len(actionTypeString) {
		return actionTypeString[a]
	}
	return "Unknown"
}

// Action is one output the driver must honor. Which fields are meaningful
// depends on the type:
//
//	Send:         To, From, Msg    transmit Msg to node To
//	SetTimer:     Timer, MS        deliver a Timeout{Timer} after >= MS ms
//	CancelTimer:  Timer            stop delivering Timeout{Timer}
//	ProposeValue: Value            the proposer's Phase 1 outcome, informational
//	ChoseValue:   Value            a decision; surface it to the application
type Action struct {
	Type  ActionType
	To    NodeID
	From  NodeID
	Msg   Message
	Timer TimerID
	MS    int64
	Value Value
}

// SendTo builds a Send action.
func SendTo(to, from NodeID, msg Message) Action {
	return Action{Type: ActionSend, To: to, From: from, Msg: msg}
}

// SetTimer builds a SetTimer action.
func SetTimer(id TimerID, ms int64) Action {
	return Action{Type: ActionSetTimer, Timer: id, MS: ms}
}

// CancelTimer builds a CancelTimer action.
func CancelTimer(id TimerID) Action {
	return Action{Type: ActionCancelTimer, Timer: id}
}

// ProposeValue builds the informational Phase 1 outcome action.
func ProposeValue(v Value) Action {
	return Action{Type: ActionProposeValue, Value: v}
}

// ChoseValue builds a decision action.
func ChoseValue(v Value) Action {
	return Action{Type: ActionChoseValue, Value: v}
}

// Role is the event-handler contract every Paxos role implements. Handlers
// run to completion, never block, and have no effect beyond mutating the
// role's own state and returning actions. The driver must serialize calls
// per role instance.
type Role interface {
	// OnInit emits any actions the role produces right after creation.
	OnInit() []Action
	// OnMessage handles one inbound protocol message.
	OnMessage(from NodeID, msg Message) []Action
	// OnTimeout handles one timer expiry.
	OnTimeout(id TimerID) []Action
}

// Dispatch feeds one event to a role through the matching entry point.
func Dispatch(r Role, e Event) []Action {
	switch e.Type {
	case EventMessage:
		return r.OnMessage(e.From, e.Msg)
	case EventTimeout:
		return r.OnTimeout(e.Timer)
	default:
		return nil
	}
}
