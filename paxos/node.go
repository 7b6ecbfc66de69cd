package paxos

// MultiRole hosts any combination of roles on one physical node. Every event
// is dispatched to each hosted role in order; the per-role action sequences
// are concatenated, preserving each role's internal ordering. The roles share
// no state.
type MultiRole struct {
	nodeID NodeID
	roles  []Role
}

// NewMultiRole bundles the given roles under one node id.
func NewMultiRole(nodeID NodeID, roles ...Role) *MultiRole {
	return &MultiRole{nodeID: nodeID, roles: roles}
}

// NodeID returns the id of the hosting node.
func (m *MultiRole) NodeID() NodeID {
	return m.nodeID
}

// OnInit initializes every hosted role.
func (m *MultiRole) OnInit() []Action {
	var actions []Action
	for _, r := range m.roles {
		actions = append(actions, r.OnInit()...)
	}
	return actions
}

// OnMessage delivers the message to every hosted role.
func (m *MultiRole) OnMessage(from NodeID, msg Message) []Action {
	var actions []Action
	for _, r := range m.roles {
		actions = append(actions, r.OnMessage(from, msg)...)
	}
	return actions
}

// OnTimeout delivers the expiry to every hosted role.
func (m *MultiRole) OnTimeout(id TimerID) []Action {
	var actions []Action
	for _, r := range m.roles {
		actions = append(actions, r.OnTimeout(id)...)
	}
	return actions
}
