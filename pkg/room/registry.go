package room

// Role is the access level of one connection.
type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Registry tracks live connections and their roles. Role decisions are made
// at authorization time, before the transport accepts the connection, and
// queued FIFO; Register consumes them in arrival order. Any mismatch between
// the two degrades to viewer, never to editor.
//
// The registry is owned by the room loop and is not safe for concurrent use.
type Registry struct {
	pending []Role
	roles   map[*Client]Role

	// onEmpty fires when the last live connection leaves.
	onEmpty func()
}

func NewRegistry(onEmpty func()) *Registry {
	return &Registry{roles: map[*Client]Role{}, onEmpty: onEmpty}
}

// EnqueuePendingRole appends an authorization-time role decision.
func (r *Registry) EnqueuePendingRole(role Role) {
	if role != RoleEditor {
		role = RoleViewer
	}
	r.pending = append(r.pending, role)
}

// Register binds the oldest pending role to the connection. An empty queue
// yields viewer.
func (r *Registry) Register(c *Client) Role {
	role := RoleViewer
	if len(r.pending) > 0 {
		role = r.pending[0]
		r.pending = r.pending[1:]
	}
	r.roles[c] = role
	return role
}

// Unregister removes the connection. It reports whether the registry became
// empty and fires the onEmpty hook if so.
func (r *Registry) Unregister(c *Client) bool {
	if _, ok := r.roles[c]; !ok {
		return false
	}
	delete(r.roles, c)
	if len(r.roles) == 0 {
		if r.onEmpty != nil {
			r.onEmpty()
		}
		return true
	}
	return false
}

// RoleOf returns the connection's role, viewer for unknown handles.
func (r *Registry) RoleOf(c *Client) Role {
	if role, ok := r.roles[c]; ok {
		return role
	}
	return RoleViewer
}

// Count returns the number of live connections.
func (r *Registry) Count() int { return len(r.roles) }

// Connections returns the live connections in unspecified order.
func (r *Registry) Connections() []*Client {
	out := make([]*Client, 0, len(r.roles))
	for c := range r.roles {
		out = append(out, c)
	}
	return out
}
