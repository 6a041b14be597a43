package room

// Event is a room-scoped notification published to the event stream so
// connected clients (and any other observer) learn about out-of-band
// activity: agent command results and snapshot commits.
type Event struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	AtMs   int64  `json:"atMs"`
	Data   any    `json:"data,omitempty"`
}

const (
	EventCommandExecuted   = "command.executed"
	EventSnapshotCommitted = "snapshot.committed"
)

// EventSink publishes room events. Implementations must be safe for
// concurrent use; commit events are published off the room loop.
type EventSink interface {
	Publish(e Event) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) error { return nil }
