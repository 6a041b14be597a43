package room

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/whiteroom-io/whiteroom/pkg/board"
	"github.com/whiteroom-io/whiteroom/pkg/wire"
)

// Options configures one room.
type Options struct {
	CommitIdle      time.Duration
	CommitMax       time.Duration
	CacheSize       int
	HistoryMax      int
	CreationCeiling int

	// Commit persists the room snapshot; wired by the manager.
	Commit CommitFunc
	// Events receives command/commit notifications.
	Events EventSink
}

// Room is the per-identifier coordinator: it owns one document and one
// awareness instance, serializes every handler on a single loop goroutine,
// gates mutation by role, and schedules persistence. All external contact
// goes through the inbox, so room-local state needs no locks.
type Room struct {
	ID string

	doc       *board.Document
	awareness *board.Awareness
	syncer    *board.SyncHandler
	registry  *Registry
	scheduler *Scheduler
	cache     *CommandCache
	executor  *Executor
	events    EventSink

	inbox chan roomMsg
	stopc chan struct{}
	donec chan struct{}

	connCount    atomic.Int32
	lastActivity atomic.Int64

	logger zerolog.Logger
}

type roomMsg interface{ isRoomMsg() }

type msgEnqueueRole struct{ role Role }
type msgRegister struct{ c *Client }
type msgUnregister struct {
	c    *Client
	done chan struct{}
}
type msgFrame struct {
	c    *Client
	data []byte
}
type msgCommand struct {
	batch CommandBatch
	reply chan Outcome
}
type msgText struct{ data []byte }

func (msgEnqueueRole) isRoomMsg() {}
func (msgRegister) isRoomMsg()    {}
func (msgUnregister) isRoomMsg()  {}
func (msgFrame) isRoomMsg()       {}
func (msgCommand) isRoomMsg()     {}
func (msgText) isRoomMsg()        {}

func New(id string, doc *board.Document, opts Options) *Room {
	if doc == nil {
		doc = board.NewDocument()
	}
	events := opts.Events
	if events == nil {
		events = NopSink{}
	}
	logger := log.With().Str("component", "room").Str("room_id", id).Logger()

	r := &Room{
		ID:        id,
		doc:       doc,
		awareness: board.NewAwareness(),
		syncer:    board.NewSyncHandler(doc),
		cache:     NewCommandCache(opts.CacheSize),
		events:    events,
		inbox:     make(chan roomMsg, 256),
		stopc:     make(chan struct{}),
		donec:     make(chan struct{}),
		logger:    logger,
	}
	r.registry = NewRegistry(r.onRegistryEmpty)
	r.scheduler = NewScheduler(opts.CommitIdle, opts.CommitMax, opts.Commit)
	r.executor = NewExecutor(doc, r.cache, opts.CreationCeiling, opts.HistoryMax, logger)
	r.lastActivity.Store(time.Now().UnixMilli())

	// Local transactions (command batches) surface as one update each;
	// broadcast it and arm the commit scheduler.
	doc.OnUpdate(func(update []byte) {
		r.broadcast(nil, OutFrame{Binary: true, Data: wire.EncodeSyncUpdate(update)})
		r.scheduler.Schedule()
	})
	return r
}

// Run drives the room loop until ctx is done or Stop is called.
func (r *Room) Run(ctx context.Context) {
	r.logger.Info().Msg("room loop started")
	defer r.logger.Info().Msg("room loop stopped")
	defer close(r.donec)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopc:
			return
		case m := <-r.inbox:
			r.touch()
			r.dispatch(m)
		}
	}
}

// Stop terminates the room loop. No further work is accepted once it
// returns; pending work is committed by a Flush after Done closes.
func (r *Room) Stop() {
	select {
	case <-r.stopc:
	default:
		close(r.stopc)
	}
}

// Done closes when the room loop has exited and no handler is running.
func (r *Room) Done() <-chan struct{} { return r.donec }

func (r *Room) dispatch(m roomMsg) {
	switch m := m.(type) {
	case msgEnqueueRole:
		r.registry.EnqueuePendingRole(m.role)
	case msgRegister:
		r.handleRegister(m.c)
	case msgUnregister:
		r.handleUnregister(m.c)
		close(m.done)
	case msgFrame:
		r.handleFrame(m.c, m.data)
	case msgCommand:
		outcome := r.executor.Execute(m.batch)
		r.publish(Event{Type: EventCommandExecuted, RoomID: r.ID, AtMs: time.Now().UnixMilli(), Data: outcome})
		m.reply <- outcome
	case msgText:
		r.broadcast(nil, OutFrame{Data: m.data})
	}
}

// EnqueuePendingRole records an authorization-time role decision. It is
// called before the transport accepts the connection; Attach consumes the
// queue in FIFO order.
func (r *Room) EnqueuePendingRole(role Role) {
	r.post(msgEnqueueRole{role: role})
}

// Attach registers the client and hydrates it with the current document and
// presence state.
func (r *Room) Attach(c *Client) {
	r.connCount.Add(1)
	r.post(msgRegister{c: c})
}

// Detach unregisters the client and blocks until the room has processed the
// removal (including the forced flush when it was the last connection).
func (r *Room) Detach(c *Client) {
	done := make(chan struct{})
	r.post(msgUnregister{c: c, done: done})
	select {
	case <-done:
	case <-r.stopc:
	}
}

// HandleFrame feeds one inbound binary frame into the room.
func (r *Room) HandleFrame(c *Client, data []byte) {
	r.post(msgFrame{c: c, data: data})
}

// Execute runs a command batch on the room loop and waits for its outcome.
func (r *Room) Execute(ctx context.Context, batch CommandBatch) (Outcome, error) {
	reply := make(chan Outcome, 1)
	select {
	case r.inbox <- msgCommand{batch: batch, reply: reply}:
	case <-r.stopc:
		return Outcome{}, errors.New("room: stopped")
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	select {
	case out := <-reply:
		return out, nil
	case <-r.donec:
		// The loop has exited; the reply is final if it was ever sent.
		select {
		case out := <-reply:
			return out, nil
		default:
			return Outcome{}, errors.New("room: stopped")
		}
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// BroadcastText fans a JSON text frame out to every connection. Used by the
// event-stream reader.
func (r *Room) BroadcastText(data []byte) {
	r.post(msgText{data: data})
}

// Flush forces a commit of pending work.
func (r *Room) Flush(ctx context.Context) error {
	return r.scheduler.Flush(ctx)
}

// ConnCount returns the number of attached connections.
func (r *Room) ConnCount() int { return int(r.connCount.Load()) }

// CommitPending reports whether uncommitted work exists.
func (r *Room) CommitPending() bool { return r.scheduler.Pending() }

// LastActivity returns the time of the last processed message.
func (r *Room) LastActivity() time.Time {
	return time.UnixMilli(r.lastActivity.Load())
}

// StateUpdate returns the full document state as one applicable update.
func (r *Room) StateUpdate() ([]byte, error) {
	return r.doc.EncodeStateAsUpdate()
}

// History returns the audit history, oldest first.
func (r *Room) History() []board.HistoryEntry {
	return r.doc.History()
}

func (r *Room) post(m roomMsg) {
	select {
	case r.inbox <- m:
	case <-r.stopc:
	}
}

func (r *Room) touch() {
	r.lastActivity.Store(time.Now().UnixMilli())
}

func (r *Room) onRegistryEmpty() {
	// State must be durable whenever the room goes fully idle. Runs on the
	// room loop; the commit itself executes off-loop and is awaited here.
	if err := r.scheduler.Flush(context.Background()); err != nil {
		r.logger.Error().Err(err).Msg("flush on last disconnect failed")
	}
}

func (r *Room) handleRegister(c *Client) {
	role := r.registry.Register(c)
	r.logger.Debug().Str("client_id", c.ID).Str("role", string(role)).Msg("connection registered")

	state, err := r.doc.EncodeStateAsUpdate()
	if err != nil {
		r.logger.Error().Err(err).Msg("encode state for hydration")
		return
	}
	c.Push(OutFrame{Binary: true, Data: wire.EncodeSyncStep1(nil)})
	c.Push(OutFrame{Binary: true, Data: wire.EncodeSyncStep2(state)})
	if presence := r.awareness.EncodeState(); presence != nil {
		c.Push(OutFrame{Binary: true, Data: wire.EncodeAwareness(presence)})
	}
}

func (r *Room) handleUnregister(c *Client) {
	if !r.registryHas(c) {
		return
	}
	r.connCount.Add(-1)
	r.registry.Unregister(c)
	c.closeSend()
	r.logger.Debug().Str("client_id", c.ID).Int("remaining", r.registry.Count()).Msg("connection unregistered")
}

func (r *Room) registryHas(c *Client) bool {
	_, ok := r.registry.roles[c]
	return ok
}

func (r *Room) handleFrame(sender *Client, data []byte) {
	frameType, syncType := Classify(data)
	switch frameType {
	case FrameAwareness:
		payload, err := wire.AwarenessPayload(data)
		if err != nil {
			r.logger.Debug().Err(err).Msg("awareness payload undecodable, dropping")
			return
		}
		changed, err := r.awareness.ApplyUpdate(payload)
		if err != nil {
			r.logger.Debug().Err(err).Msg("awareness update rejected")
			return
		}
		r.broadcast(sender, OutFrame{Binary: true, Data: data})
		if changed {
			r.scheduler.Schedule()
		}
	case FrameSync:
		if syncType == SyncUpdate && r.registry.RoleOf(sender) != RoleEditor {
			// Dropped without a reply so role probing gets no oracle.
			r.logger.Debug().Str("client_id", sender.ID).Msg("dropping update from non-editor")
			return
		}
		r.applySyncFrame(sender, data)
	default:
		// Fail open for forward compatibility: hand the frame to the
		// document-sync handler as-is.
		r.applySyncFrame(sender, data)
	}
}

func (r *Room) applySyncFrame(sender *Client, data []byte) {
	reply, changed, err := r.syncer.HandleMessage(data)
	if err != nil {
		r.logger.Debug().Err(err).Msg("sync handler rejected frame")
		return
	}
	if reply != nil {
		sender.Push(OutFrame{Binary: true, Data: reply})
	}
	if changed {
		r.broadcast(sender, OutFrame{Binary: true, Data: data})
		r.scheduler.Schedule()
	}
}

func (r *Room) broadcast(except *Client, f OutFrame) {
	for _, c := range r.registry.Connections() {
		if c == except {
			continue
		}
		if !c.Push(f) {
			r.logger.Warn().Str("client_id", c.ID).Msg("client send buffer full, frame dropped")
		}
	}
}

func (r *Room) publish(e Event) {
	if err := r.events.Publish(e); err != nil {
		r.logger.Warn().Err(err).Str("event", e.Type).Msg("event publish failed")
	}
}
