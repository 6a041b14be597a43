package room

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/whiteroom-io/whiteroom/pkg/board"
	"github.com/whiteroom-io/whiteroom/pkg/store"
)

// ManagerOptions configures the room supervisor.
type ManagerOptions struct {
	Room Options

	// EvictIdle is how long a room must sit empty and committed before it
	// is recycled. Zero disables eviction.
	EvictIdle     time.Duration
	EvictInterval time.Duration

	// SinkFor builds the event sink for a room. Nil means no events.
	SinkFor func(roomID string) EventSink
	// OnCreated runs after a room is constructed and its loop started;
	// used to attach event-stream readers.
	OnCreated func(r *Room)
}

// Manager lazily constructs one Room per identifier on first contact,
// restores its snapshot, and recycles rooms that have gone idle. Rooms are
// fully independent; the manager never reaches into their state.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	baseCtx context.Context
	store   store.SnapshotStore
	opts    ManagerOptions

	evictRunning bool
}

func NewManager(ctx context.Context, snapshots store.SnapshotStore, opts ManagerOptions) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("room: manager ctx is nil")
	}
	if snapshots == nil {
		return nil, errors.New("room: snapshot store is nil")
	}
	return &Manager{
		rooms:   map[string]*Room{},
		baseCtx: ctx,
		store:   snapshots,
		opts:    opts,
	}, nil
}

// GetOrCreate returns the room for the identifier, constructing and
// hydrating it on first contact.
func (m *Manager) GetOrCreate(roomID string) (*Room, error) {
	if roomID == "" {
		return nil, errors.New("room: empty room id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		return r, nil
	}

	doc := board.NewDocument()
	if err := m.restore(doc, roomID); err != nil {
		return nil, err
	}

	roomOpts := m.opts.Room
	if m.opts.SinkFor != nil {
		roomOpts.Events = m.opts.SinkFor(roomID)
	}
	events := roomOpts.Events
	if events == nil {
		events = NopSink{}
	}
	roomOpts.Commit = m.commitFunc(roomID, doc, events)

	r := New(roomID, doc, roomOpts)
	m.rooms[roomID] = r
	go r.Run(m.baseCtx)
	if m.opts.OnCreated != nil {
		m.opts.OnCreated(r)
	}
	log.Info().Str("component", "room").Str("room_id", roomID).Msg("room created")
	return r, nil
}

// Get returns the room if it is live.
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *Manager) restore(doc *board.Document, roomID string) error {
	blob, ok, err := m.store.Load(m.baseCtx, roomID)
	if err != nil {
		return errors.Wrap(err, "room: load snapshot")
	}
	if !ok {
		return nil
	}
	snap, err := store.DecodeSnapshot(blob)
	if err != nil {
		return errors.Wrap(err, "room: decode snapshot")
	}
	if _, err := doc.ApplyUpdate(snap.Update); err != nil {
		return errors.Wrap(err, "room: apply snapshot")
	}
	return nil
}

func (m *Manager) commitFunc(roomID string, doc *board.Document, events EventSink) CommitFunc {
	var rev uint64
	return func(ctx context.Context) error {
		update, err := doc.EncodeStateAsUpdate()
		if err != nil {
			return errors.Wrap(err, "room: encode snapshot")
		}
		rev++
		blob, err := store.EncodeSnapshot(update, rev)
		if err != nil {
			return errors.Wrap(err, "room: encode snapshot envelope")
		}
		if err := m.store.Save(ctx, roomID, blob); err != nil {
			return errors.Wrap(err, "room: save snapshot")
		}
		_ = events.Publish(Event{
			Type:   EventSnapshotCommitted,
			RoomID: roomID,
			AtMs:   time.Now().UnixMilli(),
			Data:   map[string]any{"rev": rev, "bytes": len(blob)},
		})
		log.Debug().Str("component", "room").Str("room_id", roomID).Uint64("rev", rev).Int("bytes", len(blob)).Msg("snapshot committed")
		return nil
	}
}

// StartEvictionLoop runs the idle-room recycler until ctx is done.
func (m *Manager) StartEvictionLoop(ctx context.Context) {
	m.mu.Lock()
	if m.evictRunning || m.opts.EvictIdle <= 0 || m.opts.EvictInterval <= 0 {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.opts.EvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				m.evictRunning = false
				m.mu.Unlock()
				return
			case now := <-ticker.C:
				m.evictIdleOnce(now)
			}
		}
	}()
}

func (m *Manager) evictIdleOnce(now time.Time) int {
	m.mu.Lock()
	candidates := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		candidates = append(candidates, r)
	}
	idle := m.opts.EvictIdle
	m.mu.Unlock()

	evicted := 0
	for _, r := range candidates {
		if r.ConnCount() > 0 || r.CommitPending() {
			continue
		}
		if now.Sub(r.LastActivity()) < idle {
			continue
		}
		m.mu.Lock()
		current, ok := m.rooms[r.ID]
		if !ok || current != r {
			m.mu.Unlock()
			continue
		}
		delete(m.rooms, r.ID)
		m.mu.Unlock()

		// Stop before flushing: a command racing the eviction is either
		// rejected or fully dispatched by the time Done closes, so the
		// final flush covers everything that was acknowledged.
		r.Stop()
		select {
		case <-r.Done():
		case <-m.baseCtx.Done():
		}
		if err := r.Flush(m.baseCtx); err != nil {
			log.Warn().Err(err).Str("component", "room").Str("room_id", r.ID).Msg("flush on eviction failed")
		}
		evicted++
		log.Info().Str("component", "room").Str("room_id", r.ID).Msg("idle room evicted")
	}
	return evicted
}

// Shutdown flushes every live room and stops its loop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = map[string]*Room{}
	m.mu.Unlock()

	var firstErr error
	for _, r := range rooms {
		r.Stop()
		select {
		case <-r.Done():
		case <-ctx.Done():
		}
		if err := r.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
