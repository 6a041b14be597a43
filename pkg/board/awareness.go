package board

import (
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Awareness holds the ephemeral presence map of a room: one opaque state
// blob per client, merged by per-client clock. It is never persisted.
type Awareness struct {
	mu      sync.RWMutex
	clients map[uint64]awarenessState
}

type awarenessState struct {
	Clock uint64 `cbor:"clock"`
	State []byte `cbor:"state,omitempty"`
}

type awarenessUpdate struct {
	Clients []awarenessClientUpdate `cbor:"clients"`
}

type awarenessClientUpdate struct {
	ClientID uint64 `cbor:"clientId"`
	Clock    uint64 `cbor:"clock"`
	State    []byte `cbor:"state,omitempty"`
}

func NewAwareness() *Awareness {
	return &Awareness{clients: map[uint64]awarenessState{}}
}

// ApplyUpdate merges a client-submitted awareness delta. Entries with a nil
// state clear the client's presence. Stale clocks are ignored.
func (a *Awareness) ApplyUpdate(b []byte) (bool, error) {
	var u awarenessUpdate
	if err := cbor.Unmarshal(b, &u); err != nil {
		return false, errors.Wrap(err, "board: decode awareness update")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false
	for _, cu := range u.Clients {
		prev, ok := a.clients[cu.ClientID]
		if ok && cu.Clock <= prev.Clock {
			continue
		}
		if cu.State == nil {
			if ok {
				delete(a.clients, cu.ClientID)
				changed = true
			}
			continue
		}
		a.clients[cu.ClientID] = awarenessState{Clock: cu.Clock, State: cu.State}
		changed = true
	}
	return changed, nil
}

// EncodeState encodes the full presence map as one applicable delta, or nil
// when no client is present.
func (a *Awareness) EncodeState() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.clients) == 0 {
		return nil
	}
	u := awarenessUpdate{}
	for id, st := range a.clients {
		u.Clients = append(u.Clients, awarenessClientUpdate{ClientID: id, Clock: st.Clock, State: st.State})
	}
	sort.Slice(u.Clients, func(i, j int) bool { return u.Clients[i].ClientID < u.Clients[j].ClientID })
	b, err := cbor.Marshal(&u)
	if err != nil {
		return nil
	}
	return b
}

// EncodeClientState builds a single-client awareness delta. A nil state
// encodes the client leaving.
func EncodeClientState(clientID, clock uint64, state []byte) ([]byte, error) {
	b, err := cbor.Marshal(&awarenessUpdate{
		Clients: []awarenessClientUpdate{{ClientID: clientID, Clock: clock, State: state}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "board: encode awareness state")
	}
	return b, nil
}

// ClientCount returns the number of clients with live presence state.
func (a *Awareness) ClientCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}
