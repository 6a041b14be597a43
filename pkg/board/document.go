package board

import (
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Document is the shared mutable state of a room: a map of canvas objects
// plus the audit history of agent commands. All local mutation goes through
// Transact so that a batch of writes surfaces as a single update. Updates
// are CBOR-encoded deltas; merging is last-writer-wins per object.
//
// The document is safe for concurrent use. The room serializes logical
// mutation on its own loop; the internal lock only protects snapshot reads
// (persistence) that run off that loop.
type Document struct {
	mu      sync.RWMutex
	objects map[string]*Object
	history []HistoryEntry

	onUpdate func(update []byte)

	tx *Tx
}

type update struct {
	Objects []*Object      `cbor:"objects,omitempty"`
	History []HistoryEntry `cbor:"history,omitempty"`
}

func NewDocument() *Document {
	return &Document{objects: map[string]*Object{}}
}

// OnUpdate registers the single update observer. It is invoked synchronously
// with the encoded delta at the end of every mutating transaction. Must be
// called before the document is shared.
func (d *Document) OnUpdate(fn func(update []byte)) {
	d.onUpdate = fn
}

// Tx is a transaction handle. It is only valid inside the Transact callback.
type Tx struct {
	doc          *Document
	dirty        map[string]struct{}
	historyDirty bool
	nowMs        int64
}

// Transact runs fn with the document locked and emits at most one update
// event covering everything fn changed. A returned error aborts nothing
// that fn already wrote; operations are expected to validate before writing.
func (d *Document) Transact(fn func(tx *Tx) error) error {
	d.mu.Lock()
	tx := &Tx{doc: d, dirty: map[string]struct{}{}, nowMs: time.Now().UnixMilli()}
	d.tx = tx

	// The unlock is deferred so a panicking callback leaves the document
	// usable; the panic propagates to the caller with the lock released.
	var delta []byte
	err := func() error {
		defer func() {
			d.tx = nil
			d.mu.Unlock()
		}()
		err := fn(tx)
		delta = tx.deltaLocked()
		return err
	}()

	if delta != nil && d.onUpdate != nil {
		d.onUpdate(delta)
	}
	return err
}

func (tx *Tx) deltaLocked() []byte {
	if len(tx.dirty) == 0 && !tx.historyDirty {
		return nil
	}
	u := update{}
	for id := range tx.dirty {
		if obj, ok := tx.doc.objects[id]; ok {
			u.Objects = append(u.Objects, obj.clone())
		}
	}
	sort.Slice(u.Objects, func(i, j int) bool { return u.Objects[i].ID < u.Objects[j].ID })
	if tx.historyDirty {
		u.History = append([]HistoryEntry(nil), tx.doc.history...)
	}
	b, err := cbor.Marshal(&u)
	if err != nil {
		return nil
	}
	return b
}

// Get returns a copy of the live (non-deleted) object with the given ID.
func (tx *Tx) Get(id string) (*Object, bool) {
	obj, ok := tx.doc.objects[id]
	if !ok || obj.Deleted {
		return nil, false
	}
	return obj.clone(), true
}

// Put writes obj, bumping its version clock.
func (tx *Tx) Put(obj *Object) {
	if obj == nil || obj.ID == "" {
		return
	}
	c := obj.clone()
	if prev, ok := tx.doc.objects[c.ID]; ok && prev.Version >= c.Version {
		c.Version = prev.Version + 1
	} else {
		c.Version++
	}
	c.UpdatedAtMs = tx.nowMs
	tx.doc.objects[c.ID] = c
	tx.dirty[c.ID] = struct{}{}
}

// Delete tombstones the object so the deletion propagates through merges.
func (tx *Tx) Delete(id string) bool {
	obj, ok := tx.doc.objects[id]
	if !ok || obj.Deleted {
		return false
	}
	c := obj.clone()
	c.Deleted = true
	c.Version++
	c.UpdatedAtMs = tx.nowMs
	tx.doc.objects[id] = c
	tx.dirty[id] = struct{}{}
	return true
}

// AppendHistory appends one audit entry.
func (tx *Tx) AppendHistory(e HistoryEntry) {
	tx.doc.history = append(tx.doc.history, e)
	tx.historyDirty = true
}

// PruneHistory drops the oldest contiguous range so at most max entries remain.
func (tx *Tx) PruneHistory(max int) {
	if max <= 0 || len(tx.doc.history) <= max {
		return
	}
	tx.doc.history = append([]HistoryEntry(nil), tx.doc.history[len(tx.doc.history)-max:]...)
	tx.historyDirty = true
}

// ApplyUpdate merges a remote delta into the document. It reports whether
// anything changed. It does not fire the update observer; relaying remote
// updates is the caller's concern.
func (d *Document) ApplyUpdate(b []byte) (bool, error) {
	var u update
	if err := cbor.Unmarshal(b, &u); err != nil {
		return false, errors.Wrap(err, "board: decode update")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for _, obj := range u.Objects {
		if obj == nil || obj.ID == "" {
			continue
		}
		if obj.supersedes(d.objects[obj.ID]) {
			d.objects[obj.ID] = obj.clone()
			changed = true
		}
	}
	if len(u.History) > 0 && d.mergeHistoryLocked(u.History) {
		changed = true
	}
	return changed, nil
}

func (d *Document) mergeHistoryLocked(incoming []HistoryEntry) bool {
	seen := make(map[string]struct{}, len(d.history))
	for _, e := range d.history {
		seen[e.ID] = struct{}{}
	}
	changed := false
	for _, e := range incoming {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		d.history = append(d.history, e)
		seen[e.ID] = struct{}{}
		changed = true
	}
	if changed {
		sort.Slice(d.history, func(i, j int) bool { return d.history[i].ID < d.history[j].ID })
	}
	return changed
}

// EncodeStateAsUpdate encodes the full document as one delta that a fresh
// document can apply to reproduce identical content.
func (d *Document) EncodeStateAsUpdate() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u := update{History: append([]HistoryEntry(nil), d.history...)}
	for _, obj := range d.objects {
		u.Objects = append(u.Objects, obj.clone())
	}
	sort.Slice(u.Objects, func(i, j int) bool { return u.Objects[i].ID < u.Objects[j].ID })
	b, err := cbor.Marshal(&u)
	if err != nil {
		return nil, errors.Wrap(err, "board: encode state")
	}
	return b, nil
}

// Objects returns copies of all live objects.
func (d *Document) Objects() []*Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Object, 0, len(d.objects))
	for _, obj := range d.objects {
		if obj.Deleted {
			continue
		}
		out = append(out, obj.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ObjectCount returns the number of live objects.
func (d *Document) ObjectCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, obj := range d.objects {
		if !obj.Deleted {
			n++
		}
	}
	return n
}

// History returns a copy of the audit history, oldest first.
func (d *Document) History() []HistoryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]HistoryEntry(nil), d.history...)
}
