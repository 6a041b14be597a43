package room

import "time"

// DefaultCommandCacheSize bounds the idempotency ledger.
const DefaultCommandCacheSize = 100

// Outcome is the client-visible result of a command batch.
type Outcome struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	CreatedIDs  []string `json:"createdIds,omitempty"`
	AffectedIDs []string `json:"affectedIds,omitempty"`
	Error       string   `json:"error,omitempty"`
	CommandID   string   `json:"commandId"`
}

type commandRecord struct {
	outcome    Outcome
	recordedAt time.Time
}

// CommandCache is the in-memory idempotency ledger: the first outcome
// recorded for a command ID is authoritative for the cache's lifetime.
// Capacity is bounded; insertion order approximates recency and the oldest
// records are evicted first. Owned by the room loop, not safe for
// concurrent use.
type CommandCache struct {
	capacity int
	records  map[string]commandRecord
	order    []string
}

func NewCommandCache(capacity int) *CommandCache {
	if capacity <= 0 {
		capacity = DefaultCommandCacheSize
	}
	return &CommandCache{capacity: capacity, records: map[string]commandRecord{}}
}

// Lookup returns the recorded outcome for the command ID, if any.
func (c *CommandCache) Lookup(commandID string) (Outcome, bool) {
	rec, ok := c.records[commandID]
	return rec.outcome, ok
}

// Record stores the outcome unless one is already recorded, then evicts the
// oldest entries down to capacity.
func (c *CommandCache) Record(commandID string, outcome Outcome) {
	if commandID == "" {
		return
	}
	if _, ok := c.records[commandID]; ok {
		return
	}
	c.records[commandID] = commandRecord{outcome: outcome, recordedAt: time.Now()}
	c.order = append(c.order, commandID)
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.records, oldest)
	}
}

// Len returns the number of cached outcomes.
func (c *CommandCache) Len() int { return len(c.records) }
