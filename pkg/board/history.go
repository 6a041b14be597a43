package board

// HistoryEntry is one audit record of an agent command batch. History lives
// inside the document so it rides along with every snapshot and merge.
// Entry IDs are ULIDs, so lexicographic order is creation order.
type HistoryEntry struct {
	ID                string   `cbor:"id" json:"id"`
	UserID            string   `cbor:"userId" json:"userId"`
	UserName          string   `cbor:"userName" json:"userName"`
	Prompt            string   `cbor:"prompt" json:"prompt"`
	Response          string   `cbor:"response" json:"response"`
	TimestampMs       int64    `cbor:"timestampMs" json:"timestampMs"`
	AffectedObjectIDs []string `cbor:"affectedObjectIds" json:"affectedObjectIds"`
	Success           bool     `cbor:"success" json:"success"`
	Error             string   `cbor:"error,omitempty" json:"error,omitempty"`
}
