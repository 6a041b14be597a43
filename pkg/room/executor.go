package room

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/whiteroom-io/whiteroom/pkg/board"
	"github.com/whiteroom-io/whiteroom/pkg/board/ops"
)

// Executor defaults.
const (
	DefaultCreationCeiling = 1000
	DefaultHistoryMax      = 50
)

// CommandBatch is a structured batch of operations produced out-of-band by
// the tool-calling agent. Operations apply in order inside one document
// transaction; the whole batch surfaces to other connections as a single
// update.
type CommandBatch struct {
	CommandID  string          `json:"commandId"`
	Operations []ops.Operation `json:"operations"`
	UserID     string          `json:"userId"`
	UserName   string          `json:"userName"`
	Prompt     string          `json:"prompt"`
}

// Executor applies command batches atomically and idempotently. A command ID
// seen before replays its recorded outcome without touching the document.
// Nothing escapes Execute as a panic or error; every path yields a
// well-formed outcome.
type Executor struct {
	doc             *board.Document
	cache           *CommandCache
	creationCeiling int
	historyMax      int
	logger          zerolog.Logger
}

func NewExecutor(doc *board.Document, cache *CommandCache, creationCeiling, historyMax int, logger zerolog.Logger) *Executor {
	if creationCeiling <= 0 {
		creationCeiling = DefaultCreationCeiling
	}
	if historyMax <= 0 {
		historyMax = DefaultHistoryMax
	}
	return &Executor{
		doc:             doc,
		cache:           cache,
		creationCeiling: creationCeiling,
		historyMax:      historyMax,
		logger:          logger,
	}
}

// Execute runs one command batch.
func (e *Executor) Execute(batch CommandBatch) Outcome {
	if cached, ok := e.cache.Lookup(batch.CommandID); ok {
		e.logger.Debug().Str("command_id", batch.CommandID).Msg("replaying cached command outcome")
		return cached
	}

	if total := e.creationTotal(batch); total > e.creationCeiling {
		outcome := Outcome{
			Success:   false,
			Message:   "command rejected",
			Error:     fmt.Sprintf("batch would create %d objects, ceiling is %d", total, e.creationCeiling),
			CommandID: batch.CommandID,
		}
		e.cache.Record(batch.CommandID, outcome)
		return outcome
	}

	outcome := e.runTransaction(batch)
	e.cache.Record(batch.CommandID, outcome)
	return outcome
}

func (e *Executor) creationTotal(batch CommandBatch) int {
	total := 0
	for _, op := range batch.Operations {
		total += ops.CreationCount(op)
	}
	return total
}

func (e *Executor) runTransaction(batch CommandBatch) (outcome Outcome) {
	outcome.CommandID = batch.CommandID

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("command_id", batch.CommandID).Interface("panic", r).Msg("command batch panicked")
			outcome = Outcome{
				Success:   false,
				Message:   "command failed",
				Error:     fmt.Sprintf("%v", r),
				CommandID: batch.CommandID,
			}
		}
	}()

	var results []ops.Outcome
	err := e.doc.Transact(func(tx *board.Tx) error {
		allOK := true
		var firstErr string
		for _, op := range batch.Operations {
			res := ops.Apply(tx, op)
			results = append(results, res)
			if !res.Success {
				allOK = false
				if firstErr == "" {
					firstErr = res.Error
				}
			}
			outcome.CreatedIDs = append(outcome.CreatedIDs, res.CreatedIDs...)
			outcome.AffectedIDs = append(outcome.AffectedIDs, res.AffectedIDs...)
		}
		outcome.Success = allOK
		outcome.Message = summarize(results)
		if !allOK {
			outcome.Error = firstErr
		}

		tx.AppendHistory(board.HistoryEntry{
			ID:                ulid.Make().String(),
			UserID:            batch.UserID,
			UserName:          batch.UserName,
			Prompt:            batch.Prompt,
			Response:          outcome.Message,
			TimestampMs:       time.Now().UnixMilli(),
			AffectedObjectIDs: append([]string(nil), outcome.AffectedIDs...),
			Success:           allOK,
			Error:             outcome.Error,
		})
		tx.PruneHistory(e.historyMax)
		return nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("command_id", batch.CommandID).Msg("command transaction error")
		outcome = Outcome{
			Success:   false,
			Message:   "command failed",
			Error:     err.Error(),
			CommandID: batch.CommandID,
		}
	}
	return outcome
}

func summarize(results []ops.Outcome) string {
	failed := 0
	created := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
		created += len(r.CreatedIDs)
	}
	switch {
	case len(results) == 0:
		return "no operations"
	case failed == 0 && created > 0:
		return fmt.Sprintf("applied %d operations, created %d objects", len(results), created)
	case failed == 0:
		return fmt.Sprintf("applied %d operations", len(results))
	default:
		return fmt.Sprintf("applied %d operations, %d failed", len(results), failed)
	}
}
