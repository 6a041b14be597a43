// Package ops holds the pure canvas operation functions executed by agent
// command batches. Each operation is a function of the transaction and its
// parameters with no hidden state; validation failures surface in the
// outcome, never as panics.
package ops

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/whiteroom-io/whiteroom/pkg/board"
)

// MinObjectSize is the smallest accepted width/height for created or
// resized objects.
const MinObjectSize = 10

// Operation is one entry of a command batch.
type Operation struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Outcome is the result of applying a single operation.
type Outcome struct {
	Success     bool
	Error       string
	CreatedIDs  []string
	AffectedIDs []string
}

func failure(format string, args ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, args...)}
}

// CreationCount reports how many objects the operation would create. It is
// used to enforce the batch creation ceiling before any mutation happens.
func CreationCount(op Operation) int {
	switch op.Name {
	case "create_shape", "create_note":
		n := intParam(op.Parameters, "count", 1)
		if n < 1 {
			n = 1
		}
		return n
	default:
		return 0
	}
}

// Apply executes one operation against the transaction.
func Apply(tx *board.Tx, op Operation) Outcome {
	switch op.Name {
	case "create_shape":
		return applyCreate(tx, op.Parameters, "shape")
	case "create_note":
		return applyCreate(tx, op.Parameters, "note")
	case "move":
		return applyMove(tx, op.Parameters)
	case "resize":
		return applyResize(tx, op.Parameters)
	case "update_text":
		return applyUpdateText(tx, op.Parameters)
	case "delete":
		return applyDelete(tx, op.Parameters)
	default:
		return failure("unknown operation %q", op.Name)
	}
}

func applyCreate(tx *board.Tx, params map[string]any, kind string) Outcome {
	width := floatParam(params, "width", 100)
	height := floatParam(params, "height", 100)
	if width < MinObjectSize || height < MinObjectSize {
		return failure("%s must be at least %dx%d, got %gx%g", kind, MinObjectSize, MinObjectSize, width, height)
	}
	count := intParam(params, "count", 1)
	if count < 1 {
		count = 1
	}
	x := floatParam(params, "x", 0)
	y := floatParam(params, "y", 0)
	gap := floatParam(params, "gap", 20)
	text := stringParam(params, "text", "")

	out := Outcome{Success: true}
	for i := 0; i < count; i++ {
		obj := &board.Object{
			ID:     uuid.NewString(),
			Kind:   kind,
			X:      x + float64(i)*(width+gap),
			Y:      y,
			Width:  width,
			Height: height,
			Text:   text,
		}
		if shape := stringParam(params, "shape", ""); shape != "" {
			obj.Props = map[string]string{"shape": shape}
		}
		tx.Put(obj)
		out.CreatedIDs = append(out.CreatedIDs, obj.ID)
		out.AffectedIDs = append(out.AffectedIDs, obj.ID)
	}
	return out
}

func applyMove(tx *board.Tx, params map[string]any) Outcome {
	id := stringParam(params, "id", "")
	obj, ok := tx.Get(id)
	if !ok {
		return failure("move: object %q not found", id)
	}
	obj.X = floatParam(params, "x", obj.X)
	obj.Y = floatParam(params, "y", obj.Y)
	tx.Put(obj)
	return Outcome{Success: true, AffectedIDs: []string{id}}
}

func applyResize(tx *board.Tx, params map[string]any) Outcome {
	id := stringParam(params, "id", "")
	obj, ok := tx.Get(id)
	if !ok {
		return failure("resize: object %q not found", id)
	}
	width := floatParam(params, "width", obj.Width)
	height := floatParam(params, "height", obj.Height)
	if width < MinObjectSize || height < MinObjectSize {
		return failure("resize: minimum size is %dx%d, got %gx%g", MinObjectSize, MinObjectSize, width, height)
	}
	obj.Width = width
	obj.Height = height
	tx.Put(obj)
	return Outcome{Success: true, AffectedIDs: []string{id}}
}

func applyUpdateText(tx *board.Tx, params map[string]any) Outcome {
	id := stringParam(params, "id", "")
	obj, ok := tx.Get(id)
	if !ok {
		return failure("update_text: object %q not found", id)
	}
	text, ok := params["text"].(string)
	if !ok {
		return failure("update_text: missing text parameter")
	}
	obj.Text = text
	tx.Put(obj)
	return Outcome{Success: true, AffectedIDs: []string{id}}
}

func applyDelete(tx *board.Tx, params map[string]any) Outcome {
	id := stringParam(params, "id", "")
	if !tx.Delete(id) {
		return failure("delete: object %q not found", id)
	}
	return Outcome{Success: true, AffectedIDs: []string{id}}
}

func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

func stringParam(params map[string]any, key string, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}
