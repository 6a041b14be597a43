package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/whiteroom-io/whiteroom/pkg/board"
	"github.com/whiteroom-io/whiteroom/pkg/board/ops"
	"github.com/whiteroom-io/whiteroom/pkg/room"
	"github.com/whiteroom-io/whiteroom/pkg/store"
	"github.com/whiteroom-io/whiteroom/pkg/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *room.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr, err := room.NewManager(ctx, store.NewMemoryStore(), room.ManagerOptions{
		Room: room.Options{
			CommitIdle: 20 * time.Millisecond,
			CommitMax:  100 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	srv := NewServer(mgr, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func postCommand(t *testing.T, ts *httptest.Server, roomID string, batch room.CommandBatch) room.Outcome {
	t.Helper()
	body, err := json.Marshal(batch)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/rooms/"+roomID+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out room.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCommandEndpointIsIdempotent(t *testing.T) {
	ts, _ := newTestServer(t)

	batch := room.CommandBatch{
		CommandID: "cmd-1",
		Operations: []ops.Operation{
			{Name: "create_note", Parameters: map[string]any{"text": "hello"}},
		},
		UserID: "u1",
	}
	first := postCommand(t, ts, "r1", batch)
	require.True(t, first.Success)
	require.Len(t, first.CreatedIDs, 1)

	second := postCommand(t, ts, "r1", batch)
	require.Equal(t, first.CreatedIDs, second.CreatedIDs)
}

func TestCommandEndpointRejectsBadJSON(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/rooms/r1/command", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSnapshotEndpointReturnsDocumentState(t *testing.T) {
	ts, _ := newTestServer(t)
	postCommand(t, ts, "r1", room.CommandBatch{
		CommandID:  "cmd-snap",
		Operations: []ops.Operation{{Name: "create_note", Parameters: map[string]any{"text": "x"}}},
	})

	resp, err := http.Get(ts.URL + "/rooms/r1/snapshot")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	doc := board.NewDocument()
	changed, err := doc.ApplyUpdate(buf.Bytes())
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 1, doc.ObjectCount())
}

func TestHistoryEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	postCommand(t, ts, "r1", room.CommandBatch{
		CommandID:  "cmd-h",
		Operations: []ops.Operation{{Name: "create_note", Parameters: map[string]any{"text": "x"}}},
		UserID:     "u1",
		Prompt:     "add a note",
	})

	resp, err := http.Get(ts.URL + "/rooms/r1/history")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		History []board.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.History, 1)
	require.Equal(t, "add a note", body.History[0].Prompt)
}

// recvBinary reads frames until a binary one arrives.
func recvBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.BinaryMessage {
			return data
		}
	}
}

func TestWebsocketHydratesAndRelays(t *testing.T) {
	ts, _ := newTestServer(t)

	editor, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/rooms/r1/ws?role=editor"), nil)
	require.NoError(t, err)
	defer func() { _ = editor.Close() }()

	// hydration: step1 probe, step2 full state, awareness state
	f := recvBinary(t, editor)
	ft, st := room.Classify(f)
	require.Equal(t, room.FrameSync, ft)
	require.Equal(t, room.SyncStep1, st)

	f = recvBinary(t, editor)
	ft, st = room.Classify(f)
	require.Equal(t, room.FrameSync, ft)
	require.Equal(t, room.SyncStep2, st)

	f = recvBinary(t, editor)
	ft, _ = room.Classify(f)
	require.Equal(t, room.FrameAwareness, ft)

	viewer, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/rooms/r1/ws?role=viewer"), nil)
	require.NoError(t, err)
	defer func() { _ = viewer.Close() }()
	for i := 0; i < 3; i++ {
		recvBinary(t, viewer)
	}

	// editor publishes a local change; the viewer receives the relay
	src := board.NewDocument()
	var delta []byte
	src.OnUpdate(func(update []byte) { delta = update })
	require.NoError(t, src.Transact(func(tx *board.Tx) error {
		tx.Put(&board.Object{ID: "o1", Kind: "note", Text: "hi", Version: 1})
		return nil
	}))
	require.NoError(t, editor.WriteMessage(websocket.BinaryMessage, wire.EncodeSyncUpdate(delta)))

	f = recvBinary(t, viewer)
	ft, st = room.Classify(f)
	require.Equal(t, room.FrameSync, ft)
	require.Equal(t, room.SyncUpdate, st)
}

func TestWebsocketPingPong(t *testing.T) {
	ts, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/rooms/r1/ws"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.TextMessage {
			require.Equal(t, "pong", string(data))
			return
		}
	}
}
