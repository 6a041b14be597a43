// Package server exposes the room runtime over HTTP: a websocket endpoint
// speaking the binary sync protocol, a command endpoint for agent batches,
// and read-only snapshot/history endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/whiteroom-io/whiteroom/pkg/auth"
	"github.com/whiteroom-io/whiteroom/pkg/room"
)

type Server struct {
	manager  *room.Manager
	verifier auth.Verifier
	logger   zerolog.Logger
}

// NewServer builds the HTTP layer. A nil verifier disables authentication;
// every connection then gets the role it asks for.
func NewServer(manager *room.Manager, verifier auth.Verifier, logger zerolog.Logger) *Server {
	return &Server{
		manager:  manager,
		verifier: verifier,
		logger:   logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomID}/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomID}/command", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomID}/history", s.handleHistory).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// subject resolves the caller's identity and effective role. With a verifier
// configured, a missing or invalid token demotes the caller to viewer; the
// requested role is otherwise honored.
func (s *Server) subject(r *http.Request) (auth.Subject, room.Role) {
	requested := room.Role(r.URL.Query().Get("role"))
	if requested != room.RoleEditor && requested != room.RoleViewer {
		requested = room.RoleEditor
	}
	if s.verifier == nil {
		return auth.Subject{UserID: "anonymous"}, requested
	}
	sub, err := s.verifier.Verify(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		s.logger.Debug().Err(err).Msg("credential rejected, demoting to viewer")
		return auth.Subject{UserID: "anonymous"}, room.RoleViewer
	}
	return sub, requested
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	sub, role := s.subject(r)
	if role != room.RoleEditor {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "editor role required"})
		return
	}

	var batch room.CommandBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid command batch: " + err.Error()})
		return
	}
	if batch.CommandID == "" {
		batch.CommandID = r.Header.Get("Idempotency-Key")
	}
	if batch.CommandID == "" {
		batch.CommandID = uuid.NewString()
	}
	if sub.UserID != "" && sub.UserID != "anonymous" {
		batch.UserID = sub.UserID
		batch.UserName = sub.UserName
	}

	rm, err := s.manager.GetOrCreate(roomID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	outcome, err := rm.Execute(r.Context(), batch)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	// failed outcomes are still 200: the command was processed and its
	// result recorded, the failure lives in the body
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rm, err := s.manager.GetOrCreate(mux.Vars(r)["roomID"])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	update, err := rm.StateUpdate()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(update)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rm, err := s.manager.GetOrCreate(mux.Vars(r)["roomID"])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": rm.History()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
