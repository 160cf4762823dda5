package adminserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyberinferno/pzrcon/credentials"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/rcon"
)

// maxCommandBody bounds the JSON body of an execute request.
const maxCommandBody = 64 << 10

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	// ServiceName is reported by the health endpoint.
	ServiceName string
	// SinkWriteTimeout bounds every websocket write; zero means broadcaster.DefaultWriteTimeout.
	SinkWriteTimeout time.Duration
	// CheckOrigin validates websocket origins; nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

// Handler serves the operator HTTP and websocket endpoints.
type Handler struct {
	svc      *Service
	config   HandlerConfig
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	log      logger.Logger
}

// NewHandler creates the HTTP handler of svc.
//
// Routes:
//   - GET  /api/health
//   - POST /servers/{serverId}/connect
//   - POST /servers/{serverId}/disconnect
//   - GET  /servers/{serverId}/status
//   - POST /servers/{serverId}/execute  {"command": "..."}
//   - GET  /servers/{serverId}/options
//   - GET  /ws/{serverId}
func NewHandler(svc *Service, config HandlerConfig) *Handler {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	h := &Handler{
		svc:      svc,
		config:   config,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		mux:      http.NewServeMux(),
		log:      svc.log.With(logger.Field{Key: "layer", Value: "http"}),
	}

	h.mux.HandleFunc("GET /api/health", h.handleHealth)
	h.mux.HandleFunc("POST /servers/{serverId}/connect", h.withServerID(h.handleConnect))
	h.mux.HandleFunc("POST /servers/{serverId}/disconnect", h.withServerID(h.handleDisconnect))
	h.mux.HandleFunc("GET /servers/{serverId}/status", h.withServerID(h.handleStatus))
	h.mux.HandleFunc("POST /servers/{serverId}/execute", h.withServerID(h.handleExecute))
	h.mux.HandleFunc("GET /servers/{serverId}/options", h.withServerID(h.handleOptions))
	h.mux.HandleFunc("GET /ws/{serverId}", h.withServerID(h.handleWebSocket))

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type serverHandlerFunc func(w http.ResponseWriter, r *http.Request, serverID int)

func (h *Handler) withServerID(next serverHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("serverId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid server id")
			return
		}

		next(w, r, id)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.config.ServiceName})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request, serverID int) {
	if err := h.svc.Connect(r.Context(), serverID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "connected", "server_id": serverID})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, _ *http.Request, serverID int) {
	if err := h.svc.Disconnect(serverID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "disconnected", "server_id": serverID})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request, serverID int) {
	st := h.svc.Status(serverID)
	writeJSON(w, http.StatusOK, map[string]any{
		"server_id":     serverID,
		"connected":     st.Connected,
		"authenticated": st.Connected,
	})
}

type executeRequest struct {
	Command string `json:"command"`
}

type executeResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request, serverID int) {
	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	resp, err := h.svc.Execute(r.Context(), serverID, req.Command)
	if errors.Is(err, rcon.ErrNotConnected) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err != nil {
		writeJSON(w, http.StatusOK, executeResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{Success: true, Response: resp})
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request, serverID int) {
	opts, err := h.svc.Options(r.Context(), serverID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, opts)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, credentials.ErrUnknownServer):
		return http.StatusNotFound
	case errors.Is(err, rcon.ErrNotConnected), errors.Is(err, rcon.ErrNotAuthenticated):
		return http.StatusBadRequest
	case errors.Is(err, rcon.ErrAuth), errors.Is(err, rcon.ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
