// Package statusapi serves a read-only HTTP view of a running match client.
package statusapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/client"
	"github.com/cory-johannsen/matchlink/internal/session"
)

// Source is the client state the API reports on.
type Source interface {
	Snapshot() client.Snapshot
	LobbyRooms() []*session.Room
	Actors() []*session.Actor
}

// Metrics is the optional metrics sink of the API.
type Metrics interface {
	IncStatusRequests()
	Handler() http.Handler
}

// RoomView is the JSON form of a lobby room.
type RoomView struct {
	Name        string         `json:"name"`
	PlayerCount int            `json:"player_count"`
	MaxPlayers  int            `json:"max_players"`
	IsOpen      bool           `json:"is_open"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// ActorView is the JSON form of a room actor.
type ActorView struct {
	Nr        int            `json:"nr"`
	Name      string         `json:"name"`
	Local     bool           `json:"local"`
	Suspended bool           `json:"suspended"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// Handler exposes the status endpoints.
type Handler struct {
	src     Source
	logger  *zap.Logger
	metrics Metrics
}

// NewHandler returns a Handler reading from src. m may be nil to disable
// the /metrics endpoint and request counting.
//
// Precondition: src and logger must be non-nil.
func NewHandler(src Source, logger *zap.Logger, m Metrics) *Handler {
	return &Handler{src: src, logger: logger, metrics: m}
}

// Router builds the chi router serving every endpoint.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	if h.metrics != nil {
		r.Use(h.countRequests)
		r.Get("/metrics", h.metrics.Handler().ServeHTTP)
	}
	r.Get("/healthz", h.Health)
	r.Get("/state", h.State)
	r.Get("/lobby", h.Lobby)
	r.Get("/room/actors", h.RoomActors)
	return r
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		h.metrics.IncStatusRequests()
	})
}

// Health handles GET /healthz. It reports 503 while the client is in the
// Error state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if h.src.Snapshot().State == client.Error.String() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// State handles GET /state.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.src.Snapshot())
}

// Lobby handles GET /lobby.
func (h *Handler) Lobby(w http.ResponseWriter, _ *http.Request) {
	rooms := h.src.LobbyRooms()
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomView{
			Name:        r.Name,
			PlayerCount: r.PlayerCount,
			MaxPlayers:  r.MaxPlayers,
			IsOpen:      r.IsOpen,
			Custom:      r.Custom,
		})
	}
	h.writeJSON(w, out)
}

// RoomActors handles GET /room/actors. It answers 404 outside a room.
func (h *Handler) RoomActors(w http.ResponseWriter, _ *http.Request) {
	if h.src.Snapshot().Room == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	actors := h.src.Actors()
	out := make([]ActorView, 0, len(actors))
	for _, a := range actors {
		out = append(out, ActorView{
			Nr:        a.Nr,
			Name:      a.Name,
			Local:     a.Local,
			Suspended: a.Suspended,
			Custom:    a.Custom,
		})
	}
	h.writeJSON(w, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encoding status response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
