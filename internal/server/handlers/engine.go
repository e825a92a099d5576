package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/atomic"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/engine"
	apperrors "github.com/ghostpni/ghostpni/internal/errors"
)

const (
	defaultWaitTimeout = 2 * time.Minute
	maxBodyBytes       = 1 << 20
)

// Engine is the part of the mimicry controller the HTTP surface drives.
type Engine interface {
	Submit(ctx context.Context, payload []byte) (*engine.Handle, error)
	Cancel(id string) bool
	Lookup(id string) (core.RealStatus, bool)
	Forward(ctx context.Context, payload []byte) core.Outcome
	Pause()
	Resume()
	Paused() bool
	RequestStorm() bool
	Snapshot() core.Snapshot
	PublicEndpoints() []core.EndpointHealth
}

// EngineHandler serves the dashboard, submission and proxy endpoints.
type EngineHandler struct {
	engine      Engine
	waitTimeout time.Duration
	rpcIDs      atomic.Uint64
}

// NewEngineHandler binds the handlers to an engine. waitTimeout bounds
// blocking submissions; zero uses a two minute default.
func NewEngineHandler(e Engine, waitTimeout time.Duration) *EngineHandler {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	return &EngineHandler{engine: e, waitTimeout: waitTimeout}
}

// EndpointsResponse lists pool health.
type EndpointsResponse struct {
	Network string                `json:"network"`
	Public  []core.EndpointHealth `json:"public"`
	Private []core.EndpointHealth `json:"private,omitempty"`
}

// AdminResponse acknowledges an administrative action.
type AdminResponse struct {
	Action string `json:"action"`
	Paused bool   `json:"paused"`
}

// Status serves the latest published snapshot.
func (h *EngineHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Endpoints serves live pool health. The private pool is only known from
// the snapshot since it is never used for decoys.
func (h *EngineHandler) Endpoints(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.engine.Snapshot()
	public := h.engine.PublicEndpoints()
	if public == nil {
		public = []core.EndpointHealth{}
	}
	writeJSON(w, http.StatusOK, EndpointsResponse{
		Network: snapshot.Network,
		Public:  public,
		Private: snapshot.PrivateEndpoints,
	})
}

// Pause stops decoys and real release.
func (h *EngineHandler) Pause(w http.ResponseWriter, _ *http.Request) {
	h.engine.Pause()
	writeJSON(w, http.StatusOK, AdminResponse{Action: "pause", Paused: h.engine.Paused()})
}

// Resume restarts a paused engine.
func (h *EngineHandler) Resume(w http.ResponseWriter, _ *http.Request) {
	h.engine.Resume()
	writeJSON(w, http.StatusOK, AdminResponse{Action: "resume", Paused: h.engine.Paused()})
}

// Storm asks for a storm on the next tick.
func (h *EngineHandler) Storm(w http.ResponseWriter, r *http.Request) {
	if !h.engine.RequestStorm() {
		respondWithError(w, r, apperrors.NewConflictError("Decoys are disabled; storms cannot be requested"))
		return
	}
	writeJSON(w, http.StatusAccepted, AdminResponse{Action: "storm", Paused: h.engine.Paused()})
}
