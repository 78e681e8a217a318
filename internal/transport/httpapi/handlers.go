package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/program"
)

type handlers struct {
	deps Deps
	log  *logrus.Logger
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth enforces a bearer token on every route it wraps. Skipped
// entirely when no Issuer is configured, so the server is still usable
// standalone (e.g. in a simulation-only demo) without authentication
// wired up.
func (h *handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Issuer == nil {
			next.ServeHTTP(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authz, "Bearer ")
		if token == "" || token == authz {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := h.deps.Issuer.Validate(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.deps.Issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.deps.Issuer.Authenticate(req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type jogStartRequest struct {
	Mode        string  `json:"mode"`
	Target      string  `json:"target"`
	Direction   int     `json:"direction"`
	VelocityPct float64 `json:"velocity_pct"`
}

func (h *handlers) handleJogStart(w http.ResponseWriter, r *http.Request) {
	var req jogStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := jogModeFromString(req.Mode)
	if err := h.deps.Controller.HandleJogStart(r.Context(), mode, req.Target, req.Direction, req.VelocityPct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jogVelocityRequest struct {
	VelocityPct float64 `json:"velocity_pct"`
}

func (h *handlers) handleJogVelocity(w http.ResponseWriter, r *http.Request) {
	var req jogVelocityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.deps.Controller.HandleJogVelocity(req.VelocityPct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleJogStop(w http.ResponseWriter, r *http.Request) {
	h.deps.Controller.HandleJogStop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jogIncrementRequest struct {
	Mode      string  `json:"mode"`
	Target    string  `json:"target"`
	Direction int     `json:"direction"`
	Increment float64 `json:"increment"`
}

func (h *handlers) handleJogIncrement(w http.ResponseWriter, r *http.Request) {
	var req jogIncrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := jogModeFromString(req.Mode)
	if err := h.deps.Controller.HandleJogIncrement(mode, req.Target, req.Direction, req.Increment); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type moveJRequest struct {
	JointPositions kinematics.JointVector `json:"joint_positions"`
	VelocityPct    float64                `json:"velocity_pct"`
}

func (h *handlers) handleMoveJ(w http.ResponseWriter, r *http.Request) {
	var req moveJRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.deps.Controller.HandleMoveJ(r.Context(), req.JointPositions, req.VelocityPct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type moveLRequest struct {
	Position     kinematics.EndEffectorPose `json:"position"`
	PositionMask [6]bool                    `json:"position_mask"`
	VelocityPct  float64                    `json:"velocity_pct"`
}

func (h *handlers) handleMoveL(w http.ResponseWriter, r *http.Request) {
	var req moveLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.deps.Controller.HandleMoveL(r.Context(), req.Position, req.PositionMask, req.VelocityPct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Controller.HandleHome(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleEStop(w http.ResponseWriter, r *http.Request) {
	h.deps.Controller.HandleEmergencyStop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleState(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.State.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"joint_positions": snap.Joints,
		"ee_position":     snap.Pose,
		"jog": map[string]interface{}{
			"active":       snap.Jog.Active,
			"mode":         snap.Jog.Mode.String(),
			"velocity_pct": snap.Jog.VelocityPct,
			"direction":    snap.Jog.Direction,
		},
	})
}

func (h *handlers) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	progs, err := h.deps.ProgramStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, progs)
}

func (h *handlers) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	var p program.Program
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := h.deps.ProgramStore.Create(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	p, err := h.deps.ProgramStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) handleReplaceProgram(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	var p program.Program
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = id
	if err := h.deps.ProgramStore.Replace(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.deps.ProgramStore.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handlers) handleExecuteProgram(w http.ResponseWriter, r *http.Request) {
	if h.deps.ProgramStore == nil {
		writeError(w, http.StatusServiceUnavailable, "program storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	p, err := h.deps.ProgramStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Execution runs in the background; its lifecycle is observed
	// entirely through program_execution broadcast events, so this
	// handler returns immediately once the run has been accepted.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if err := h.deps.Engine.Execute(ctx, p); err != nil {
			h.log.WithError(err).WithField("program_id", id).Warn("program execution failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *handlers) handleListSavedPoses(w http.ResponseWriter, r *http.Request) {
	if h.deps.PoseStore == nil {
		writeError(w, http.StatusServiceUnavailable, "saved-pose storage is not configured")
		return
	}
	poses, err := h.deps.PoseStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, poses)
}

type savePoseRequest struct {
	Name string `json:"name"`
}

func (h *handlers) handleSaveCurrentPose(w http.ResponseWriter, r *http.Request) {
	if h.deps.PoseStore == nil {
		writeError(w, http.StatusServiceUnavailable, "saved-pose storage is not configured")
		return
	}
	var req savePoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved := posestate.Capture(h.deps.State, uuid.New().String(), req.Name, time.Now())
	if err := h.deps.PoseStore.Create(r.Context(), saved); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *handlers) handleDeleteSavedPose(w http.ResponseWriter, r *http.Request) {
	if h.deps.PoseStore == nil {
		writeError(w, http.StatusServiceUnavailable, "saved-pose storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.deps.PoseStore.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func jogModeFromString(s string) posestate.JogMode {
	switch s {
	case "joint":
		return posestate.JogJoint
	case "cartesian":
		return posestate.JogCartesian
	default:
		return posestate.JogNone
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
