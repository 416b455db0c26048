// Package query implements the three request/reply endpoints (C11):
// ApplyTc, ClearTc, and ScenarioControl, exposed over a chi-routed HTTP API.
// The ApplyTc, ClearTc and ScenarioControl handlers validate the target
// exists in the catalog before delegating to the TC engine or scenario
// executor (spec.md §4.11); the scenario status read does not consult the
// catalog.
package query

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/p13marc/netimpaird/internal/catalog"
	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/scenario"
	"github.com/p13marc/netimpaird/internal/tcengine"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// Handler implements the C11 query handlers against a catalog, TC engine,
// and scenario manager.
type Handler struct {
	catalog   *catalog.Catalog
	engine    *tcengine.Engine
	scenarios *scenario.Manager
	presets   map[string]scenario.Definition
}

// NewHandler returns a Handler wired to the given components. presets is the
// loaded set of scenario definitions keyed by id (from scenario.LoadDir),
// used to resolve a ScenarioControl Start request's scenario id.
func NewHandler(cat *catalog.Catalog, engine *tcengine.Engine, scenarios *scenario.Manager, presets map[string]scenario.Definition) *Handler {
	return &Handler{catalog: cat, engine: engine, scenarios: scenarios, presets: presets}
}

// Router builds the chi router exposing this handler's endpoints.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/ns/{nsKind}/{nsName}/ifaces/{iface}", func(r chi.Router) {
		r.Put("/tc", h.handleApplyTc)
		r.Delete("/tc", h.handleClearTc)
		r.Post("/scenario", h.handleScenarioControl)
		r.Get("/scenario", h.handleScenarioStatus)
	})
	return r
}

// targetFromRequest resolves the path's {nsKind}/{nsName}/{iface} into a
// netid.Key, the composite identity every catalog/TC/scenario lookup uses.
func targetFromRequest(r *http.Request) (netid.Key, error) {
	nsKind := chi.URLParam(r, "nsKind")
	nsName := chi.URLParam(r, "nsName")
	iface := chi.URLParam(r, "iface")

	var ns netid.NamespaceId
	switch nsKind {
	case "default":
		ns = netid.Default()
	case "named":
		ns = netid.Named(nsName)
	case "container":
		ns = netid.Container(nsName, "")
	default:
		return netid.Key{}, xerrors.New(xerrors.InvalidScenario, "unknown namespace kind "+nsKind)
	}
	return netid.Key{Namespace: ns, Interface: iface}, nil
}

// applyTcRequest is the PUT /tc request body.
type applyTcRequest struct {
	Loss      *netem.Loss      `json:"loss,omitempty"`
	Delay     *netem.Delay     `json:"delay,omitempty"`
	Duplicate *netem.Duplicate `json:"duplicate,omitempty"`
	Reorder   *netem.Reorder   `json:"reorder,omitempty"`
	Corrupt   *netem.Corrupt   `json:"corrupt,omitempty"`
	Rate      *netem.Rate      `json:"rate,omitempty"`
}

func (req applyTcRequest) toConfig() netem.Config {
	return netem.Config{
		Loss:      req.Loss,
		Delay:     req.Delay,
		Duplicate: req.Duplicate,
		Reorder:   req.Reorder,
		Corrupt:   req.Corrupt,
		Rate:      req.Rate,
	}
}

// handleApplyTc implements ApplyTc(ns, iface, NetemConfig).
func (h *Handler) handleApplyTc(w http.ResponseWriter, r *http.Request) {
	key, err := targetFromRequest(r)
	if err != nil {
		writeXerror(w, err)
		return
	}
	if !h.catalog.Exists(key) {
		writeXerror(w, xerrors.New(xerrors.UnknownInterface, key.String()))
		return
	}

	var req applyTcRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	cfg := req.toConfig()

	if err := h.engine.ApplyTc(r.Context(), key, cfg); err != nil {
		writeXerror(w, err)
		return
	}
	effective, err := h.engine.Detect(r.Context(), key)
	if err != nil {
		writeXerror(w, err)
		return
	}
	writeJSON(w, http.StatusOK, effective)
}

// handleClearTc implements ClearTc(ns, iface); NotFound becomes success.
func (h *Handler) handleClearTc(w http.ResponseWriter, r *http.Request) {
	key, err := targetFromRequest(r)
	if err != nil {
		writeXerror(w, err)
		return
	}
	if !h.catalog.Exists(key) {
		writeXerror(w, xerrors.New(xerrors.UnknownInterface, key.String()))
		return
	}

	if err := h.engine.ClearTc(r.Context(), key); err != nil && !xerrors.Is(err, xerrors.NotFound) {
		writeXerror(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scenarioControlRequest is the POST /scenario request body.
type scenarioControlRequest struct {
	Action     string `json:"action"` // start, pause, resume, stop
	ScenarioId string `json:"scenario_id,omitempty"`
}

// scenarioStatusResponse mirrors scenario.Progress for the wire.
type scenarioStatusResponse struct {
	ScenarioId     string `json:"scenario_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	StepIndex      int    `json:"step_index"`
	LoopIter       int    `json:"loop_iter"`
	StepsCompleted int    `json:"steps_completed"`
	ElapsedMs      int64  `json:"elapsed_ms"`
}

func toStatusResponse(p scenario.Progress) scenarioStatusResponse {
	return scenarioStatusResponse{
		ScenarioId:     p.ScenarioId,
		Status:         string(p.Status),
		Reason:         string(p.Reason),
		StepIndex:      p.StepIndex,
		LoopIter:       p.LoopIter,
		StepsCompleted: p.StepsCompleted,
		ElapsedMs:      p.ElapsedInStep.Milliseconds(),
	}
}

// handleScenarioControl implements ScenarioControl(ns, iface, action).
func (h *Handler) handleScenarioControl(w http.ResponseWriter, r *http.Request) {
	key, err := targetFromRequest(r)
	if err != nil {
		writeXerror(w, err)
		return
	}
	if !h.catalog.Exists(key) {
		writeXerror(w, xerrors.New(xerrors.UnknownInterface, key.String()))
		return
	}

	var req scenarioControlRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var exec *scenario.Execution
	switch req.Action {
	case "start":
		def, ok := h.presets[req.ScenarioId]
		if !ok {
			writeXerror(w, xerrors.New(xerrors.InvalidScenario, "unknown scenario id "+req.ScenarioId))
			return
		}
		exec, err = h.scenarios.Start(r.Context(), key, def)
	case "pause":
		exec, err = h.scenarios.Pause(r.Context(), key)
	case "resume":
		exec, err = h.scenarios.Resume(r.Context(), key)
	case "stop":
		exec, err = h.scenarios.Stop(r.Context(), key)
	default:
		writeXerror(w, xerrors.New(xerrors.InvalidScenario, "unknown action "+req.Action))
		return
	}
	if err != nil {
		writeXerror(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(exec.Snapshot()))
}

// handleScenarioStatus returns the current execution status for a target.
func (h *Handler) handleScenarioStatus(w http.ResponseWriter, r *http.Request) {
	key, err := targetFromRequest(r)
	if err != nil {
		writeXerror(w, err)
		return
	}
	exec, ok := h.scenarios.Lookup(key)
	if !ok {
		writeXerror(w, xerrors.New(xerrors.NotFound, key.String()))
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(exec.Snapshot()))
}
