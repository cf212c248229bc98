// Package api exposes the rule store, execution log and engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
	"github.com/gyaneshwarpardhi/automation/internal/engine"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

const maxBodyBytes = 1 << 20

// Deps are the components the handlers operate on.
type Deps struct {
	Engine *engine.Engine
	Store  *store.Store
	Log    *execlog.Log
	Bus    *event.Bus
	Host   *host.Memory
	Logger *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	store  *store.Store
	log    *execlog.Log
	bus    *event.Bus
	host   *host.Memory
	logger *slog.Logger
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{eng: d.Engine, store: d.Store, log: d.Log, bus: d.Bus, host: d.Host, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.addRule)
			r.Delete("/", h.removeRuleByTitle)
			r.Post("/if-not-exists", h.addRuleIfNotExists)
			r.Post("/swap", h.swapRules)
			r.Get("/user", h.userRules)
			r.Put("/{index}", h.setRule)
			r.Delete("/{index}", h.removeRuleAt)
			r.Post("/{index}/run", h.runUserRule)
		})
		r.Get("/log", h.getLog)
		r.Get("/ws", h.stream)
		r.Get("/catalog", h.catalog)
		r.Post("/host/state", h.patchHostState)
		r.Post("/events/{kind}", h.injectEvent)
		r.Post("/passes", h.requestPass)
	})
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func indexParam(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", chi.URLParam(r, "index"))
	}
	return i, nil
}

// decodeRule reads a rule document from the body.
func decodeRule(r *http.Request, pos int) (rule.Rule, error) {
	var d rule.Document
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&d); err != nil {
		return rule.Rule{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if d.Title == "" {
		return rule.Rule{}, errors.New("title is required")
	}
	return rule.FromDocument(d, pos)
}

// GET /v1/rules
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules := h.store.Snapshot()
	out := make([]ruleView, 0, len(rules))
	for i, rl := range rules {
		out = append(out, viewOf(i, rl))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

// POST /v1/rules
func (h *Handler) addRule(w http.ResponseWriter, r *http.Request) {
	rl, err := decodeRule(r, h.store.Size())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.store.Add(rl)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"added": true, "size": h.store.Size()})
}

// POST /v1/rules/if-not-exists
func (h *Handler) addRuleIfNotExists(w http.ResponseWriter, r *http.Request) {
	rl, err := decodeRule(r, h.store.Size())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	added := h.store.AddIfNotExists(rl)
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"added": added, "size": h.store.Size()})
}

// PUT /v1/rules/{index}
func (h *Handler) setRule(w http.ResponseWriter, r *http.Request) {
	i, err := indexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rl, err := decodeRule(r, i)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Set(rl, i); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}

// DELETE /v1/rules/{index}
func (h *Handler) removeRuleAt(w http.ResponseWriter, r *http.Request) {
	i, err := indexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.store.RemoveAt(i) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"removed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": true})
}

// DELETE /v1/rules?title=
func (h *Handler) removeRuleByTitle(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title query parameter is required")
		return
	}
	removed := h.store.RemoveIfExists(rule.Rule{Title: title})
	status := http.StatusOK
	if !removed {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]interface{}{"removed": removed})
}

type swapRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// POST /v1/rules/swap
func (h *Handler) swapRules(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := h.store.Swap(req.From, req.To); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"swapped": true})
}

// GET /v1/rules/user
func (h *Handler) userRules(w http.ResponseWriter, r *http.Request) {
	index := make(map[string]int)
	for i, rl := range h.store.Snapshot() {
		index[rl.ID] = i
	}
	user := h.store.UserEvents()
	out := make([]ruleView, 0, len(user))
	for _, rl := range user {
		i, ok := index[rl.ID]
		if !ok {
			continue
		}
		out = append(out, viewOf(i, rl))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

// POST /v1/rules/{index}/run
func (h *Handler) runUserRule(w http.ResponseWriter, r *http.Request) {
	i, err := indexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ran, err := h.eng.RunUserRule(r.Context(), i)
	switch {
	case errors.Is(err, store.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotUserRule):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ran": ran})
	}
}

// GET /v1/log?limit=n
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", s))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.log.Tail(limit),
		"total":   h.log.Len(),
	})
}

// GET /v1/catalog[?templates=true]
// With templates, every kind comes with a default document whose glucose
// values are in the host's display units.
func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("templates") != "true" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"triggers": condition.Kinds(),
			"actions":  action.Kinds(),
		})
		return
	}
	units := h.host.State().Units
	triggers := make(map[string]json.RawMessage)
	for _, k := range condition.Kinds() {
		t, err := condition.TemplateIn(k, units)
		if err == nil {
			var s string
			s, err = condition.Encode(t)
			triggers[k] = json.RawMessage(s)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	actions := make(map[string]json.RawMessage)
	for _, k := range action.Kinds() {
		a, err := action.TemplateIn(k, units)
		if err == nil {
			var s string
			s, err = action.Encode(a)
			actions[k] = json.RawMessage(s)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"units":    units,
		"triggers": triggers,
		"actions":  actions,
	})
}

// POST /v1/host/state
func (h *Handler) patchHostState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.host.Patch(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.host.State())
}

// POST /v1/events/{kind}
func (h *Handler) injectEvent(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))

	var ev event.Event
	switch kind {
	case "location":
		var p event.LocationChange
		if err := dec.Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
			return
		}
		h.host.SetLocation(host.Position{Latitude: p.Latitude, Longitude: p.Longitude})
		ev = event.New(event.KindLocationChanged, p)
	case "charging":
		var p event.ChargingChange
		if err := dec.Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
			return
		}
		h.host.Update(func(s *host.State) { s.Charging = p.Charging })
		ev = event.New(event.KindChargingChanged, p)
	case "network":
		var p event.NetworkChange
		if err := dec.Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
			return
		}
		h.host.Update(func(s *host.State) {
			s.WifiSSID = ""
			if p.WifiConnected {
				s.WifiSSID = p.SSID
			}
		})
		ev = event.New(event.KindNetworkChanged, p)
	case "bt":
		var p event.BTChange
		if err := dec.Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
			return
		}
		if p.State != event.BTConnected && p.State != event.BTDisconnected {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid bt state %q", p.State))
			return
		}
		if p.DeviceName == "" {
			writeError(w, http.StatusBadRequest, "device_name is required")
			return
		}
		ev = event.New(event.KindBTChanged, p)
	case "preference":
		var p event.PreferenceChange
		if err := dec.Decode(&p); err != nil || p.Key == "" {
			writeError(w, http.StatusBadRequest, "a preference key is required")
			return
		}
		ev = event.New(event.KindPreferenceChanged, p)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown event kind %q", kind))
		return
	}

	ev.Source = "api"
	h.bus.Publish(ev)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"event_id": ev.ID, "kind": ev.Kind})
}

// POST /v1/passes[?wait=true]
func (h *Handler) requestPass(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		if err := h.eng.RunPass(r.Context(), engine.ReasonAPI); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"completed": true})
		return
	}
	queued := h.eng.TriggerPass(engine.ReasonAPI)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": queued})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 until the engine runs, or while its pass queue is saturated.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.eng.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "starting"})
		return
	}
	util := h.eng.QueueUtilization()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"rules":             h.store.Size(),
	})
}
