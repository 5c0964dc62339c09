package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	apihttp "gridmarket/internal/api/http"
	"gridmarket/internal/audit"
	"gridmarket/internal/auth"
	registryapp "gridmarket/internal/registry/application"
	registry "gridmarket/internal/registry/domain"
)

// StationHandler handles the station registry APIs.
type StationHandler struct {
	service     *registryapp.Service
	auditLogger audit.Logger
}

// NewStationHandler constructs a handler.
func NewStationHandler(service *registryapp.Service, auditLogger audit.Logger) (*StationHandler, error) {
	if service == nil {
		return nil, errors.New("station handler: nil service")
	}
	return &StationHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles station routes under /api/v1/stations.
func (h *StationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/stations" {
		switch r.Method {
		case http.MethodPost:
			h.handleAdd(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if path == "/api/v1/stations/count" && r.Method == http.MethodGet {
		h.handleCount(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/stations/") {
		h.handleByID(w, r, strings.TrimPrefix(path, "/api/v1/stations/"))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *StationHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude          int64  `json:"latitude"`
		Longitude         int64  `json:"longitude"`
		InstalledCapacity int64  `json:"installed_capacity"`
		SellCapacity      int64  `json:"sell_capacity"`
		PricePerUnit      int64  `json:"price_per_unit"`
		GenerationType    string `json:"generation_type"`
		State             string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	genType, err := registry.ParseGenerationType(req.GenerationType)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	state, err := registry.ParseLifecycleState(req.State)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	station, err := h.service.AddStation(r.Context(), caller, registryapp.AddStationInput{
		Coordinates:       registry.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
		InstalledCapacity: req.InstalledCapacity,
		SellCapacity:      req.SellCapacity,
		PricePerUnit:      req.PricePerUnit,
		GenerationType:    genType,
		InitialState:      state,
	})
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, station)
	h.logAudit(r, station.ID, "station.add", map[string]any{
		"generation_type":    string(station.GenerationType),
		"installed_capacity": station.InstalledCapacity,
	})
}

func (h *StationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt64(r, "start", 0)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	count, err := queryInt64(r, "count", 0)
	if err != nil {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return
	}
	stations, err := h.service.ListStations(r.Context(), start, count)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, stations)
}

func (h *StationHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.StationCount(r.Context())
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *StationHandler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid station id", http.StatusBadRequest)
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		station, err := h.service.GetStation(r.Context(), id)
		if err != nil {
			apihttp.RespondError(w, err)
			return
		}
		apihttp.RespondJSON(w, http.StatusOK, station)
		return
	}
	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "sell-capacity":
			h.handleSellCapacity(w, r, id)
			return
		case "target-reserve":
			h.handleTargetReserve(w, r, id)
			return
		case "owner":
			h.handleOwner(w, r, id)
			return
		case "state":
			h.handleState(w, r, id)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *StationHandler) handleSellCapacity(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		SellCapacity int64 `json:"sell_capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	if err := h.service.UpdateSellCapacity(r.Context(), caller, id, req.SellCapacity); err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": id, "sell_capacity": req.SellCapacity})
	h.logAudit(r, id, "station.sell_capacity", map[string]any{"sell_capacity": req.SellCapacity})
}

func (h *StationHandler) handleTargetReserve(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		TargetReserve int64 `json:"target_reserve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	if err := h.service.SetTargetReserve(r.Context(), caller, id, req.TargetReserve); err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": id, "target_reserve": req.TargetReserve})
	h.logAudit(r, id, "station.target_reserve", map[string]any{"target_reserve": req.TargetReserve})
}

func (h *StationHandler) handleOwner(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	if err := h.service.ChangeOwner(r.Context(), caller, id, req.NewOwner); err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": id, "owner": req.NewOwner})
	h.logAudit(r, id, "station.owner", map[string]any{"new_owner": req.NewOwner})
}

func (h *StationHandler) handleState(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	state, err := registry.ParseLifecycleState(req.State)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	if err := h.service.ChangeState(r.Context(), caller, id, state); err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": id, "state": req.State})
	h.logAudit(r, id, "station.state", map[string]any{"state": req.State})
}

func (h *StationHandler) logAudit(r *http.Request, stationID int64, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:     auth.IdentityFromContext(r.Context()),
		Action:    action,
		StationID: stationID,
		Metadata:  payload,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}

func queryInt64(r *http.Request, key string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
