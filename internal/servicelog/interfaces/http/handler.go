package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apihttp "gridmarket/internal/api/http"
	"gridmarket/internal/audit"
	"gridmarket/internal/auth"
	servicelogapp "gridmarket/internal/servicelog/application"
)

// ServiceRecordHandler handles the per-station service log APIs.
type ServiceRecordHandler struct {
	service     *servicelogapp.Service
	auditLogger audit.Logger
}

// NewServiceRecordHandler constructs a handler.
func NewServiceRecordHandler(service *servicelogapp.Service, auditLogger audit.Logger) (*ServiceRecordHandler, error) {
	if service == nil {
		return nil, errors.New("service record handler: nil service")
	}
	return &ServiceRecordHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles routes under /api/v1/service-records.
func (h *ServiceRecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/service-records":
		switch r.Method {
		case http.MethodPost:
			h.handleAdd(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "/api/v1/service-records/count":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCount(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ServiceRecordHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID int64  `json:"station_id"`
		ReportRef string `json:"report_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	count, err := h.service.AddEntry(r.Context(), caller, req.StationID, req.ReportRef)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, map[string]any{"station_id": req.StationID, "record_count": count})
	h.logAudit(r, req.StationID, req.ReportRef)
}

func (h *ServiceRecordHandler) handleList(w http.ResponseWriter, r *http.Request) {
	stationID, err := queryInt64(r, "station_id")
	if err != nil {
		http.Error(w, "invalid station_id", http.StatusBadRequest)
		return
	}
	start, err := queryInt64(r, "start")
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	count, err := queryInt64(r, "count")
	if err != nil {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return
	}
	records, err := h.service.ListRecords(r.Context(), stationID, start, count)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, records)
}

func (h *ServiceRecordHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	stationID, err := queryInt64(r, "station_id")
	if err != nil {
		http.Error(w, "invalid station_id", http.StatusBadRequest)
		return
	}
	count, err := h.service.RecordCount(r.Context(), stationID)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": stationID, "record_count": count})
}

func (h *ServiceRecordHandler) logAudit(r *http.Request, stationID int64, reportRef string) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"report_ref": reportRef})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:     auth.IdentityFromContext(r.Context()),
		Action:    "servicelog.add",
		StationID: stationID,
		Metadata:  payload,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
