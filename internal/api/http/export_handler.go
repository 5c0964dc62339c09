package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gridmarket/internal/observability/metrics"
	registryapp "gridmarket/internal/registry/application"
	registry "gridmarket/internal/registry/domain"
	servicelogapp "gridmarket/internal/servicelog/application"
	servicelog "gridmarket/internal/servicelog/domain"
)

// ExportHandler serves registry and service log exports.
type ExportHandler struct {
	stations *registryapp.Service
	records  *servicelogapp.Service
}

// NewExportHandler constructs an export handler.
func NewExportHandler(stations *registryapp.Service, records *servicelogapp.Service) (*ExportHandler, error) {
	if stations == nil {
		return nil, errors.New("export handler: nil registry service")
	}
	if records == nil {
		return nil, errors.New("export handler: nil servicelog service")
	}
	return &ExportHandler{stations: stations, records: records}, nil
}

// ServeHTTP handles export routes under /api/v1/exports.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Path
	switch {
	case path == "/api/v1/exports/stations.csv":
		h.handleStationsCSV(w, r)
	case path == "/api/v1/exports/stations.xlsx":
		h.handleStationsXLSX(w, r)
	case strings.HasPrefix(path, "/api/v1/exports/stations/") && strings.HasSuffix(path, "/report.pdf"):
		rest := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/exports/stations/"), "/report.pdf")
		h.handleStationPDF(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ExportHandler) handleStationsCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var err error
	defer func() { metrics.RecordOperation("export.stations.csv", err, time.Since(start)) }()

	stations, err := h.allStations(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	data, err := BuildStationsCSV(stations)
	if err != nil {
		http.Error(w, "export csv error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="stations.csv"`)
	_, _ = w.Write(data)
}

func (h *ExportHandler) handleStationsXLSX(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var err error
	defer func() { metrics.RecordOperation("export.stations.xlsx", err, time.Since(start)) }()

	stations, err := h.allStations(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	data, err := BuildStationsXLSX(stations)
	if err != nil {
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="stations.xlsx"`)
	_, _ = w.Write(data)
}

func (h *ExportHandler) handleStationPDF(w http.ResponseWriter, r *http.Request, rawID string) {
	start := time.Now()
	var err error
	defer func() { metrics.RecordOperation("export.station.pdf", err, time.Since(start)) }()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, "invalid station id", http.StatusBadRequest)
		return
	}
	station, err := h.stations.GetStation(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	var records []servicelog.Record
	total, err := h.records.RecordCount(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if total > 0 {
		records, err = h.records.ListRecords(r.Context(), id, 0, total)
		if err != nil {
			RespondError(w, err)
			return
		}
	}
	data, err := BuildStationPDF(station, records)
	if err != nil {
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(data)
}

func (h *ExportHandler) allStations(r *http.Request) ([]registry.Station, error) {
	total, err := h.stations.StationCount(r.Context())
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	return h.stations.ListStations(r.Context(), 0, total)
}
