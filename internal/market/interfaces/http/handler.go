package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apihttp "gridmarket/internal/api/http"
	"gridmarket/internal/audit"
	"gridmarket/internal/auth"
	marketapp "gridmarket/internal/market/application"
)

// MarketHandler handles the capacity market APIs.
type MarketHandler struct {
	service     *marketapp.Service
	auditLogger audit.Logger
}

// NewMarketHandler constructs a handler.
func NewMarketHandler(service *marketapp.Service, auditLogger audit.Logger) (*MarketHandler, error) {
	if service == nil {
		return nil, errors.New("market handler: nil service")
	}
	return &MarketHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles market routes under /api/v1/market.
func (h *MarketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/market/surcharge":
		if r.Method == http.MethodPost {
			h.handleSurcharge(w, r)
			return
		}
	case "/api/v1/market/purchases":
		if r.Method == http.MethodPost {
			h.handlePurchase(w, r)
			return
		}
	case "/api/v1/market/balance":
		if r.Method == http.MethodGet {
			h.handleBalance(w, r)
			return
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (h *MarketHandler) handleSurcharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID int64 `json:"station_id"`
		Amount    int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	if err := h.service.SetSurcharge(r.Context(), caller, req.StationID, req.Amount); err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"station_id": req.StationID, "surcharge": req.Amount})
	h.logAudit(r, req.StationID, "market.surcharge", map[string]any{"amount": req.Amount})
}

func (h *MarketHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID int64 `json:"station_id"`
		Amount    int64 `json:"amount"`
		Tendered  int64 `json:"tendered"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	buyer := auth.IdentityFromContext(r.Context())
	receipt, err := h.service.BuyCapacity(r.Context(), buyer, req.StationID, req.Amount, req.Tendered)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, receipt)
	h.logAudit(r, req.StationID, "market.purchase", map[string]any{
		"amount":   receipt.Amount,
		"price":    receipt.Price,
		"refund":   receipt.Refund,
		"tendered": req.Tendered,
	})
}

func (h *MarketHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = auth.IdentityFromContext(r.Context())
	}
	balance, err := h.service.Balance(r.Context(), identity)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"identity": identity, "balance": balance})
}

func (h *MarketHandler) logAudit(r *http.Request, stationID int64, action string, meta map[string]any) {
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
