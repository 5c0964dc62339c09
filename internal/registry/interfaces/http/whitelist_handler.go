package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apihttp "gridmarket/internal/api/http"
	"gridmarket/internal/audit"
	"gridmarket/internal/auth"
	registryapp "gridmarket/internal/registry/application"
)

// WhitelistHandler handles operator whitelist administration.
type WhitelistHandler struct {
	service     *registryapp.Service
	auditLogger audit.Logger
}

// NewWhitelistHandler constructs a handler.
func NewWhitelistHandler(service *registryapp.Service, auditLogger audit.Logger) (*WhitelistHandler, error) {
	if service == nil {
		return nil, errors.New("whitelist handler: nil service")
	}
	return &WhitelistHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles whitelist routes under /api/v1/whitelist.
func (h *WhitelistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/whitelist" && r.Method == http.MethodPost {
		h.handleSet(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/whitelist/") && r.Method == http.MethodGet {
		h.handleGet(w, r, strings.TrimPrefix(path, "/api/v1/whitelist/"))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *WhitelistHandler) handleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Allowed  bool   `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.IdentityFromContext(r.Context())
	var err error
	if req.Allowed {
		err = h.service.Admit(r.Context(), caller, req.Identity)
	} else {
		err = h.service.Revoke(r.Context(), caller, req.Identity)
	}
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"identity": req.Identity, "allowed": req.Allowed})
	h.logAudit(r, req.Identity, req.Allowed)
}

func (h *WhitelistHandler) handleGet(w http.ResponseWriter, r *http.Request, identity string) {
	if identity == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	allowed, err := h.service.IsWhitelisted(r.Context(), identity)
	if err != nil {
		apihttp.RespondError(w, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"identity": identity, "allowed": allowed})
}

func (h *WhitelistHandler) logAudit(r *http.Request, identity string, allowed bool) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"identity": identity, "allowed": allowed})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:     auth.IdentityFromContext(r.Context()),
		Action:    "whitelist.set",
		Metadata:  payload,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}
