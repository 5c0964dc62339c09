package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gridmarket/internal/accesscontrol"
	"gridmarket/internal/ledger"
	market "gridmarket/internal/market/domain"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

// RespondJSON writes a JSON response body.
func RespondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RespondError maps domain errors onto HTTP status codes. Unknown
// errors are treated as internal failures and the detail is withheld.
func RespondError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, accesscontrol.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, registry.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrInvalidArgument),
		errors.Is(err, servicelog.ErrInvalidArgument),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidTransfer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, market.ErrSurchargeNotSet),
		errors.Is(err, market.ErrCapacityExceeded),
		errors.Is(err, market.ErrSelfTradeRejected),
		errors.Is(err, ledger.ErrAdministratorSet),
		errors.Is(err, ledger.ErrTransferFailed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
