package http

import (
	"net/http"

	"gridmarket/internal/eventing"
)

// RequestCorrelation tags every request context with a correlation id,
// so events emitted while handling the request share it. An incoming
// X-Request-ID header is honored, otherwise an id is generated; either
// way the id is echoed on the response.
func RequestCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = eventing.NewEventID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(eventing.WithCorrelationID(r.Context(), id)))
	})
}
