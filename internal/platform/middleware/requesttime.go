package middleware

import (
	"net/http"
	"time"

	"calibra/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request and
// stores it in the context. Everything downstream that needs "now",
// certificate timestamps included, reads this one value, so a single
// request never observes two clocks.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
