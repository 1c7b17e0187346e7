package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Webhook senders already assign a unique id per delivery; reusing it lets a
// delivery be followed from the sender's dashboard into our logs.
var correlationHeaders = []string{requestIDHeader, "X-GitHub-Delivery", "Svix-Id"}

var safeRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID tags every request with a correlation id, echoes it in the
// response header and attaches it to the log context.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := correlationID(r)
			w.Header().Set(requestIDHeader, id)
			if logg != nil {
				r = r.WithContext(logg.WithRequestID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func correlationID(r *http.Request) string {
	for _, header := range correlationHeaders {
		if v := r.Header.Get(header); safeRequestID.MatchString(v) {
			return v
		}
	}
	return uuid.NewString()
}
