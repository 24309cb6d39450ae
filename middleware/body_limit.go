package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// BodyLimit caps every request body at maxBytes using http.MaxBytesReader,
// so reads past the limit fail for json.NewDecoder, ParseMultipartForm and
// io.ReadAll alike.
func BodyLimit(maxBytes int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
