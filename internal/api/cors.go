package api

import (
	"net/http"

	"github.com/go-chi/cors"
)

// DefaultCORSOrigins are the local front-end dev server origins.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// CORS allows credentialed cross-origin requests from the listed origins and
// answers preflight requests. An empty list falls back to DefaultCORSOrigins.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Chat-ID"},
		AllowCredentials: true,
	})
}
