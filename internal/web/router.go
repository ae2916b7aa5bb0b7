package web

import (
	"github.com/gorilla/mux"

	"formloc/internal/auth"
	"formloc/middleware"
)

// SetupRoutes builds the API router. Cache management and settings writes
// require a bearer token from /login.
func (h *Handler) SetupRoutes(authHandlers *auth.AuthHandlers, mw *middleware.Middleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/login", authHandlers.LoginHandler).Methods("POST")
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/submissions", h.CreateSubmission).Methods("POST")
	api.HandleFunc("/submissions", h.ListSubmissions).Methods("GET")
	api.HandleFunc("/submissions/{id}", h.GetSubmission).Methods("GET")
	api.HandleFunc("/submissions/{id}/notes", h.GetSubmissionNotes).Methods("GET")
	api.HandleFunc("/location/{ip}", h.GetLocation).Methods("GET")
	api.HandleFunc("/forms/{formID}/settings", h.GetFormSettings).Methods("GET")
	api.HandleFunc("/forms/{formID}/settings", mw.AuthMiddleware(h.UpdateFormSettings)).Methods("PUT")
	api.HandleFunc("/cache/stats", mw.AuthMiddleware(h.CacheStats)).Methods("GET")
	api.HandleFunc("/cache/clear", mw.AuthMiddleware(h.ClearCache)).Methods("POST")

	return r
}
