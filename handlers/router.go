package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courtside/logger"
	"courtside/middleware"
	"courtside/socket"
)

// NewRouter wires the relay's REST, socket and metrics endpoints
func NewRouter(hub *Hub, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/signup", Signup).Methods(http.MethodPost)
	auth.HandleFunc("/login", Login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", Logout).Methods(http.MethodPost)
	auth.Handle("/me", middleware.Auth(http.HandlerFunc(Me))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth)
	api.HandleFunc("/conversations", GetConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", CreateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", GetMessages).Methods(http.MethodGet)

	r.Handle(socket.DefaultPath, middleware.Auth(http.HandlerFunc(hub.ServeWS)))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return logger.RequestLogger(r)
}
