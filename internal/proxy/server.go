package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"modelgate/internal/adapter/chat"
	"modelgate/internal/adapter/responses"
	"modelgate/internal/auth"
	"modelgate/internal/config"
	"modelgate/internal/metrics"
	"modelgate/internal/provider"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config. reg receives the
// Prometheus collectors and also backs the /metrics endpoint.
func New(cfg *config.Config, reg *prometheus.Registry) *Server {
	m := metrics.New(reg)
	client := provider.NewClient(
		cfg.ProviderBaseURL,
		cfg.WireAPI(),
		cfg.Credentials(),
		cfg.Originator,
		cfg.RequestTimeout,
		m,
	)

	chatHandler := chat.NewHandler(client, cfg.Model, m)
	responsesHandler := responses.NewHandler(client, cfg.BaseInstructions, m)
	gate := auth.Gate{Bearer: cfg.Token, AllowNoAuth: cfg.AllowNoAuth}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(authMiddleware(gate))
	v1.HandleFunc("/models", handleModels(cfg.Model)).Methods(http.MethodGet)
	v1.Handle("/chat/completions", chatHandler).Methods(http.MethodPost)
	v1.Handle("/responses", responsesHandler).Methods(http.MethodPost)

	var handler http.Handler = router
	if len(cfg.CORSOrigins) > 0 {
		handler = corsMiddleware(cfg.CORSOrigins)(handler)
	}
	handler = loggingMiddleware(m)(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.ListenAddr(),
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			// No write timeout: streaming responses can be long-lived.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with
// httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleModels announces the single configured model.
func handleModels(model string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]string{
				{"id": model, "object": "model"},
			},
		})
	}
}
