package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/handlers"
)

func NewHTTPServer(config *config.Config, handler *handlers.Handler, logger *logrus.Logger) *http.Server {
	router := mux.NewRouter()

	// Driver-facing routes
	router.HandleFunc("/validate-driver", handler.ValidateDriver).Methods("POST")
	router.HandleFunc("/validate-phone", handler.ValidatePhone).Methods("POST")
	router.HandleFunc("/chat", handler.Chat).Methods("POST")
	router.HandleFunc("/chat/history/{driver_id}", handler.History).Methods("GET")

	// Agent-facing routes
	router.HandleFunc("/agent/escalations", handler.Escalations).Methods("GET")
	router.HandleFunc("/agent/claim", handler.Claim).Methods("POST")
	router.HandleFunc("/agent/message", handler.AgentMessage).Methods("POST")
	router.HandleFunc("/agent/resolve", handler.Resolve).Methods("POST")
	router.HandleFunc("/agent/release", handler.Release).Methods("POST")
	router.HandleFunc("/agent/heartbeat", handler.Heartbeat).Methods("POST")

	// Operational routes
	router.HandleFunc("/health", handler.Health).Methods("GET")
	router.HandleFunc("/status", handler.Status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.Use(loggingMiddleware(logger))

	return &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Debug("HTTP request processed")
		})
	}
}
