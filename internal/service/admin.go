package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/connection"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// NewAdminRouter exposes health, metrics and per-store connection diagnostics
func NewAdminRouter(svc *StoreService, manager *connection.Manager, health *HealthReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Check(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/connections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Stats())
	})

	r.Route("/stores/{storeID}", func(r chi.Router) {
		r.Put("/database", func(w http.ResponseWriter, r *http.Request) {
			var req DatabaseRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			req.StoreID = chi.URLParam(r, "storeID")

			d, err := svc.ConfigureDatabase(r.Context(), req)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"id":                d.ID,
				"store_id":          d.StoreID,
				"database_type":     d.DatabaseType,
				"connection_status": d.ConnectionStatus,
			})
		})

		r.Delete("/database", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DisconnectDatabase(r.Context(), chi.URLParam(r, "storeID")); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/database/test", func(w http.ResponseWriter, r *http.Request) {
			result := svc.TestDatabase(r.Context(), chi.URLParam(r, "storeID"))
			writeJSON(w, http.StatusOK, result)
		})

		r.Delete("/connection", func(w http.ResponseWriter, r *http.Request) {
			storeID := chi.URLParam(r, "storeID")
			if !model.ValidStoreID(storeID) {
				writeError(w, model.ErrInvalidStoreID)
				return
			}
			manager.ClearCache(storeID)
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// statusFor maps error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidStoreID), errors.Is(err, model.ErrMissingCredential),
		errors.Is(err, model.ErrUnsupportedBackendType):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnsupportedOperation):
		return http.StatusConflict
	case errors.Is(err, model.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Admin request failed")
		msg = "Internal server error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
