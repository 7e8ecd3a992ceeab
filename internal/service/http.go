package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBytes bounds initiate request bodies.
const maxRequestBytes = 1 << 20

// Handler builds the HTTP surface over the dispatcher: scan initiation,
// status, report, cancel, health, and prometheus metrics.
func Handler(svc *Service, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/scans", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body")

			return
		}

		accepted, err := svc.Initiate(body)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())

				return
			}

			log.Error("initiate failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")

			return
		}

		writeJSON(w, http.StatusAccepted, accepted)
	})

	mux.HandleFunc("GET /api/scans/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Status(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())

			return
		}

		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("GET /api/scans/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		report, _, err := svc.Report(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())

			return
		}

		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("POST /api/scans/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !svc.Cancel(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, "no cancellable job for id")

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
