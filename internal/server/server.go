package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/results"
)

// History is the read side of the run store.
type History interface {
	List() ([]results.Run, error)
	Get(id uuid.UUID) (results.Run, error)
}

// Handler serves /metrics and, when history is set, the stored runs under
// /api/runs.
func Handler(metrics http.Handler, history History, log *logrus.Entry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if history != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/runs", listRuns(history, log))
			r.Get("/runs/{id}", getRun(history, log))
		})
	}
	return r
}

func listRuns(history History, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := history.List()
		if err != nil {
			log.WithError(err).Warn("failed to list runs")
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		httpWriteJSON(w, http.StatusOK, runs)
	}
}

func getRun(history History, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}

		run, err := history.Get(id)
		switch {
		case errors.Is(err, results.ErrNotFound):
			httpError(w, http.StatusNotFound, err)
		case err != nil:
			log.WithError(err).Warn("failed to read run")
			httpError(w, http.StatusInternalServerError, err)
		default:
			httpWriteJSON(w, http.StatusOK, run)
		}
	}
}

func httpWriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func httpError(w http.ResponseWriter, code int, err error) {
	httpWriteJSON(w, code, map[string]string{"error": err.Error()})
}
