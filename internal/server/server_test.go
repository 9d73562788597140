package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/results"
)

func newHandler(t *testing.T, withHistory bool) (http.Handler, *results.Store) {
	t.Helper()
	prom, err := metrics.NewPrometheus(prometheus.NewRegistry())
	require.NoError(t, err)
	prom.Generated()

	logger, _ := test.NewNullLogger()
	if !withHistory {
		return Handler(prom.Handler(), nil, logrus.NewEntry(logger)), nil
	}

	store, err := results.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Handler(prom.Handler(), store, logrus.NewEntry(logger)), store
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newHandler(t, false)

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fanet_packets_total{outcome="generated"} 1`)

	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/runs").Code, "no history configured")
}

func TestRunsEndpoints(t *testing.T) {
	h, store := newHandler(t, true)

	run := results.Run{ID: uuid.New(), Protocol: "olsr", Delivered: 3}
	require.NoError(t, store.Save(run))

	rec := get(h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = get(h, "/api/runs/"+run.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var got results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "olsr", got.Protocol)
	assert.Equal(t, uint64(3), got.Delivered)
}

func TestRunLookupErrors(t *testing.T) {
	h, _ := newHandler(t, true)

	assert.Equal(t, http.StatusBadRequest, get(h, "/api/runs/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/runs/"+uuid.NewString()).Code)
}
