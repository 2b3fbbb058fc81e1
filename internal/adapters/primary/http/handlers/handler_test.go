package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/core/services"
	"eeg-decoder-service/internal/testutil"
)

type fixture struct {
	router      *gin.Engine
	decoders    *testutil.MockDecoderRepo
	sessions    *testutil.MockSessionRepo
	predictions *testutil.MockPredictionRepo
	publisher   *testutil.MockPublisher
	prom        *testutil.MockPrometheusClient
	sessionSvc  *services.SessionService
	projectID   uuid.UUID
}

func setupRouter(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		decoders:    new(testutil.MockDecoderRepo),
		sessions:    new(testutil.MockSessionRepo),
		predictions: new(testutil.MockPredictionRepo),
		publisher:   new(testutil.MockPublisher),
		prom:        new(testutil.MockPrometheusClient),
		projectID:   uuid.New(),
	}

	decoderSvc := services.NewDecoderService(f.decoders, f.sessions, f.publisher, services.DecoderServiceConfig{
		Namespace: "bci", Folds: 5, EvalWorkers: 2,
	})
	f.sessionSvc = services.NewSessionService(f.decoders, f.sessions, f.predictions, nil, services.SessionServiceConfig{})
	metricsSvc := services.NewMetricsService(f.prom)

	h := New(decoderSvc, f.sessionSvc, metricsSvc, 32<<20)
	f.router = gin.New()
	h.RegisterRoutes(f.router.Group("/api/v1/eeg"))
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, "/api/v1/eeg"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Project-ID", f.projectID.String())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
