package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"certificate-workers/internal/bootstrap"
	"certificate-workers/internal/common/camunda"
	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/observability"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRouter(t *testing.T) {
	mux := healthRouter(camunda.NewRegistry(nil))

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["status"])
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthRouter_NotReady(t *testing.T) {
	registry := camunda.NewRegistry(nil)
	w := &camundaWorkerStub{taskType: "issue-certificate", health: errors.New("broker unreachable")}
	require.NoError(t, registry.Add(w))

	rec := httptest.NewRecorder()
	healthRouter(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker unreachable")
}

type camundaWorkerStub struct {
	taskType string
	health   error
}

func (s *camundaWorkerStub) Register() error { return nil }
func (s *camundaWorkerStub) Close() {}
func (s *camundaWorkerStub) HealthCheck(ctx context.Context) error { return s.health }
func (s *camundaWorkerStub) GetTaskType() string { return s.taskType }

func TestRegisterWorkers(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ledger.Driver = config.LedgerDriverMemory
	cfg.Token.Secret = "a-shared-secret-of-sufficient-length"

	p, err := bootstrap.Build(t.Context(), cfg, bootstrap.Options{
		DisableNotifications: true,
		Documents:            contentstore.NewMemory(""),
	})
	require.NoError(t, err)
	defer p.Close()

	registry := camunda.NewRegistry(logger.NewTestLogger(t))
	require.NoError(t, registerWorkers(registry, cfg, nil, p, logger.NewTestLogger(t)))
	assert.ElementsMatch(t, []string{
		"issue-certificate",
		"import-certificate-batch",
		"export-pending-requests",
		"verify-certificate-token",
	}, registry.TaskTypes())
}

func TestDrainFailures(t *testing.T) {
	d := notify.NewDispatcher(notify.Nop{}, notify.DispatcherOptions{})
	done := make(chan struct{})
	go drainFailures(d, "none", &observability.Observability{}, logger.NewTestLogger(t), done)

	_, err := d.Dispatch(notify.Message{CertificateID: 1, To: "a@example.com"})
	require.NoError(t, err)
	d.Close()
	<-done
}
