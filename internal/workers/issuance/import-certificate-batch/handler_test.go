package importcertificatebatch

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"certificate-workers/internal/batch"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/issuance"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"
	"certificate-workers/internal/render"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockImporter struct {
	mock.Mock
}

func (m *MockImporter) Import(ctx context.Context, issuerAccount string, payload io.Reader) (*batch.BatchResult, error) {
	body, _ := io.ReadAll(payload)
	args := m.Called(ctx, issuerAccount, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batch.BatchResult), args.Error(1)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "certificate-batch",
		ElementId:          "Activity_ImportBatch",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, cfg *Config, importer Importer) *Handler {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		Logger:       logger.NewTestLogger(t),
		Dependencies: ServiceDependencies{Importer: importer},
	})
	require.NoError(t, err)
	return h
}

func sheet(lines ...[]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(batch.Header, ","))
	sb.WriteString("\n")
	for _, l := range lines {
		sb.WriteString(strings.Join(l, ","))
		sb.WriteString("\n")
	}
	return sb.String()
}

func row(id, account, email, result string) []string {
	rec := make([]string, batch.ColumnCount)
	rec[batch.ColRequestID] = id
	rec[batch.ColSubjectAccount] = account
	rec[batch.ColEmail] = email
	rec[batch.ColSampleID] = "S-" + id
	rec[batch.ColSample] = "saliva"
	rec[batch.ColCollectionMethod] = "self"
	rec[batch.ColCollectionDate] = "2024/02/28"
	rec[batch.ColTestMethod] = "PCR"
	rec[batch.ColResult] = result
	rec[batch.ColResultDate] = "2024/02/29"
	return rec
}

func TestHandler_NewHandler(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.ErrorContains(t, err, "requires an importer")

	_, err = NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, Timeout: time.Minute},
		Dependencies: ServiceDependencies{Importer: &MockImporter{}},
	})
	assert.ErrorContains(t, err, "max_payload_bytes must be positive")

	h := newTestHandler(t, nil, &MockImporter{})
	assert.Equal(t, TaskType, h.GetTaskType())
}

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, nil, &MockImporter{})

	input, err := h.parseInput(createMockJob(1, map[string]interface{}{
		"issuerAccount": "lab",
		"csv":           "requestId\n",
	}))
	require.NoError(t, err)
	assert.Equal(t, &Input{IssuerAccount: "lab", CSV: "requestId\n"}, input)

	_, err = h.parseInput(createMockJob(2, map[string]interface{}{"issuerAccount": "lab"}))
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))

	_, err = h.parseInput(createMockJob(3, map[string]interface{}{"issuerAccount": "lab", "csv": 12}))
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
}

func TestHandler_ParseInputPayloadLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPayloadBytes = 16
	h := newTestHandler(t, cfg, &MockImporter{})

	_, err := h.parseInput(createMockJob(1, map[string]interface{}{
		"issuerAccount": "lab",
		"csv":           strings.Repeat("x", 17),
	}))
	assert.Equal(t, apperrors.ErrCodeBatchInputInvalid, apperrors.CodeOf(err))
}

func TestService_ExecuteMapsResult(t *testing.T) {
	importer := &MockImporter{}
	importer.On("Import", mock.Anything, "lab", "payload").Return(&batch.BatchResult{
		RunID:         "run-1",
		TotalRowsSeen: 3,
		Succeeded:     1,
		Rows: []batch.RowOutcome{
			{Line: 2, RequestID: 1, Status: batch.StatusSucceeded, CertificateID: 1},
			{Line: 3, RequestID: 2, Status: batch.StatusPositive},
			{Line: 4, RequestID: 9, Status: batch.StatusUnmatched},
		},
	}, nil)

	h := newTestHandler(t, nil, importer)
	out, err := h.Execute(context.Background(), &Input{IssuerAccount: "lab", CSV: "payload"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, 3, out.TotalRowsSeen)
	assert.Equal(t, 1, out.SucceededCount)
	assert.Equal(t, map[string]int{"succeeded": 1, "positive": 1, "unmatched": 1}, out.Counts())
	importer.AssertExpectations(t)
}

func TestService_ExecutePartialOnCancel(t *testing.T) {
	importer := &MockImporter{}
	importer.On("Import", mock.Anything, "lab", "payload").Return(&batch.BatchResult{
		RunID:     "run-2",
		Succeeded: 2,
		Rows:      []batch.RowOutcome{{Line: 2, Status: batch.StatusSucceeded}, {Line: 3, Status: batch.StatusSucceeded}},
	}, context.Canceled)

	h := newTestHandler(t, nil, importer)
	out, err := h.Execute(context.Background(), &Input{IssuerAccount: "lab", CSV: "payload"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.SucceededCount)
}

func TestService_ExecuteAgainstLedger(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory(72 * time.Hour)
	org := models.Organization{Account: "lab", Name: "Central Lab", Phone: "03-0000", Email: "lab@example.com"}
	require.NoError(t, mem.RegisterOrganization(ctx, org))
	for _, r := range []models.TestRequest{
		{ID: 1, SubjectAccount: "alice", IssuerAccount: "lab", Subject: models.SubjectSnapshot{Email: "a@example.com"}},
		{ID: 2, SubjectAccount: "bob", IssuerAccount: "lab", Subject: models.SubjectSnapshot{Email: "b@example.com"}},
	} {
		_, err := mem.CreateTestRequest(ctx, r)
		require.NoError(t, err)
	}

	op := issuance.NewOperation(issuance.Dependencies{
		Ledger:   mem,
		Renderer: render.NewTextRenderer(),
		Store:    contentstore.NewMemory(""),
	}, issuance.Options{StageTimeout: time.Second})
	orch := batch.NewOrchestrator(mem, op, batch.Options{PrepareWorkers: 2})

	h := newTestHandler(t, nil, orch)
	input, err := h.parseInput(createMockJob(7, map[string]interface{}{
		"issuerAccount": "lab",
		"csv": sheet(
			row("1", "alice", "a@example.com", "negative"),
			row("2", "bob", "b@example.com", "positive"),
			row("3", "carol", "c@example.com", "negative"),
		),
	}))
	require.NoError(t, err)

	out, err := h.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 3, out.TotalRowsSeen)
	assert.Equal(t, 1, out.SucceededCount)
	assert.Equal(t, map[string]int{"succeeded": 1, "positive": 1, "unmatched": 1}, out.Counts())

	cert, err := mem.GetCertificate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "lab", cert.OrganizationAccount)
}
