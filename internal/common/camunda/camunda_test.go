package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"certificate-workers/internal/common/config"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) Register() error {
	return m.Called().Error(0)
}

func (m *MockWorker) Close() {
	m.Called()
}

func (m *MockWorker) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockWorker) GetTaskType() string {
	return m.Called().String(0)
}

func newMockWorker(taskType string) *MockWorker {
	w := &MockWorker{}
	w.On("GetTaskType").Return(taskType)
	return w
}

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	out, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("rpc error: code = Unavailable")
		}
		return "ok", nil
	}, "topology")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("process definition not found")
	}, "create-instance")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestExecuteWithRetry_ExhaustedMapsToBrokerStage(t *testing.T) {
	calls := 0
	_, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("connection refused")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, fastRetry.MaxRetries+1, calls)
	assert.Equal(t, apperrors.ErrCodeUpstreamFailed, apperrors.CodeOf(err))
	assert.Equal(t, apperrors.StageBroker, apperrors.StageOf(err))
}

func TestExecuteWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := executeWithRetry(ctx, slow, func(context.Context) (interface{}, error) {
		cancel()
		return nil, errors.New("deadline exceeded")
	}, "topology")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapZeebeError_AlreadyExists(t *testing.T) {
	err := mapZeebeError(errors.New("message already exists"), "publish", 0)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
}

func TestConfigFromApp(t *testing.T) {
	cc := ConfigFromApp(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 5000})
	assert.Equal(t, "zeebe:26500", cc.GatewayAddress)
	assert.Equal(t, 5*time.Second, cc.RequestTimeout)

	cc = ConfigFromApp(config.CamundaConfig{BrokerAddress: "zeebe:26500"})
	assert.Equal(t, 30*time.Second, cc.RequestTimeout)
}

func TestRegistry_StartAndStop(t *testing.T) {
	r := NewRegistry(logger.NewTestLogger(t))
	a := newMockWorker("issue-certificate")
	b := newMockWorker("verify-certificate-token")
	a.On("Register").Return(nil)
	b.On("Register").Return(nil)
	a.On("Close").Return()
	b.On("Close").Return()

	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	require.NoError(t, r.Start())
	assert.Equal(t, []string{"issue-certificate", "verify-certificate-token"}, r.TaskTypes())

	r.Stop()
	r.Stop()
	a.AssertNumberOfCalls(t, "Close", 1)
	b.AssertNumberOfCalls(t, "Close", 1)
}

func TestRegistry_RejectsDuplicateTaskType(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Add(newMockWorker("issue-certificate")))
	assert.Error(t, r.Add(newMockWorker("issue-certificate")))
}

func TestRegistry_StartFailureClosesOpened(t *testing.T) {
	r := NewRegistry(nil)
	a := newMockWorker("issue-certificate")
	b := newMockWorker("import-certificate-batch")
	a.On("Register").Return(nil)
	a.On("Close").Return()
	b.On("Register").Return(errors.New("broker gone"))

	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	err := r.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import-certificate-batch")
	a.AssertCalled(t, "Close")
	b.AssertNotCalled(t, "Close")
}

func TestRegistry_HealthCheckJoinsFailures(t *testing.T) {
	r := NewRegistry(nil)
	a := newMockWorker("issue-certificate")
	b := newMockWorker("verify-certificate-token")
	a.On("HealthCheck", mock.Anything).Return(nil)
	b.On("HealthCheck", mock.Anything).Return(errors.New("ledger down"))
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	err := r.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify-certificate-token: ledger down")
}
