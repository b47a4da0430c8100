package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	conflict := NewConflictError("request 7 already issued")
	wrapped := fmt.Errorf("issue: %w", conflict)

	assert.True(t, stderrors.Is(wrapped, ErrConflict))
	assert.False(t, stderrors.Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrCodeConflict, CodeOf(wrapped))
}

func TestUpstreamError_CarriesStageAndCause(t *testing.T) {
	cause := stderrors.New("bucket unavailable")
	err := fmt.Errorf("prepare: %w", NewUpstreamError(StageStore, cause))

	assert.True(t, stderrors.Is(err, ErrUpstream))
	assert.True(t, stderrors.Is(err, &StandardError{Code: ErrCodeUpstreamFailed, Stage: StageStore}))
	assert.False(t, stderrors.Is(err, &StandardError{Code: ErrCodeUpstreamFailed, Stage: StageLedger}))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, StageStore, StageOf(err))
	assert.Contains(t, err.Error(), "store")
}

func TestNormalize_WrapsForeignErrors(t *testing.T) {
	stdErr := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.Equal(t, "boom", stdErr.Details)

	orig := NewValidationError("result must be negative")
	assert.Same(t, orig, Normalize(fmt.Errorf("wrap: %w", orig)))
}

func TestCodeOf_Nil(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, Stage(""), StageOf(nil))
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantRetries int
		wantStage   interface{}
	}{
		{"upstream is retried", NewUpstreamError(StageLedger, stderrors.New("rpc")), 3, "ledger"},
		{"conflict is thrown", NewConflictError("dup"), 0, nil},
		{"decode is thrown", NewTokenDecodeError(stderrors.New("bad")), 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)

			vars := bpmn.ToErrorVariables()
			require.Contains(t, vars, "originalErrorCode")
			assert.Equal(t, tt.wantStage, vars["failedStage"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidationFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeBatchInputInvalid))
	assert.Equal(t, "VERIFICATION", GetErrorCategory(ErrCodeTokenDecode))
	assert.Equal(t, "LEDGER", GetErrorCategory(ErrCodeConflict))
	assert.Equal(t, "UPSTREAM", GetErrorCategory(ErrCodeUpstreamFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
	assert.True(t, IsRetryableErrorCode(ErrCodeUpstreamFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeConflict))
}
