// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeTokenDecode      ErrorCode = "TOKEN_DECODE_FAILED"
	ErrCodeUpstreamFailed   ErrorCode = "UPSTREAM_FAILED"

	ErrCodeOrganizationUnusable ErrorCode = "ORGANIZATION_UNUSABLE"
	ErrCodeBatchInputInvalid    ErrorCode = "BATCH_INPUT_INVALID"
	ErrCodeInputParsingFailed   ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Stage names the pipeline step an upstream failure came from.
type Stage string

const (
	StageRender Stage = "render"
	StageStore  Stage = "store"
	StageLedger Stage = "ledger"
	StageNotify Stage = "notify"
	StageLock   Stage = "lock"
	StageBroker Stage = "broker"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Stage     Stage                  `json:"stage,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("StandardError[%s/%s]: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches another StandardError by code, so sentinels like ErrConflict work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Stage == "" || t.Stage == e.Stage)
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation  = &StandardError{Code: ErrCodeValidationFailed}
	ErrNotFound    = &StandardError{Code: ErrCodeNotFound}
	ErrConflict    = &StandardError{Code: ErrCodeConflict}
	ErrTokenDecode = &StandardError{Code: ErrCodeTokenDecode}
	ErrUpstream    = &StandardError{Code: ErrCodeUpstreamFailed}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError reports input that violates a precondition. Never retried.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports a missing ledger entity.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("%s %s does not exist", entity, id),
		Retryable: false,
		Metadata:  map[string]interface{}{"entity": entity, "id": id},
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError reports an attempt to certify an already issued request.
func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Request already certified",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenDecodeError reports an unreadable or tampered verification token.
func NewTokenDecodeError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenDecode,
		Message:   "Verification token could not be decoded",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewUpstreamError wraps a collaborator failure with the stage it happened in.
func NewUpstreamError(stage Stage, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamFailed,
		Message:   fmt.Sprintf("%s stage failed", stage),
		Details:   errString(err),
		Stage:     stage,
		Retryable: true,
		Metadata:  map[string]interface{}{"stage": string(stage)},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewOrganizationUnusableError reports an issuer profile lacking name, phone or email.
func NewOrganizationUnusableError(account string) *StandardError {
	return &StandardError{
		Code:      ErrCodeOrganizationUnusable,
		Message:   "Issuing organization profile is incomplete",
		Details:   fmt.Sprintf("organization %s must have name, phone and email", account),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBatchInputError reports a batch payload that cannot be read at all.
func NewBatchInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBatchInputInvalid,
		Message:   "Batch input is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputParsingError reports job variables that could not be decoded.
func NewInputParsingError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputParsingFailed,
		Message:   "Failed to parse job variables",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Inspection
// ==========================

// AsStandard extracts a StandardError from a wrapped chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// StageOf returns the failing stage of an upstream error, if any.
func StageOf(err error) Stage {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Stage
	}
	return ""
}

// Normalize guarantees a StandardError for any non-nil error.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamFailed:
		return 3
	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stdErr.Stage != "" {
		vars["failedStage"] = string(stdErr.Stage)
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TOKEN"):
		return "VERIFICATION"
	case code == ErrCodeNotFound || code == ErrCodeConflict:
		return "LEDGER"
	case code == ErrCodeOrganizationUnusable:
		return "ORGANIZATION"
	case code == ErrCodeUpstreamFailed:
		return "UPSTREAM"
	default:
		return "OTHER"
	}
}
