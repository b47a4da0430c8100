package main

import (
	"time"

	"certificate-workers/internal/common/config"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/validation"
	"certificate-workers/pkg/registry"

	ecb "certificate-workers/internal/workers/issuance/export-pending-requests"
	icb "certificate-workers/internal/workers/issuance/import-certificate-batch"
	ic "certificate-workers/internal/workers/issuance/issue-certificate"
	vct "certificate-workers/internal/workers/verification/verify-certificate-token"
)

type activityDef struct {
	taskType    string
	displayName string
	description string
	category    string
	schema      validation.JSONSchema
	enabled     bool
	maxJobs     int
	timeout     time.Duration
	outputs     []string
	errorCodes  []apperrors.ErrorCode
}

func servedActivities() []activityDef {
	issue := ic.DefaultConfig()
	importBatch := icb.DefaultConfig()
	export := ecb.DefaultConfig()
	verify := vct.DefaultConfig()

	return []activityDef{
		{
			taskType:    ic.TaskType,
			displayName: "Issue Certificate",
			description: "Renders, stores and mints a certificate for one pending test request",
			category:    "issuance",
			schema:      ic.GetInputSchema(),
			enabled:     issue.Enabled,
			maxJobs:     issue.MaxJobsActive,
			timeout:     issue.Timeout,
			outputs:     []string{"certificateId", "documentHash", "issuedAt", "expireAt", "notificationQueued", "verificationToken", "notificationId"},
			errorCodes: []apperrors.ErrorCode{
				apperrors.ErrCodeValidationFailed, apperrors.ErrCodeNotFound, apperrors.ErrCodeConflict,
				apperrors.ErrCodeOrganizationUnusable, apperrors.ErrCodeUpstreamFailed,
			},
		},
		{
			taskType:    icb.TaskType,
			displayName: "Import Certificate Batch",
			description: "Certifies every eligible row of an issuer's result sheet",
			category:    "issuance",
			schema:      icb.GetInputSchema(),
			enabled:     importBatch.Enabled,
			maxJobs:     importBatch.MaxJobsActive,
			timeout:     importBatch.Timeout,
			outputs:     []string{"batchRunId", "batchTotalRows", "batchSucceededCount", "batchRows", "batchOutcomeCounts"},
			errorCodes: []apperrors.ErrorCode{
				apperrors.ErrCodeBatchInputInvalid, apperrors.ErrCodeNotFound,
				apperrors.ErrCodeOrganizationUnusable, apperrors.ErrCodeUpstreamFailed,
			},
		},
		{
			taskType:    ecb.TaskType,
			displayName: "Export Pending Requests",
			description: "Writes an issuer's pending requests as a result sheet",
			category:    "issuance",
			schema:      ecb.GetInputSchema(),
			enabled:     export.Enabled,
			maxJobs:     export.MaxJobsActive,
			timeout:     export.Timeout,
			outputs:     []string{"pendingCsv", "pendingCount"},
			errorCodes:  []apperrors.ErrorCode{apperrors.ErrCodeNotFound, apperrors.ErrCodeUpstreamFailed},
		},
		{
			taskType:    vct.TaskType,
			displayName: "Verify Certificate Token",
			description: "Resolves a scanned token to its certificate, document link and freshness tier",
			category:    "verification",
			schema:      vct.GetInputSchema(),
			enabled:     verify.Enabled,
			maxJobs:     verify.MaxJobsActive,
			timeout:     verify.Timeout,
			outputs: []string{
				"certificateId", "certificate", "documentUrl", "freshnessTier",
				"certificateExpired", "tokenIssuedAt", "issuingOrganization",
			},
			errorCodes: []apperrors.ErrorCode{
				apperrors.ErrCodeTokenDecode, apperrors.ErrCodeNotFound, apperrors.ErrCodeUpstreamFailed,
			},
		},
	}
}

// buildCatalog describes the served job types with worker settings from cfg
// applied over each worker's defaults.
func buildCatalog(cfg *config.Config) (*registry.ActivityRegistry, error) {
	reg := &registry.ActivityRegistry{
		Version:     cfg.App.Version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	if reg.Version == "" {
		reg.Version = "1.0.0"
	}

	for _, s := range servedActivities() {
		if w, ok := cfg.Workers[s.taskType]; ok {
			s.enabled = w.Enabled
			if w.MaxJobsActive > 0 {
				s.maxJobs = w.MaxJobsActive
			}
			if w.Timeout > 0 {
				s.timeout = config.GetDuration(w.Timeout)
			}
		}

		schema, err := registry.SchemaMap(s.schema)
		if err != nil {
			return nil, err
		}
		codes := make([]string, 0, len(s.errorCodes))
		for _, c := range s.errorCodes {
			codes = append(codes, string(c))
		}

		reg.Activities = append(reg.Activities, registry.Activity{
			ID:          s.taskType,
			DisplayName: s.displayName,
			Description: s.description,
			Category:    s.category,
			TaskType:    s.taskType,
			Enabled:     s.enabled,
			InputSchema: schema,
			OutputVars:  s.outputs,
			ErrorCodes:  codes,
			Timeout:     s.timeout.String(),
			MaxJobs:     s.maxJobs,
		})
	}
	return reg, nil
}
