// Package verification resolves a scanned token to the certificate it
// names, its document link and how fresh it is.
package verification

import (
	"context"
	"fmt"

	"certificate-workers/internal/certificate/expiry"
	"certificate-workers/internal/certificate/token"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/metrics"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"
)

// Verification is what a verifier sees after scanning a token.
type Verification struct {
	Certificate  models.Certificate `json:"certificate"`
	DocumentURL  string             `json:"documentUrl"`
	Tier         expiry.Tier        `json:"tier"`
	TokenIssued  int64              `json:"tokenIssuedAt"`
	Organization string             `json:"organizationName,omitempty"`
}

type Service struct {
	codec  *token.Codec
	ledger ledger.Ledger
	store  contentstore.Store
	engine *expiry.Engine
	logger logger.Logger
}

func NewService(codec *token.Codec, l ledger.Ledger, store contentstore.Store, engine *expiry.Engine, log logger.Logger) *Service {
	if engine == nil {
		engine = expiry.NewEngine()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{codec: codec, ledger: l, store: store, engine: engine, logger: log}
}

// Verify decodes text and looks the certificate up. The token timestamp is
// reported but not enforced.
func (s *Service) Verify(ctx context.Context, text string) (*Verification, error) {
	payload, err := s.codec.Decode(text)
	if err != nil {
		return nil, err
	}

	cert, err := s.ledger.GetCertificate(ctx, payload.CertificateID)
	if err != nil {
		return nil, ledgerError(err)
	}
	url, err := s.store.ResolveURL(ctx, cert.DocumentHash)
	if err != nil {
		if _, ok := apperrors.AsStandard(err); ok {
			return nil, err
		}
		return nil, apperrors.NewUpstreamError(apperrors.StageStore, err)
	}

	v := &Verification{
		Certificate: *cert,
		DocumentURL: url,
		Tier:        s.engine.StatusUnix(cert.IssuedAt),
		TokenIssued: payload.Timestamp,
	}
	if org, err := s.ledger.GetOrganization(ctx, cert.OrganizationAccount); err == nil {
		v.Organization = org.Name
	} else {
		s.logger.WithError(err).Warn("Issuer lookup failed during verification", map[string]interface{}{
			"certificateId": cert.ID,
		})
	}

	metrics.VerificationTiers.WithLabelValues(v.Tier.String()).Inc()
	s.logger.Info("Certificate verified", map[string]interface{}{
		"certificateId": cert.ID,
		"tier":          v.Tier.String(),
	})
	return v, nil
}

// TokenFor issues a verification token for an existing certificate.
func (s *Service) TokenFor(ctx context.Context, certificateID uint64) (string, error) {
	if _, err := s.ledger.GetCertificate(ctx, certificateID); err != nil {
		return "", ledgerError(err)
	}
	text, err := s.codec.Issue(certificateID)
	if err != nil {
		return "", fmt.Errorf("issue token for certificate %d: %w", certificateID, err)
	}
	return text, nil
}

func ledgerError(err error) error {
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	return apperrors.NewUpstreamError(apperrors.StageLedger, err)
}
