package issuecertificate

import (
	"context"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/issuance"
	"certificate-workers/internal/models"
)

type OrganizationReader interface {
	GetOrganization(ctx context.Context, account string) (*models.Organization, error)
}

type Issuer interface {
	Issue(ctx context.Context, org models.Organization, req issuance.Request) (*issuance.Result, error)
}

// TokenIssuer mints the verification token printed on the certificate.
type TokenIssuer interface {
	Issue(certificateID uint64) (string, error)
}

type ServiceDependencies struct {
	Organizations OrganizationReader
	Issuer        Issuer
	Tokens        TokenIssuer
	Logger        logger.Logger
}

type Service struct {
	organizations OrganizationReader
	issuer        Issuer
	tokens        TokenIssuer
	logger        logger.Logger
	config        *Config
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		organizations: deps.Organizations,
		issuer:        deps.Issuer,
		tokens:        deps.Tokens,
		logger:        log,
		config:        config,
	}
}

// Execute certifies one request for the issuing organization.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	org, err := s.organizations.GetOrganization(ctx, input.IssuerAccount)
	if err != nil {
		if _, ok := apperrors.AsStandard(err); ok {
			return nil, err
		}
		return nil, apperrors.NewUpstreamError(apperrors.StageLedger, err)
	}

	res, err := s.issuer.Issue(ctx, *org, issuance.Request{
		RequestID:     input.RequestID,
		IssuerAccount: input.IssuerAccount,
		Fields:        input.Fields,
	})
	if err != nil {
		return nil, err
	}

	cert := res.Certificate
	out := &Output{
		CertificateID:      cert.ID,
		DocumentHash:       cert.DocumentHash,
		IssuedAt:           cert.IssuedAt,
		ExpireAt:           cert.ExpireAt,
		NotificationID:     res.NotificationID,
		NotificationQueued: res.NotificationQueued,
	}

	// The certificate is minted at this point; a token failure must not fail
	// the job, a retry would only hit a conflict.
	if s.config.IncludeToken && s.tokens != nil {
		tok, err := s.tokens.Issue(cert.ID)
		if err != nil {
			s.logger.Warn("Verification token not issued", map[string]interface{}{
				"certificateId": cert.ID,
				"error":         err.Error(),
			})
		} else {
			out.VerificationToken = tok
		}
	}
	return out, nil
}
