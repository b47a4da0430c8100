package verifycertificatetoken

import (
	"context"
	"time"

	"certificate-workers/internal/verification"
)

type Verifier interface {
	Verify(ctx context.Context, text string) (*verification.Verification, error)
}

type ServiceDependencies struct {
	Verifier Verifier
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	verifier Verifier
	now      func() time.Time
}

func NewService(deps ServiceDependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{verifier: deps.Verifier, now: now}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	v, err := s.verifier.Verify(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	return &Output{
		Certificate:      v.Certificate,
		DocumentURL:      v.DocumentURL,
		Tier:             v.Tier.String(),
		Expired:          !s.now().Before(v.Certificate.ExpireTime()),
		TokenIssuedAt:    v.TokenIssued,
		OrganizationName: v.Organization,
	}, nil
}
