package exportpendingrequests

import (
	"bytes"
	"context"

	"certificate-workers/internal/batch"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/ledger"
)

type ServiceDependencies struct {
	Ledger ledger.Ledger
	Logger logger.Logger
}

type Service struct {
	ledger ledger.Ledger
	logger logger.Logger
}

func NewService(deps ServiceDependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{ledger: deps.Ledger, logger: log}
}

// Execute renders the issuer's pending requests as a result sheet.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	var buf bytes.Buffer
	n, err := batch.ExportPending(ctx, s.ledger, input.IssuerAccount, &buf)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Pending requests exported", map[string]interface{}{
		"issuer":  input.IssuerAccount,
		"pending": n,
	})
	return &Output{CSV: buf.String(), PendingCount: n}, nil
}
