package importcertificatebatch

import (
	"context"
	"io"
	"strings"

	"certificate-workers/internal/batch"
	"certificate-workers/internal/common/logger"
)

type Importer interface {
	Import(ctx context.Context, issuerAccount string, payload io.Reader) (*batch.BatchResult, error)
}

type ServiceDependencies struct {
	Importer Importer
	Logger   logger.Logger
}

type Service struct {
	importer Importer
	logger   logger.Logger
}

func NewService(deps ServiceDependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{importer: deps.Importer, logger: log}
}

// Execute imports the sheet. When the import stops early the rows settled
// so far are returned together with the error.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := s.importer.Import(ctx, input.IssuerAccount, strings.NewReader(input.CSV))
	var out *Output
	if res != nil {
		out = &Output{
			RunID:          res.RunID,
			TotalRowsSeen:  res.TotalRowsSeen,
			SucceededCount: res.Succeeded,
			Rows:           res.Rows,
		}
	}
	if err != nil && out != nil && out.SucceededCount > 0 {
		s.logger.Warn("Batch stopped after partial issuance", map[string]interface{}{
			"runId":     out.RunID,
			"succeeded": out.SucceededCount,
			"error":     err.Error(),
		})
	}
	return out, err
}
