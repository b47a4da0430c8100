// Package ledger defines the call contract of the certificate ledger and
// provides PostgreSQL, LevelDB and in-memory implementations of it.
package ledger

import (
	"context"
	"fmt"
	"time"

	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/database"
	"certificate-workers/internal/models"
)

// Ledger is the authoritative store of requests, organizations and certificates.
// MintCertificate is the only mutation the issuance pipeline performs; it fails
// with a CONFLICT error when the request has already been certified.
type Ledger interface {
	GetPendingRequests(ctx context.Context, issuerAccount string) ([]models.TestRequest, error)
	GetTestRequest(ctx context.Context, id uint64) (*models.TestRequest, error)
	GetOrganization(ctx context.Context, account string) (*models.Organization, error)
	MintCertificate(ctx context.Context, req models.MintRequest) (*models.Certificate, error)
	GetCertificate(ctx context.Context, id uint64) (*models.Certificate, error)
}

// Registry holds the setup calls used when seeding a ledger.
type Registry interface {
	RegisterOrganization(ctx context.Context, org models.Organization) error
	CreateTestRequest(ctx context.Context, req models.TestRequest) (uint64, error)
}

// Store is a Ledger that can also be seeded.
type Store interface {
	Ledger
	Registry
	Close() error
}

// Open builds the ledger selected by cfg.Ledger.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	validity := cfg.Ledger.CertificateValidityDuration()
	switch cfg.Ledger.Driver {
	case config.LedgerDriverPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres ledger: %w", err)
		}
		if _, err := database.Migrate(cfg.Database.Postgres); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return NewPostgres(pg, validity), nil
	case config.LedgerDriverLevelDB:
		return OpenLevelDB(cfg.Database.LevelDB.Path, validity)
	case config.LedgerDriverMemory:
		return NewMemory(validity), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
