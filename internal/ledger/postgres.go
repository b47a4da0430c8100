package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"certificate-workers/internal/common/database"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/models"
)

const requestColumns = `id, subject_account, issuer_account, first_name, last_name, birth_date,
	gender, phone, email, residence, sample_id, collection_date, requested_at, issued_at`

const certificateColumns = `id, sample_id, sample, collection_method, collection_date, test_method,
	result, result_date, document_hash, organization_account, issued_at, expire_at`

// Postgres is a Ledger backed by the tables the embedded database migrations create.
type Postgres struct {
	db       *database.PostgresClient
	validity time.Duration
	now      func() time.Time
}

func NewPostgres(db *database.PostgresClient, validity time.Duration) *Postgres {
	return &Postgres{db: db, validity: validity, now: nowUTC}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(s rowScanner) (models.TestRequest, error) {
	var r models.TestRequest
	err := s.Scan(&r.ID, &r.SubjectAccount, &r.IssuerAccount,
		&r.Subject.FirstName, &r.Subject.LastName, &r.Subject.BirthDate, &r.Subject.Gender,
		&r.Subject.Phone, &r.Subject.Email, &r.Subject.Residence,
		&r.SampleID, &r.CollectionDate, &r.RequestedAt, &r.IssuedAt)
	return r, err
}

func scanCertificate(s rowScanner) (models.Certificate, error) {
	var c models.Certificate
	err := s.Scan(&c.ID, &c.SampleID, &c.Sample, &c.CollectionMethod, &c.CollectionDate,
		&c.TestMethod, &c.Result, &c.ResultDate, &c.DocumentHash, &c.OrganizationAccount,
		&c.IssuedAt, &c.ExpireAt)
	return c, err
}

func (p *Postgres) RegisterOrganization(ctx context.Context, org models.Organization) error {
	if org.Account == "" {
		return apperrors.NewValidationError("organization account is required")
	}
	_, err := p.db.DB.ExecContext(ctx, `
		INSERT INTO organizations (account, role, name, delegate_name, address, phone, email,
			sample_type, collection_method, test_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account) DO UPDATE SET
			role = EXCLUDED.role, name = EXCLUDED.name, delegate_name = EXCLUDED.delegate_name,
			address = EXCLUDED.address, phone = EXCLUDED.phone, email = EXCLUDED.email,
			sample_type = EXCLUDED.sample_type, collection_method = EXCLUDED.collection_method,
			test_method = EXCLUDED.test_method`,
		org.Account, org.Role, org.Name, org.DelegateName, org.Address, org.Phone, org.Email,
		org.SampleType, org.CollectionMethod, org.TestMethod)
	if err != nil {
		return fmt.Errorf("register organization %s: %w", org.Account, err)
	}
	return nil
}

// CreateTestRequest inserts req. A zero ID lets the database assign one.
func (p *Postgres) CreateTestRequest(ctx context.Context, req models.TestRequest) (uint64, error) {
	s := req.Subject
	var id uint64
	var err error
	if req.ID == 0 {
		err = p.db.DB.QueryRowContext(ctx, `
			INSERT INTO test_requests (subject_account, issuer_account, first_name, last_name,
				birth_date, gender, phone, email, residence, sample_id, collection_date, requested_at, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id`,
			req.SubjectAccount, req.IssuerAccount, s.FirstName, s.LastName, s.BirthDate, s.Gender,
			s.Phone, s.Email, s.Residence, req.SampleID, req.CollectionDate, req.RequestedAt, req.IssuedAt,
		).Scan(&id)
	} else {
		err = p.db.DB.QueryRowContext(ctx, `
			INSERT INTO test_requests (id, subject_account, issuer_account, first_name, last_name,
				birth_date, gender, phone, email, residence, sample_id, collection_date, requested_at, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id`,
			req.ID, req.SubjectAccount, req.IssuerAccount, s.FirstName, s.LastName, s.BirthDate, s.Gender,
			s.Phone, s.Email, s.Residence, req.SampleID, req.CollectionDate, req.RequestedAt, req.IssuedAt,
		).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("create test request: %w", err)
	}
	return id, nil
}

func (p *Postgres) GetPendingRequests(ctx context.Context, issuerAccount string) ([]models.TestRequest, error) {
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM test_requests WHERE issuer_account = $1 AND issued_at = 0 ORDER BY id`,
		issuerAccount)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	var out []models.TestRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTestRequest(ctx context.Context, id uint64) (*models.TestRequest, error) {
	r, err := scanRequest(p.db.DB.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM test_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("test request", fmt.Sprint(id))
	}
	if err != nil {
		return nil, fmt.Errorf("get test request %d: %w", id, err)
	}
	return &r, nil
}

func (p *Postgres) GetOrganization(ctx context.Context, account string) (*models.Organization, error) {
	var o models.Organization
	err := p.db.DB.QueryRowContext(ctx, `
		SELECT account, role, name, delegate_name, address, phone, email,
			sample_type, collection_method, test_method
		FROM organizations WHERE account = $1`, account,
	).Scan(&o.Account, &o.Role, &o.Name, &o.DelegateName, &o.Address, &o.Phone, &o.Email,
		&o.SampleType, &o.CollectionMethod, &o.TestMethod)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("organization", account)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", account, err)
	}
	return &o, nil
}

// MintCertificate locks the request row, re-checks it is pending and writes
// the certificate together with the issue time in one transaction.
func (p *Postgres) MintCertificate(ctx context.Context, req models.MintRequest) (*models.Certificate, error) {
	var cert models.Certificate
	err := p.db.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM test_requests WHERE id = $1 FOR UPDATE`, req.RequestID))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("test request", fmt.Sprint(req.RequestID))
		}
		if err != nil {
			return fmt.Errorf("lock test request %d: %w", req.RequestID, err)
		}
		if err := checkMintable(r, req); err != nil {
			return err
		}

		cert = models.NewCertificate(req, p.now(), p.validity)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO certificates (`+certificateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			cert.ID, cert.SampleID, cert.Sample, cert.CollectionMethod, cert.CollectionDate,
			cert.TestMethod, cert.Result, cert.ResultDate, cert.DocumentHash,
			cert.OrganizationAccount, cert.IssuedAt, cert.ExpireAt); err != nil {
			return fmt.Errorf("insert certificate %d: %w", cert.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE test_requests SET issued_at = $1 WHERE id = $2 AND issued_at = 0`,
			cert.IssuedAt, cert.ID); err != nil {
			return fmt.Errorf("mark test request %d issued: %w", cert.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (p *Postgres) GetCertificate(ctx context.Context, id uint64) (*models.Certificate, error) {
	c, err := scanCertificate(p.db.DB.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("certificate", fmt.Sprint(id))
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate %d: %w", id, err)
	}
	return &c, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
