package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/models"
)

// Memory is a process-local ledger for tests and the memory driver.
type Memory struct {
	mu           sync.RWMutex
	validity     time.Duration
	now          func() time.Time
	nextID       uint64
	requests     map[uint64]models.TestRequest
	orgs         map[string]models.Organization
	certificates map[uint64]models.Certificate
}

func NewMemory(validity time.Duration) *Memory {
	return &Memory{
		validity:     validity,
		now:          nowUTC,
		nextID:       1,
		requests:     make(map[uint64]models.TestRequest),
		orgs:         make(map[string]models.Organization),
		certificates: make(map[uint64]models.Certificate),
	}
}

// WithClock replaces the mint timestamp source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) RegisterOrganization(_ context.Context, org models.Organization) error {
	if org.Account == "" {
		return apperrors.NewValidationError("organization account is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.Account] = org
	return nil
}

// CreateTestRequest stores req. A zero ID is assigned the next free id.
func (m *Memory) CreateTestRequest(_ context.Context, req models.TestRequest) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == 0 {
		req.ID = m.nextID
	}
	if _, exists := m.requests[req.ID]; exists {
		return 0, apperrors.NewConflictError(fmt.Sprintf("test request %d already exists", req.ID))
	}
	if req.ID >= m.nextID {
		m.nextID = req.ID + 1
	}
	m.requests[req.ID] = req
	return req.ID, nil
}

func (m *Memory) GetPendingRequests(_ context.Context, issuerAccount string) ([]models.TestRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TestRequest
	for _, r := range m.requests {
		if r.IssuerAccount == issuerAccount && r.Pending() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTestRequest(_ context.Context, id uint64) (*models.TestRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("test request", fmt.Sprint(id))
	}
	return &r, nil
}

func (m *Memory) GetOrganization(_ context.Context, account string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[account]
	if !ok {
		return nil, apperrors.NewNotFoundError("organization", account)
	}
	return &o, nil
}

func (m *Memory) MintCertificate(_ context.Context, req models.MintRequest) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[req.RequestID]
	if !ok {
		return nil, apperrors.NewNotFoundError("test request", fmt.Sprint(req.RequestID))
	}
	if err := checkMintable(r, req); err != nil {
		return nil, err
	}
	cert := models.NewCertificate(req, m.now(), m.validity)
	r.IssuedAt = cert.IssuedAt
	m.requests[r.ID] = r
	m.certificates[cert.ID] = cert
	return &cert, nil
}

func (m *Memory) GetCertificate(_ context.Context, id uint64) (*models.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certificates[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("certificate", fmt.Sprint(id))
	}
	return &c, nil
}

func (m *Memory) Close() error { return nil }

// checkMintable enforces the ledger-side guard shared by every driver.
func checkMintable(r models.TestRequest, req models.MintRequest) error {
	if !r.Pending() {
		return apperrors.NewConflictError(fmt.Sprintf("test request %d was issued at %d", r.ID, r.IssuedAt))
	}
	if r.IssuerAccount != req.IssuerAccount {
		return apperrors.NewValidationError(fmt.Sprintf("test request %d is not assigned to %s", r.ID, req.IssuerAccount))
	}
	if req.Fields.Result != models.ResultNegative {
		return apperrors.NewValidationError("only negative results can be certified")
	}
	if req.DocumentHash == "" {
		return apperrors.NewValidationError("document hash is required")
	}
	return nil
}
