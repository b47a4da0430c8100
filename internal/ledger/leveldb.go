package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/models"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	req_<id>                  TestRequest JSON
//	pending_<issuer>_<id>     empty marker while the request is pending
//	cert_<id>                 Certificate JSON
//	org_<account>             Organization JSON
//	meta_next_request_id      big-endian uint64
//
// Ids are zero-padded so prefix scans return them in ascending order.
const (
	prefixRequest     = "req_"
	prefixPending     = "pending_"
	prefixCertificate = "cert_"
	prefixOrg         = "org_"
	keyNextRequestID  = "meta_next_request_id"
)

func requestKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", prefixRequest, id)) }
func certificateKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixCertificate, id))
}
func orgKey(account string) []byte { return []byte(prefixOrg + account) }
func pendingPrefix(issuer string) []byte {
	return []byte(prefixPending + issuer + "_")
}
func pendingKey(issuer string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s_%020d", prefixPending, issuer, id))
}

// LevelDB is an embedded single-process ledger. Writes are serialized by mu
// and applied as atomic batches.
type LevelDB struct {
	db       *leveldb.DB
	mu       sync.Mutex
	validity time.Duration
	now      func() time.Time
}

// OpenLevelDB opens (or creates) the ledger directory at path.
func OpenLevelDB(path string, validity time.Duration) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb ledger at %s: %w", path, err)
	}
	return &LevelDB{db: db, validity: validity, now: nowUTC}, nil
}

// NewInMemoryLevelDB backs the ledger with goleveldb's memory storage.
func NewInMemoryLevelDB(validity time.Duration) (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db, validity: validity, now: nowUTC}, nil
}

func (l *LevelDB) getJSON(key []byte, v interface{}) (bool, error) {
	raw, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(b *leveldb.Batch, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Put(key, raw)
	return nil
}

func (l *LevelDB) RegisterOrganization(_ context.Context, org models.Organization) error {
	if org.Account == "" {
		return apperrors.NewValidationError("organization account is required")
	}
	raw, err := json.Marshal(org)
	if err != nil {
		return err
	}
	return l.db.Put(orgKey(org.Account), raw, nil)
}

func (l *LevelDB) CreateTestRequest(_ context.Context, req models.TestRequest) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := uint64(1)
	raw, err := l.db.Get([]byte(keyNextRequestID), nil)
	switch {
	case err == nil && len(raw) == 8:
		next = binary.BigEndian.Uint64(raw)
	case err != nil && !errors.Is(err, leveldb.ErrNotFound):
		return 0, err
	}
	if req.ID == 0 {
		req.ID = next
	}
	exists, err := l.db.Has(requestKey(req.ID), nil)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, apperrors.NewConflictError(fmt.Sprintf("test request %d already exists", req.ID))
	}
	if req.ID >= next {
		next = req.ID + 1
	}

	b := new(leveldb.Batch)
	if err := putJSON(b, requestKey(req.ID), req); err != nil {
		return 0, err
	}
	if req.Pending() {
		b.Put(pendingKey(req.IssuerAccount, req.ID), nil)
	}
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, next)
	b.Put([]byte(keyNextRequestID), counter)
	if err := l.db.Write(b, nil); err != nil {
		return 0, fmt.Errorf("create test request: %w", err)
	}
	return req.ID, nil
}

func (l *LevelDB) GetPendingRequests(_ context.Context, issuerAccount string) ([]models.TestRequest, error) {
	prefix := pendingPrefix(issuerAccount)
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []models.TestRequest
	for iter.Next() {
		// Another issuer whose account extends this one shares the prefix.
		suffix := string(iter.Key()[len(prefix):])
		if len(suffix) != 20 {
			continue
		}
		id, err := strconv.ParseUint(suffix, 10, 64)
		if err != nil {
			continue
		}
		var r models.TestRequest
		found, err := l.getJSON(requestKey(id), &r)
		if err != nil {
			return nil, err
		}
		if found && r.Pending() {
			out = append(out, r)
		}
	}
	return out, iter.Error()
}

func (l *LevelDB) GetTestRequest(_ context.Context, id uint64) (*models.TestRequest, error) {
	var r models.TestRequest
	found, err := l.getJSON(requestKey(id), &r)
	if err != nil {
		return nil, fmt.Errorf("get test request %d: %w", id, err)
	}
	if !found {
		return nil, apperrors.NewNotFoundError("test request", fmt.Sprint(id))
	}
	return &r, nil
}

func (l *LevelDB) GetOrganization(_ context.Context, account string) (*models.Organization, error) {
	var o models.Organization
	found, err := l.getJSON(orgKey(account), &o)
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", account, err)
	}
	if !found {
		return nil, apperrors.NewNotFoundError("organization", account)
	}
	return &o, nil
}

func (l *LevelDB) MintCertificate(_ context.Context, req models.MintRequest) (*models.Certificate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var r models.TestRequest
	found, err := l.getJSON(requestKey(req.RequestID), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFoundError("test request", fmt.Sprint(req.RequestID))
	}
	if err := checkMintable(r, req); err != nil {
		return nil, err
	}

	cert := models.NewCertificate(req, l.now(), l.validity)
	r.IssuedAt = cert.IssuedAt

	b := new(leveldb.Batch)
	if err := putJSON(b, certificateKey(cert.ID), cert); err != nil {
		return nil, err
	}
	if err := putJSON(b, requestKey(r.ID), r); err != nil {
		return nil, err
	}
	b.Delete(pendingKey(r.IssuerAccount, r.ID))
	if err := l.db.Write(b, nil); err != nil {
		return nil, fmt.Errorf("mint certificate %d: %w", cert.ID, err)
	}
	return &cert, nil
}

func (l *LevelDB) GetCertificate(_ context.Context, id uint64) (*models.Certificate, error) {
	var c models.Certificate
	found, err := l.getJSON(certificateKey(id), &c)
	if err != nil {
		return nil, fmt.Errorf("get certificate %d: %w", id, err)
	}
	if !found {
		return nil, apperrors.NewNotFoundError("certificate", fmt.Sprint(id))
	}
	return &c, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
