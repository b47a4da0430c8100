package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"certificate-workers/internal/certificate/expiry"
	"certificate-workers/internal/certificate/token"
	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type brokenLedger struct{ ledger.Ledger }

func (brokenLedger) GetCertificate(context.Context, uint64) (*models.Certificate, error) {
	return nil, errors.New("rpc timeout")
}

func setup(t *testing.T, now time.Time) (*Service, *ledger.Memory) {
	t.Helper()
	ctx := context.Background()

	mem := ledger.NewMemory(72 * time.Hour).WithClock(func() time.Time { return issuedAt })
	require.NoError(t, mem.RegisterOrganization(ctx, models.Organization{Account: "lab", Name: "Central Lab"}))
	_, err := mem.CreateTestRequest(ctx, models.TestRequest{ID: 42, IssuerAccount: "lab"})
	require.NoError(t, err)

	store := contentstore.NewMemory("https://docs.example.com")
	hash, err := store.Put(ctx, []byte("certificate 42"))
	require.NoError(t, err)
	_, err = mem.MintCertificate(ctx, models.MintRequest{
		RequestID: 42, IssuerAccount: "lab", DocumentHash: hash,
		Fields: models.TestFields{Result: models.ResultNegative, ResultDate: "2024/02/29"},
	})
	require.NoError(t, err)

	codec, err := token.NewCodec([]byte("verification-secret-0123456789"))
	require.NoError(t, err)
	engine := &expiry.Engine{Now: func() time.Time { return now }}
	return NewService(codec, mem, store, engine, logger.NewTestLogger(t)), mem
}

func TestVerify_ReturnsCertificateLinkAndTier(t *testing.T) {
	svc, _ := setup(t, issuedAt.Add(80*time.Hour))
	ctx := context.Background()

	text, err := svc.TokenFor(ctx, 42)
	require.NoError(t, err)

	v, err := svc.Verify(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.Certificate.ID)
	assert.Equal(t, expiry.TierSuccess, v.Tier)
	assert.Equal(t, "https://docs.example.com/"+v.Certificate.DocumentHash, v.DocumentURL)
	assert.Equal(t, "Central Lab", v.Organization)
	assert.NotZero(t, v.TokenIssued)
}

func TestVerify_OldTokenStillAccepted(t *testing.T) {
	svc, _ := setup(t, issuedAt)
	text, err := svc.codec.Encode(token.Payload{CertificateID: 42, Timestamp: 1})
	require.NoError(t, err)

	v, err := svc.Verify(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, expiry.TierInfo, v.Tier)
}

func TestVerify_Failures(t *testing.T) {
	svc, _ := setup(t, issuedAt)
	ctx := context.Background()

	_, err := svc.Verify(ctx, "not-a-real-token")
	assert.ErrorIs(t, err, apperrors.ErrTokenDecode)

	unknown, err := svc.codec.Issue(7)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, unknown)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.TokenFor(ctx, 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	valid, err := svc.TokenFor(ctx, 42)
	require.NoError(t, err)
	svc.ledger = brokenLedger{}
	_, err = svc.Verify(ctx, valid)
	assert.Equal(t, apperrors.StageLedger, apperrors.StageOf(err))
}
