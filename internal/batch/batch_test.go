package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/issuance"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"
	"certificate-workers/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedLedger records mint order and can fail chosen request ids.
type orderedLedger struct {
	*ledger.Memory
	mu       sync.Mutex
	minted   []uint64
	failMint map[uint64]bool
	inMint   int
	overlap  bool
}

func (l *orderedLedger) MintCertificate(ctx context.Context, req models.MintRequest) (*models.Certificate, error) {
	l.mu.Lock()
	l.inMint++
	if l.inMint > 1 {
		l.overlap = true
	}
	l.minted = append(l.minted, req.RequestID)
	fail := l.failMint[req.RequestID]
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inMint--
		l.mu.Unlock()
	}()

	time.Sleep(time.Millisecond)
	if fail {
		return nil, errors.New("transaction underpriced")
	}
	return l.Memory.MintCertificate(ctx, req)
}

type env struct {
	ledger *orderedLedger
	store  *contentstore.Memory
	op     *issuance.Operation
}

func newEnv(t *testing.T, org models.Organization) *env {
	t.Helper()
	ctx := context.Background()
	mem := ledger.NewMemory(72 * time.Hour)
	require.NoError(t, mem.RegisterOrganization(ctx, org))
	for id := uint64(1); id <= 8; id++ {
		_, err := mem.CreateTestRequest(ctx, models.TestRequest{
			ID:             id,
			SubjectAccount: "acct" + string(rune('0'+id)),
			IssuerAccount:  "lab",
			Subject: models.SubjectSnapshot{
				FirstName: "First", LastName: "Last", Email: "s" + string(rune('0'+id)) + "@example.com",
			},
			SampleID:    "S" + string(rune('0'+id)),
			RequestedAt: 1709251200,
		})
		require.NoError(t, err)
	}

	e := &env{
		ledger: &orderedLedger{Memory: mem, failMint: map[uint64]bool{}},
		store:  contentstore.NewMemory("https://docs.example.com"),
	}
	e.op = issuance.NewOperation(issuance.Dependencies{
		Ledger:   e.ledger,
		Renderer: render.NewTextRenderer(),
		Store:    e.store,
		Lock:     issuance.NewLocalLock(),
		Logger:   logger.NewNoOpLogger(),
	}, issuance.Options{StageTimeout: time.Second})
	return e
}

func usableOrg() models.Organization {
	return models.Organization{
		Account: "lab", Name: "Central Lab", Phone: "03-0000", Email: "lab@example.com",
		SampleType: "saliva", CollectionMethod: "self", TestMethod: "PCR",
	}
}

func (e *env) orchestrator(workers int) *Orchestrator {
	return NewOrchestrator(e.ledger, e.op, Options{PrepareWorkers: workers, Logger: logger.NewNoOpLogger()})
}

func (e *env) pending(t *testing.T, id uint64) bool {
	t.Helper()
	r, err := e.ledger.GetTestRequest(context.Background(), id)
	require.NoError(t, err)
	return r.Pending()
}

// line builds a data record for request id with the given result.
func line(id uint64, result string) []string {
	rec := make([]string, ColumnCount)
	d := string(rune('0' + id))
	rec[ColRequestID] = d
	rec[ColSubjectAccount] = "acct" + d
	rec[ColEmail] = "s" + d + "@example.com"
	rec[ColSampleID] = "S" + d
	rec[ColSample] = "saliva"
	rec[ColCollectionMethod] = "self"
	rec[ColCollectionDate] = "2024/02/28"
	rec[ColTestMethod] = "PCR"
	rec[ColResult] = result
	rec[ColResultDate] = "2024/02/29"
	return rec
}

func sheet(t *testing.T, records ...[]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(Header))
	require.NoError(t, w.WriteAll(records))
	return &buf
}

func statuses(r *BatchResult) map[int]Status {
	out := map[int]Status{}
	for _, o := range r.Rows {
		out[o.Line] = o.Status
	}
	return out
}

func TestImport_NegativeCertifiedPositiveSkipped(t *testing.T) {
	e := newEnv(t, usableOrg())

	res, err := e.orchestrator(1).Import(context.Background(), "lab", sheet(t, line(5, "陰性"), line(6, "陽性")))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRowsSeen)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, map[int]Status{1: StatusSucceeded, 2: StatusPositive}, statuses(res))

	assert.False(t, e.pending(t, 5))
	assert.True(t, e.pending(t, 6))
	assert.Equal(t, []uint64{5}, e.ledger.minted)
}

func TestImport_UnusableOrganizationAbortsBatch(t *testing.T) {
	org := usableOrg()
	org.Name = ""
	e := newEnv(t, org)

	res, err := e.orchestrator(1).Import(context.Background(), "lab", sheet(t, line(5, "negative")))
	assert.Equal(t, apperrors.ErrCodeOrganizationUnusable, apperrors.CodeOf(err))
	assert.Zero(t, res.Succeeded)
	assert.Empty(t, res.Rows)
	assert.Empty(t, e.ledger.minted)
	assert.Zero(t, e.store.Len())
	assert.True(t, e.pending(t, 5))
}

func TestImport_UnknownOrganization(t *testing.T) {
	e := newEnv(t, usableOrg())

	res, err := e.orchestrator(1).Import(context.Background(), "ghost", sheet(t, line(5, "0")))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, res.Succeeded)
}

func TestImport_Selection(t *testing.T) {
	e := newEnv(t, usableOrg())

	wrongEmail := line(3, "0")
	wrongEmail[ColEmail] = "someone@else.com"
	emptySample := line(4, "0")
	emptySample[ColSample] = ""
	badDate := line(7, "0")
	badDate[ColResultDate] = "29/02/2024"
	unknownResult := line(8, "maybe")

	res, err := e.orchestrator(1).Import(context.Background(), "lab", sheet(t,
		line(1, "Negative"),
		line(2, "0.0"),
		wrongEmail,
		emptySample,
		[]string{"5", "short"},
		line(9, "0"),
		badDate,
		unknownResult,
		line(6, "1"),
	))
	require.NoError(t, err)
	assert.Equal(t, 9, res.TotalRowsSeen)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, map[int]Status{
		1: StatusSucceeded,
		2: StatusSucceeded,
		3: StatusUnmatched,
		4: StatusInvalid,
		5: StatusInvalid,
		6: StatusUnmatched,
		7: StatusInvalid,
		8: StatusInvalid,
		9: StatusPositive,
	}, statuses(res))
	assert.Equal(t, []uint64{1, 2}, e.ledger.minted)
}

func TestImport_AlreadyIssuedRequestIsUnmatched(t *testing.T) {
	e := newEnv(t, usableOrg())
	_, err := e.op.Issue(context.Background(), usableOrg(), issuance.Request{
		RequestID: 2, IssuerAccount: "lab", Fields: models.TestFields{
			SampleID: "S2", Sample: "saliva", CollectionMethod: "self", CollectionDate: "2024/02/28",
			TestMethod: "PCR", Result: models.ResultNegative, ResultDate: "2024/02/29",
		},
	})
	require.NoError(t, err)

	res, err := e.orchestrator(1).Import(context.Background(), "lab", sheet(t, line(2, "0")))
	require.NoError(t, err)
	assert.Equal(t, StatusUnmatched, res.Rows[0].Status)
}

func TestImport_RowFailureIsIsolated(t *testing.T) {
	for _, workers := range []int{1, 3} {
		e := newEnv(t, usableOrg())
		e.ledger.failMint[2] = true

		res, err := e.orchestrator(workers).Import(context.Background(), "lab",
			sheet(t, line(1, "0"), line(2, "0"), line(3, "0")))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Succeeded, "workers=%d", workers)

		failedRow := res.Rows[1]
		assert.Equal(t, StatusFailed, failedRow.Status)
		assert.Equal(t, apperrors.StageLedger, failedRow.Stage)
		assert.Equal(t, string(apperrors.ErrCodeUpstreamFailed), failedRow.Code)

		assert.False(t, e.pending(t, 1))
		assert.True(t, e.pending(t, 2))
		assert.False(t, e.pending(t, 3))
	}
}

func TestImport_DuplicateLineMintsOnce(t *testing.T) {
	for _, workers := range []int{1, 4} {
		e := newEnv(t, usableOrg())

		res, err := e.orchestrator(workers).Import(context.Background(), "lab",
			sheet(t, line(4, "0"), line(4, "0")))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Succeeded)
		assert.Equal(t, string(apperrors.ErrCodeConflict), res.Rows[1].Code)
	}
}

func TestImport_PipelinedMintsSeriallyInSheetOrder(t *testing.T) {
	e := newEnv(t, usableOrg())

	res, err := e.orchestrator(4).Import(context.Background(), "lab",
		sheet(t, line(8, "0"), line(3, "0"), line(6, "0"), line(1, "0"), line(5, "0")))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Succeeded)
	assert.Equal(t, []uint64{8, 3, 6, 1, 5}, e.ledger.minted)
	assert.False(t, e.ledger.overlap, "mints must never overlap")
}

func TestImport_CancelledReturnsPartialResult(t *testing.T) {
	e := newEnv(t, usableOrg())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.orchestrator(1).Import(ctx, "lab", sheet(t, line(1, "0"), line(2, "0")))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Succeeded)
	assert.Empty(t, e.ledger.minted)
}

func TestImport_EmptyAndHeaderOnlySheets(t *testing.T) {
	e := newEnv(t, usableOrg())
	o := e.orchestrator(1)

	_, err := o.Import(context.Background(), "lab", strings.NewReader(""))
	assert.Equal(t, apperrors.ErrCodeBatchInputInvalid, apperrors.CodeOf(err))

	res, err := o.Import(context.Background(), "lab", sheet(t))
	require.NoError(t, err)
	assert.Zero(t, res.TotalRowsSeen)
	assert.NotEmpty(t, res.RunID)
}

func TestExportThenImport_RoundTrip(t *testing.T) {
	e := newEnv(t, usableOrg())
	ctx := context.Background()

	var exported bytes.Buffer
	n, err := ExportPending(ctx, e.ledger, "lab", &exported)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	records, err := csv.NewReader(&exported).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 9)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "2024/03/01", records[1][ColRequestedAt])
	assert.Equal(t, "saliva", records[1][ColSample])

	// The issuer fills in results for the first three requests only.
	for i, result := range []string{"陰性", "negative", "陽性"} {
		rec := records[i+1]
		rec[ColCollectionDate] = "2024/03/01"
		rec[ColResult] = result
		rec[ColResultDate] = "2024/03/02"
	}

	res, err := e.orchestrator(2).Import(ctx, "lab", sheet(t, records[1:]...))
	require.NoError(t, err)
	assert.Equal(t, 8, res.TotalRowsSeen)
	assert.Equal(t, 2, res.Succeeded)

	exported.Reset()
	n, err = ExportPending(ctx, e.ledger, "lab", &exported)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
