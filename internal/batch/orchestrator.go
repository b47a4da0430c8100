package batch

import (
	"context"
	"io"
	"sort"
	"sync"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/metrics"
	"certificate-workers/internal/issuance"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one data line.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusInvalid   Status = "invalid"
	StatusPositive  Status = "positive"
	StatusUnmatched Status = "unmatched"
	StatusFailed    Status = "failed"
)

type RowOutcome struct {
	Line          int             `json:"line"`
	RequestID     uint64          `json:"requestId,omitempty"`
	Status        Status          `json:"status"`
	Stage         apperrors.Stage `json:"stage,omitempty"`
	Code          string          `json:"code,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CertificateID uint64          `json:"certificateId,omitempty"`
}

// BatchResult tallies one import. TotalRowsSeen counts data lines, header
// excluded; Succeeded counts certificates actually minted.
type BatchResult struct {
	RunID         string       `json:"runId"`
	TotalRowsSeen int          `json:"totalRowsSeen"`
	Succeeded     int          `json:"succeededCount"`
	Rows          []RowOutcome `json:"rows"`
}

func (r *BatchResult) record(o RowOutcome) {
	r.Rows = append(r.Rows, o)
	if o.Status == StatusSucceeded {
		r.Succeeded++
	}
	metrics.BatchRows.WithLabelValues(string(o.Status)).Inc()
}

// Issuer is the two-phase issuance the orchestrator drives.
type Issuer interface {
	Prepare(ctx context.Context, org models.Organization, req issuance.Request) (*issuance.Prepared, error)
	Commit(ctx context.Context, p *issuance.Prepared) (*issuance.Result, error)
}

type Options struct {
	// PrepareWorkers bounds how many rows render and upload ahead of the
	// mint loop. 1 processes rows strictly one after another.
	PrepareWorkers int
	Logger         logger.Logger
}

// Orchestrator certifies every eligible line of a result sheet. Mints run
// one at a time in sheet order; a failing line never stops the others.
type Orchestrator struct {
	ledger  ledger.Ledger
	issuer  Issuer
	workers int
	logger  logger.Logger
}

func NewOrchestrator(l ledger.Ledger, issuer Issuer, opts Options) *Orchestrator {
	if opts.PrepareWorkers < 1 {
		opts.PrepareWorkers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Orchestrator{
		ledger:  l,
		issuer:  issuer,
		workers: opts.PrepareWorkers,
		logger:  opts.Logger.With(map[string]interface{}{"component": "batch"}),
	}
}

// eligible is a line that decoded, is negative and matched a pending request.
type eligible struct {
	line int
	req  issuance.Request
}

// Import reads the sheet and certifies its eligible lines for issuerAccount.
// A missing or unusable organization, an unreadable sheet or a failed
// pending-request lookup fail the whole batch with nothing minted. When ctx
// is cancelled the result so far is returned with ctx.Err().
func (o *Orchestrator) Import(ctx context.Context, issuerAccount string, payload io.Reader) (*BatchResult, error) {
	result := &BatchResult{RunID: uuid.NewString(), Rows: []RowOutcome{}}
	log := o.logger.With(map[string]interface{}{"runId": result.RunID, "issuer": issuerAccount})

	org, err := o.ledger.GetOrganization(ctx, issuerAccount)
	if err != nil {
		return result, ledgerError(err)
	}
	if !org.Usable() {
		log.Warn("Batch aborted, issuer profile incomplete", nil)
		return result, apperrors.NewOrganizationUnusableError(issuerAccount)
	}

	lines, err := readSheet(payload)
	if err != nil {
		return result, err
	}
	result.TotalRowsSeen = len(lines)

	pending, err := o.ledger.GetPendingRequests(ctx, issuerAccount)
	if err != nil {
		return result, ledgerError(err)
	}
	index := make(map[matchKey]struct{}, len(pending))
	for _, p := range pending {
		index[requestKey(p)] = struct{}{}
	}

	var work []eligible
	for _, l := range lines {
		switch {
		case l.err != nil:
			result.record(RowOutcome{Line: l.line, Status: StatusInvalid, Reason: l.err.Error()})
		case l.row.Fields.Result != models.ResultNegative:
			result.record(RowOutcome{Line: l.line, RequestID: l.row.RequestID, Status: StatusPositive})
		default:
			if _, ok := index[l.row.key()]; !ok {
				result.record(RowOutcome{Line: l.line, RequestID: l.row.RequestID, Status: StatusUnmatched})
				continue
			}
			work = append(work, eligible{line: l.line, req: issuance.Request{
				RequestID:     l.row.RequestID,
				IssuerAccount: issuerAccount,
				Fields:        l.row.Fields,
			}})
		}
	}

	log.Info("Batch import started", map[string]interface{}{
		"totalRows": result.TotalRowsSeen,
		"eligible":  len(work),
		"workers":   o.workers,
	})

	if o.workers == 1 {
		err = o.runSequential(ctx, *org, work, result)
	} else {
		err = o.runPipelined(ctx, *org, work, result)
	}

	sort.SliceStable(result.Rows, func(i, j int) bool { return result.Rows[i].Line < result.Rows[j].Line })
	log.Info("Batch import finished", map[string]interface{}{
		"totalRows": result.TotalRowsSeen,
		"succeeded": result.Succeeded,
		"cancelled": err != nil,
	})
	return result, err
}

func (o *Orchestrator) runSequential(ctx context.Context, org models.Organization, work []eligible, result *BatchResult) error {
	for _, w := range work {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := o.issuer.Prepare(ctx, org, w.req)
		if err == nil {
			o.commit(ctx, w, p, result)
			continue
		}
		result.record(failed(w, err))
	}
	return nil
}

type prepared struct {
	p    *issuance.Prepared
	err  error
	done chan struct{}
}

// runPipelined prepares up to o.workers lines ahead while committing in
// sheet order, each commit finishing before the next starts.
func (o *Orchestrator) runPipelined(ctx context.Context, org models.Organization, work []eligible, result *BatchResult) error {
	pctx, stop := context.WithCancel(ctx)
	defer stop()

	slots := make([]*prepared, len(work))
	for i := range slots {
		slots[i] = &prepared{done: make(chan struct{})}
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	var launch sync.WaitGroup
	launch.Add(1)
	go func() {
		defer launch.Done()
		for i, w := range work {
			if pctx.Err() != nil {
				slots[i].err = pctx.Err()
				close(slots[i].done)
				continue
			}
			g.Go(func() error {
				defer close(slots[i].done)
				slots[i].p, slots[i].err = o.issuer.Prepare(pctx, org, w.req)
				return nil
			})
		}
	}()
	defer func() {
		stop()
		launch.Wait()
		_ = g.Wait()
	}()

	for i, w := range work {
		select {
		case <-slots[i].done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if slots[i].err != nil {
			result.record(failed(w, slots[i].err))
			continue
		}
		o.commit(ctx, w, slots[i].p, result)
	}
	return nil
}

func (o *Orchestrator) commit(ctx context.Context, w eligible, p *issuance.Prepared, result *BatchResult) {
	res, err := o.issuer.Commit(ctx, p)
	if err != nil {
		result.record(failed(w, err))
		return
	}
	result.record(RowOutcome{
		Line:          w.line,
		RequestID:     w.req.RequestID,
		Status:        StatusSucceeded,
		CertificateID: res.Certificate.ID,
	})
}

func failed(w eligible, err error) RowOutcome {
	std := apperrors.Normalize(err)
	return RowOutcome{
		Line:      w.line,
		RequestID: w.req.RequestID,
		Status:    StatusFailed,
		Stage:     std.Stage,
		Code:      string(std.Code),
		Reason:    err.Error(),
	}
}

// ledgerError keeps ledger business errors and marks anything else as an
// upstream ledger failure.
func ledgerError(err error) error {
	if std, ok := apperrors.AsStandard(err); ok {
		return std
	}
	return apperrors.NewUpstreamError(apperrors.StageLedger, err)
}
