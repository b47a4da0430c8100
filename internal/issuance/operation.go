// Package issuance turns a recorded test result into a stored document and
// a minted ledger certificate, then notifies the subject.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/metrics"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"
	"certificate-workers/internal/notify"
	"certificate-workers/internal/render"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "certificate-workers/issuance"

// Request is one result an issuer wants certified.
type Request struct {
	RequestID     uint64
	IssuerAccount string
	Fields        models.TestFields
}

// Prepared is a request whose document is already stored and which only
// awaits its mint.
type Prepared struct {
	Request      Request
	TestRequest  models.TestRequest
	Organization models.Organization
	DocumentHash string
}

// Result describes a successful issuance.
type Result struct {
	Certificate    models.Certificate
	NotificationID string
	// NotificationQueued is false when the notifier refused the message.
	// The certificate is valid either way.
	NotificationQueued bool
}

// Notifier accepts a message for asynchronous delivery.
type Notifier interface {
	Dispatch(msg notify.Message) (string, error)
}

type Dependencies struct {
	Ledger   ledger.Ledger
	Renderer render.Renderer
	Store    contentstore.Store
	Notifier Notifier
	Lock     SignerLock
	Logger   logger.Logger
	Tracer   trace.Tracer
}

type Options struct {
	// StageTimeout bounds each of render, store, ledger read, lock and mint.
	StageTimeout time.Duration
}

// Operation runs validate, render, store, mint and notify for one request.
// It never uploads more than one document, mints more than once or
// dispatches more than one notification per call.
type Operation struct {
	ledger   ledger.Ledger
	renderer render.Renderer
	store    contentstore.Store
	notifier Notifier
	lock     SignerLock
	logger   logger.Logger
	tracer   trace.Tracer
	timeout  time.Duration
}

func NewOperation(deps Dependencies, opts Options) *Operation {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 15 * time.Second
	}
	if deps.Lock == nil {
		deps.Lock = NewLocalLock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Operation{
		ledger:   deps.Ledger,
		renderer: deps.Renderer,
		store:    deps.Store,
		notifier: deps.Notifier,
		lock:     deps.Lock,
		logger:   deps.Logger.With(map[string]interface{}{"component": "issuance"}),
		tracer:   deps.Tracer,
		timeout:  opts.StageTimeout,
	}
}

// Issue is Prepare followed by Commit.
func (o *Operation) Issue(ctx context.Context, org models.Organization, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.Issue", trace.WithAttributes(
		attribute.Int64("request.id", int64(req.RequestID)),
		attribute.String("issuer", req.IssuerAccount),
	))
	defer span.End()

	p, err := o.Prepare(ctx, org, req)
	if err != nil {
		markSpan(span, err)
		return nil, err
	}
	res, err := o.Commit(ctx, p)
	if err != nil {
		markSpan(span, err)
		return nil, err
	}
	return res, nil
}

// Prepare checks every precondition against a fresh ledger read, then
// renders and stores the document. No ledger state changes.
func (o *Operation) Prepare(ctx context.Context, org models.Organization, req Request) (*Prepared, error) {
	if err := Validate(org, req); err != nil {
		return nil, err
	}

	var current *models.TestRequest
	err := o.stage(ctx, apperrors.StageLedger, func(ctx context.Context) error {
		var err error
		current, err = o.ledger.GetTestRequest(ctx, req.RequestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !current.Pending() {
		return nil, apperrors.NewConflictError(fmt.Sprintf("test request %d was already certified", req.RequestID))
	}
	if current.IssuerAccount != req.IssuerAccount {
		return nil, apperrors.NewValidationError(fmt.Sprintf("test request %d is not assigned to %s", req.RequestID, req.IssuerAccount))
	}

	var doc []byte
	err = o.stage(ctx, apperrors.StageRender, func(ctx context.Context) error {
		var err error
		doc, err = o.renderer.Render(ctx, render.Document{
			RequestID:    req.RequestID,
			Subject:      current.Subject,
			Fields:       req.Fields,
			Organization: org,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var hash string
	err = o.stage(ctx, apperrors.StageStore, func(ctx context.Context) error {
		var err error
		hash, err = o.store.Put(ctx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Prepared{Request: req, TestRequest: *current, Organization: org, DocumentHash: hash}, nil
}

// Commit mints a prepared request while holding the issuer's signer lock and
// queues the notification. A stored document is never removed when the mint
// fails.
func (o *Operation) Commit(ctx context.Context, p *Prepared) (*Result, error) {
	log := o.logger.With(map[string]interface{}{
		"requestId": p.Request.RequestID,
		"issuer":    p.Request.IssuerAccount,
	})

	var release func()
	err := o.stage(ctx, apperrors.StageLock, func(ctx context.Context) error {
		var err error
		release, err = o.lock.Acquire(ctx, p.Request.IssuerAccount)
		return err
	})
	if err != nil {
		return nil, err
	}

	var cert *models.Certificate
	err = o.stage(ctx, apperrors.StageLedger, func(ctx context.Context) error {
		var err error
		cert, err = o.ledger.MintCertificate(ctx, models.MintRequest{
			RequestID:     p.Request.RequestID,
			IssuerAccount: p.Request.IssuerAccount,
			Fields:        p.Request.Fields,
			DocumentHash:  p.DocumentHash,
		})
		return err
	})
	release()
	if err != nil {
		log.WithError(err).Warn("Certificate mint failed", map[string]interface{}{
			"documentHash": p.DocumentHash,
		})
		return nil, err
	}
	metrics.CertificatesMinted.Inc()

	res := &Result{Certificate: *cert}
	if o.notifier != nil {
		subject := p.TestRequest.Subject
		id, err := o.notifier.Dispatch(notify.Message{
			CertificateID: cert.ID,
			To:            subject.Email,
			Phone:         subject.Phone,
			FirstName:     subject.FirstName,
			LastName:      subject.LastName,
			ResultDate:    cert.ResultDate,
			Issuer:        p.Organization.Name,
		})
		res.NotificationID = id
		res.NotificationQueued = err == nil
		if err != nil {
			metrics.IssuanceStageFailures.WithLabelValues(string(apperrors.StageNotify)).Inc()
			log.WithError(err).Warn("Certificate notification not queued", nil)
		}
	}

	log.Info("Certificate minted", map[string]interface{}{
		"certificateId": cert.ID,
		"documentHash":  cert.DocumentHash,
		"issuedAt":      cert.IssuedAt,
	})
	return res, nil
}

// stage runs fn under its own span and timeout. Ledger business errors pass
// through; anything else becomes an UpstreamError for the stage.
func (o *Operation) stage(ctx context.Context, stage apperrors.Stage, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "issuance."+string(stage))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.IssuanceStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	markSpan(span, err)
	if std, ok := apperrors.AsStandard(err); ok && std.Code != apperrors.ErrCodeUpstreamFailed {
		return err
	}
	metrics.IssuanceStageFailures.WithLabelValues(string(stage)).Inc()
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out after %s: %w", stage, o.timeout, err)
	}
	return apperrors.NewUpstreamError(stage, err)
}

func markSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var requiredFields = []struct {
	name  string
	value func(models.TestFields) string
}{
	{"sampleId", func(f models.TestFields) string { return f.SampleID }},
	{"sample", func(f models.TestFields) string { return f.Sample }},
	{"collectionMethod", func(f models.TestFields) string { return f.CollectionMethod }},
	{"collectionDate", func(f models.TestFields) string { return f.CollectionDate }},
	{"testMethod", func(f models.TestFields) string { return f.TestMethod }},
	{"resultDate", func(f models.TestFields) string { return f.ResultDate }},
}

// Validate checks the preconditions that need no ledger access.
func Validate(org models.Organization, req Request) error {
	if req.RequestID == 0 {
		return apperrors.NewValidationError("requestId is required")
	}
	if req.IssuerAccount == "" {
		return apperrors.NewValidationError("issuerAccount is required")
	}
	var missing []string
	for _, f := range requiredFields {
		if strings.TrimSpace(f.value(req.Fields)) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields: " + strings.Join(missing, ", "))
	}
	for _, d := range [][2]string{
		{"collectionDate", req.Fields.CollectionDate},
		{"resultDate", req.Fields.ResultDate},
	} {
		if _, err := time.Parse(models.DateLayout, strings.TrimSpace(d[1])); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("%s %q is not a %s date", d[0], d[1], models.DateLayout))
		}
	}
	if req.Fields.Result != models.ResultNegative {
		return apperrors.NewValidationError("only negative results are certified")
	}
	if org.Account != req.IssuerAccount {
		return apperrors.NewValidationError(fmt.Sprintf("organization %s does not match issuer %s", org.Account, req.IssuerAccount))
	}
	if !org.Usable() {
		return apperrors.NewOrganizationUnusableError(org.Account)
	}
	return nil
}
