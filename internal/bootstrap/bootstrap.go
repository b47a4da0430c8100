// Package bootstrap builds the certificate pipeline from configuration for
// the long-running worker manager and the one-shot admin tool.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"certificate-workers/internal/batch"
	"certificate-workers/internal/certificate/expiry"
	"certificate-workers/internal/certificate/token"
	"certificate-workers/internal/common/aws"
	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/database"
	apphttp "certificate-workers/internal/common/http"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/contentstore"
	"certificate-workers/internal/issuance"
	"certificate-workers/internal/ledger"
	"certificate-workers/internal/notify"
	"certificate-workers/internal/render"
	"certificate-workers/internal/verification"

	"go.opentelemetry.io/otel/trace"
)

// RetryWithBackoff calls operation until it succeeds, doubling the delay
// after each failure.
func RetryWithBackoff(ctx context.Context, log logger.Logger, name string, maxRetries int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay
	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		log.Warn(fmt.Sprintf("%s failed, retrying...", name), map[string]interface{}{
			"error":       err.Error(),
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}

// Pipeline holds every collaborator of the issuance and verification flows.
type Pipeline struct {
	Ledger       ledger.Store
	Documents    contentstore.Store
	Codec        *token.Codec
	Sender       notify.Sender
	Dispatcher   *notify.Dispatcher
	Lock         issuance.SignerLock
	Operation    *issuance.Operation
	Orchestrator *batch.Orchestrator
	Verifier     *verification.Service

	closers []func() error
}

// Options tune Build for the caller.
type Options struct {
	Logger logger.Logger
	Tracer trace.Tracer
	// Retries bounds connection attempts to the ledger and document store.
	// Zero tries once.
	Retries int
	// DisableNotifications skips the senders, as the admin tool does.
	DisableNotifications bool
	// Documents overrides the MinIO store.
	Documents contentstore.Store
}

// Build connects to the ledger, document store, lock backend and notifiers
// selected by cfg and assembles the pipeline. Close releases them.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Pipeline, err error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	p := &Pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	if p.Codec, err = token.NewCodec([]byte(cfg.Token.Secret)); err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	err = RetryWithBackoff(ctx, log, "ledger connection", retries, 2*time.Second, func() error {
		var openErr error
		p.Ledger, openErr = ledger.Open(ctx, cfg)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.Ledger.Close)
	log.Info("Ledger ready", map[string]interface{}{"driver": cfg.Ledger.Driver})

	if p.Documents = opts.Documents; p.Documents == nil {
		minioStore, err := contentstore.NewMinioStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		err = RetryWithBackoff(ctx, log, "document store", retries, 2*time.Second, func() error {
			return minioStore.EnsureBucket(ctx)
		})
		if err != nil {
			return nil, err
		}
		p.Documents = minioStore
		log.Info("Document store ready", map[string]interface{}{"bucket": cfg.Storage.Minio.Bucket})
	}

	if p.Lock, err = buildLock(ctx, cfg, p); err != nil {
		return nil, err
	}

	var notifier issuance.Notifier
	if !opts.DisableNotifications {
		if p.Sender, err = BuildSender(ctx, cfg); err != nil {
			return nil, err
		}
		p.Dispatcher = notify.NewDispatcher(p.Sender, notify.DispatcherOptions{
			QueueSize: cfg.Notifications.QueueSize,
			Timeout:   config.GetDuration(cfg.Notifications.Timeout),
			Logger:    log,
		})
		notifier = p.Dispatcher
	}

	p.Operation = issuance.NewOperation(issuance.Dependencies{
		Ledger:   p.Ledger,
		Renderer: render.NewTextRenderer(),
		Store:    p.Documents,
		Notifier: notifier,
		Lock:     p.Lock,
		Logger:   log,
		Tracer:   opts.Tracer,
	}, issuance.Options{StageTimeout: config.GetDuration(cfg.Issuance.StageTimeout)})

	p.Orchestrator = batch.NewOrchestrator(p.Ledger, p.Operation, batch.Options{
		PrepareWorkers: cfg.Issuance.PrepareWorkers,
		Logger:         log,
	})
	p.Verifier = verification.NewService(p.Codec, p.Ledger, p.Documents, expiry.NewEngine(), log)
	return p, nil
}

func buildLock(ctx context.Context, cfg *config.Config, p *Pipeline) (issuance.SignerLock, error) {
	switch cfg.Issuance.LockDriver {
	case config.LockDriverRedis:
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, rdb.Close)
		if err := rdb.Ping(ctx); err != nil {
			return nil, err
		}
		return issuance.NewRedisLock(rdb, config.GetDuration(cfg.Issuance.LockTTL)), nil
	case config.LockDriverLocal, "":
		return issuance.NewLocalLock(), nil
	default:
		return nil, fmt.Errorf("unknown signer lock driver %q", cfg.Issuance.LockDriver)
	}
}

// BuildSender fans out to every enabled notification channel, or returns a
// no-op sender when none is enabled.
func BuildSender(ctx context.Context, cfg *config.Config) (notify.Sender, error) {
	n := cfg.Notifications
	var senders notify.Fanout

	if n.Email.Enabled || n.SMS.Enabled {
		clients, err := aws.NewClients(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		if n.Email.Enabled {
			senders = append(senders, notify.NewEmailSender(clients.SES, n.Email.FromEmail))
		}
		if n.SMS.Enabled {
			senders = append(senders, notify.NewSMSSender(clients.SNS))
		}
	}
	if n.Webhook.Enabled {
		client := apphttp.NewClient(config.GetDuration(n.Timeout))
		senders = append(senders, notify.NewWebhookSender(client, n.Webhook.URL))
	}

	switch len(senders) {
	case 0:
		return notify.Nop{}, nil
	case 1:
		return senders[0], nil
	default:
		return senders, nil
	}
}

// Close stops the dispatcher, letting queued notifications drain, then
// closes connections in reverse order of creation.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	if p.Dispatcher != nil {
		p.Dispatcher.Close()
	}
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}
