package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/metrics"

	"github.com/google/uuid"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// Failure reports a notification that was not delivered.
type Failure struct {
	Message Message
	Err     error
	At      time.Time
}

type DispatcherOptions struct {
	QueueSize int
	Timeout   time.Duration
	Logger    logger.Logger
}

// Dispatcher delivers notifications on a background goroutine. Dispatch
// never blocks; undelivered messages are logged and reported on Failures.
// Nothing is retried.
type Dispatcher struct {
	sender   Sender
	logger   logger.Logger
	timeout  time.Duration
	queue    chan Message
	failures chan Failure

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	d := &Dispatcher{
		sender:   sender,
		logger:   opts.Logger.With(map[string]interface{}{"component": "notify"}),
		timeout:  opts.Timeout,
		queue:    make(chan Message, opts.QueueSize),
		failures: make(chan Failure, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch enqueues msg and returns the id it was queued under. The error is
// non-nil only when the message was dropped.
func (d *Dispatcher) Dispatch(msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		// failures may already be closed
		d.record(msg, ErrDispatcherClosed)
		return msg.ID, ErrDispatcherClosed
	}
	select {
	case d.queue <- msg:
		return msg.ID, nil
	default:
		d.fail(msg, ErrQueueFull)
		return msg.ID, ErrQueueFull
	}
}

// Failures is closed after Close has drained the queue.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

// Close stops accepting messages and waits for queued ones to be attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer close(d.failures)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.fail(msg, err)
		return
	}
	metrics.NotificationsSent.WithLabelValues(d.sender.Channel(), "sent").Inc()
	d.logger.Debug("Certificate notification sent", map[string]interface{}{
		"notificationId": msg.ID,
		"certificateId":  msg.CertificateID,
		"channel":        d.sender.Channel(),
	})
}

// fail records err and reports it on the failure channel. The queue must
// still be open.
func (d *Dispatcher) fail(msg Message, err error) {
	d.record(msg, err)
	select {
	case d.failures <- Failure{Message: msg, Err: err, At: time.Now().UTC()}:
	default:
		d.logger.Warn("Notification failure channel full, dropping report", map[string]interface{}{
			"notificationId": msg.ID,
		})
	}
}

func (d *Dispatcher) record(msg Message, err error) {
	metrics.NotificationsSent.WithLabelValues(d.sender.Channel(), "failed").Inc()
	d.logger.WithError(err).Warn("Certificate notification failed", map[string]interface{}{
		"notificationId": msg.ID,
		"certificateId":  msg.CertificateID,
		"channel":        d.sender.Channel(),
	})
}
