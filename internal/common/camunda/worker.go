package camunda

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"certificate-workers/internal/common/logger"
)

// Worker is a job handler that can open and close its Zeebe subscription.
type Worker interface {
	Register() error
	Close()
	HealthCheck(ctx context.Context) error
	GetTaskType() string
}

// Registry owns the workers started by the manager.
type Registry struct {
	mu      sync.Mutex
	workers []Worker
	started bool
	logger  logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Registry{logger: log}
}

// Add queues a worker. Task types must be unique.
func (r *Registry) Add(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workers {
		if existing.GetTaskType() == w.GetTaskType() {
			return fmt.Errorf("worker %s already registered", w.GetTaskType())
		}
	}
	r.workers = append(r.workers, w)
	return nil
}

// Start registers every worker. On the first failure the ones already
// opened are closed again.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, w := range r.workers {
		if err := w.Register(); err != nil {
			for j := i - 1; j >= 0; j-- {
				r.workers[j].Close()
			}
			return fmt.Errorf("register %s: %w", w.GetTaskType(), err)
		}
		r.logger.Info("worker started", map[string]interface{}{"taskType": w.GetTaskType()})
	}
	r.started = true
	return nil
}

// Stop closes the workers in reverse order.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	for i := len(r.workers) - 1; i >= 0; i-- {
		r.logger.Info("stopping worker", map[string]interface{}{"taskType": r.workers[i].GetTaskType()})
		r.workers[i].Close()
	}
	r.started = false
}

// HealthCheck joins every worker's check.
func (r *Registry) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	workers := append([]Worker(nil), r.workers...)
	r.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.GetTaskType(), err))
		}
	}
	return errors.Join(errs...)
}

// TaskTypes lists the registered task types in registration order.
func (r *Registry) TaskTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.GetTaskType())
	}
	return out
}
