package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObservability_RecordsWithoutJaeger(t *testing.T) {
	o := New("certificate-workers-test", "")
	defer o.Shutdown()

	assert.NotNil(t, o.Tracer())
	assert.Nil(t, o.tracerProvider)
	assert.NotPanics(t, func() {
		o.RecordNotificationFailure(context.Background(), "email", time.Now().Add(-time.Second))
		o.RecordNotificationFailure(context.Background(), "sms", time.Time{})
	})
}

func TestObservability_ZeroValueIsSafe(t *testing.T) {
	var o Observability
	assert.NotPanics(t, func() {
		o.RecordNotificationFailure(context.Background(), "webhook", time.Now())
		o.Shutdown()
	})
}
