// Package expiry classifies how fresh a certificate is.
package expiry

import (
	"fmt"
	"time"
)

// Tier is a freshness bucket. Higher tiers are staler.
type Tier int

const (
	TierInfo Tier = iota
	TierSuccess
	TierWarning
	TierError
)

// Tier boundaries, inclusive on the upper edge.
const (
	InfoWindow    = 72 * time.Hour
	SuccessWindow = 96 * time.Hour
	WarningWindow = 120 * time.Hour
)

func (t Tier) String() string {
	switch t {
	case TierInfo:
		return "info"
	case TierSuccess:
		return "success"
	case TierWarning:
		return "warning"
	case TierError:
		return "error"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText renders the tier name in JSON and job variables.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Status buckets the time elapsed since issuedAt. An issue time in the
// future counts as zero elapsed.
func Status(issuedAt, now time.Time) Tier {
	elapsed := now.Sub(issuedAt)
	switch {
	case elapsed <= InfoWindow:
		return TierInfo
	case elapsed <= SuccessWindow:
		return TierSuccess
	case elapsed <= WarningWindow:
		return TierWarning
	default:
		return TierError
	}
}

// Engine evaluates Status against an injected clock on every call.
type Engine struct {
	Now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) Status(issuedAt time.Time) Tier {
	return Status(issuedAt, e.Now())
}

// StatusUnix is Status for ledger timestamps in unix seconds.
func (e *Engine) StatusUnix(issuedAt int64) Tier {
	return e.Status(time.Unix(issuedAt, 0))
}
