package expiry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issued = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func TestStatus_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    Tier
	}{
		{"future issue time", -time.Hour, TierInfo},
		{"just issued", 0, TierInfo},
		{"exactly 72h", 72 * time.Hour, TierInfo},
		{"72h plus 1ns", 72*time.Hour + time.Nanosecond, TierSuccess},
		{"80h", 80 * time.Hour, TierSuccess},
		{"90h", 90 * time.Hour, TierSuccess},
		{"exactly 96h", 96 * time.Hour, TierSuccess},
		{"96h plus 1s", 96*time.Hour + time.Second, TierWarning},
		{"exactly 120h", 120 * time.Hour, TierWarning},
		{"121h", 121 * time.Hour, TierError},
		{"30 days", 30 * 24 * time.Hour, TierError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(issued, issued.Add(tt.elapsed)))
		})
	}
}

func TestStatus_Monotonic(t *testing.T) {
	prev := TierInfo
	for m := 0; m <= 200*60; m += 7 {
		got := Status(issued, issued.Add(time.Duration(m)*time.Minute))
		require.GreaterOrEqual(t, int(got), int(prev), "tier went backwards at %d minutes", m)
		prev = got
	}
	assert.Equal(t, TierError, prev)
}

func TestEngine_UsesClockOnEveryCall(t *testing.T) {
	now := issued
	e := &Engine{Now: func() time.Time { return now }}

	assert.Equal(t, TierInfo, e.Status(issued))
	now = issued.Add(100 * time.Hour)
	assert.Equal(t, TierWarning, e.Status(issued))
	assert.Equal(t, TierWarning, e.StatusUnix(issued.Unix()))
}

func TestTier_MarshalText(t *testing.T) {
	out, err := json.Marshal(map[string]Tier{"tier": TierSuccess})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"success"}`, string(out))
	assert.Equal(t, "Tier(9)", Tier(9).String())
}
