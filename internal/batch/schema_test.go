package batch

import (
	"strings"
	"testing"

	"certificate-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	row, err := DecodeRecord(1, line(5, " 陰性 "))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), row.RequestID)
	assert.Equal(t, "acct5", row.SubjectAccount)
	assert.Equal(t, "s5@example.com", row.Email)
	assert.Equal(t, models.ResultNegative, row.Fields.Result)
	assert.Equal(t, "2024/02/29", row.Fields.ResultDate)
}

func TestDecodeRecord_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]string) []string
		reason string
	}{
		{"too few columns", func(r []string) []string { return r[:16] }, "expected 17 columns, got 16"},
		{"too many columns", func(r []string) []string { return append(r, "x") }, "expected 17 columns, got 18"},
		{"empty sample id", func(r []string) []string { r[ColSampleID] = " "; return r }, "sampleId is empty"},
		{"empty result", func(r []string) []string { r[ColResult] = ""; return r }, "result is empty"},
		{"non numeric id", func(r []string) []string { r[ColRequestID] = "abc"; return r }, "requestId"},
		{"zero id", func(r []string) []string { r[ColRequestID] = "0"; return r }, "requestId"},
		{"unknown result", func(r []string) []string { r[ColResult] = "inconclusive"; return r }, "unrecognized test result"},
		{"bad collection date", func(r []string) []string { r[ColCollectionDate] = "2024-02-28"; return r }, "collectionDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(3, tt.mutate(line(5, "0")))
			require.Error(t, err)
			var recErr *RecordError
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, 3, recErr.Line)
			assert.Contains(t, recErr.Reason, tt.reason)
		})
	}
}

func TestReadSheet_ParseErrorsSkipOnlyTheirLine(t *testing.T) {
	valid := strings.Join(line(1, "0"), ",")
	payload := strings.Join(Header, ",") + "\n" +
		valid + "\n" +
		`1,"bro"ken,x` + "\n" +
		valid + "\n"

	lines, err := readSheet(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.NoError(t, lines[0].err)
	assert.Error(t, lines[1].err)
	assert.NoError(t, lines[2].err)
}
