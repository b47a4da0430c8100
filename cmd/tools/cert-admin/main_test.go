package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certificate-workers/internal/batch"
	"certificate-workers/internal/bootstrap"
	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/contentstore"
	"certificate-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdmin(t *testing.T) (*admin, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Ledger.Driver = config.LedgerDriverMemory
	cfg.Ledger.CertificateValidity = 72
	cfg.Token.Secret = "a-shared-secret-of-sufficient-length"
	cfg.Issuance.StageTimeout = 1000
	cfg.Issuance.LockDriver = config.LockDriverLocal

	out := &bytes.Buffer{}
	a := &admin{
		out:        out,
		loadConfig: func(string) (*config.Config, error) { return cfg, nil },
		build: func(ctx context.Context, cfg *config.Config) (*bootstrap.Pipeline, error) {
			return bootstrap.Build(ctx, cfg, bootstrap.Options{
				Logger:               logger.NewTestLogger(t),
				DisableNotifications: true,
				Documents:            contentstore.NewMemory("https://docs.example.com"),
			})
		},
	}
	t.Cleanup(a.close)
	return a, out
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const seedJSON = `{
  "organizations": [
    {"account": "lab", "name": "Central Lab", "phone": "03-0000", "email": "lab@example.com",
     "sampleType": "saliva", "collectionMethod": "self", "testMethod": "PCR"}
  ],
  "requests": [
    {"subjectAccount": "alice", "issuerAccount": "lab", "sampleId": "S-1", "collectionDate": "2024/03/01",
     "subject": {"firstName": "Alice", "lastName": "Doe", "email": "alice@example.com"}}
  ]
}`

func TestTokenRoundTrip(t *testing.T) {
	a, out := newTestAdmin(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "encode-token", []string{"-id", "42", "-timestamp", "1700000000000"}))
	text := strings.TrimSpace(out.String())
	require.NotEmpty(t, text)
	assert.Nil(t, a.pipeline, "token commands do not open the ledger")

	out.Reset()
	require.NoError(t, a.run(ctx, "decode-token", []string{"-token", text}))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.EqualValues(t, 42, decoded["id"])
	assert.EqualValues(t, 1700000000000, decoded["timestamp"])

	assert.Error(t, a.run(ctx, "decode-token", []string{"-token", "not-a-token"}))
}

func TestStatus(t *testing.T) {
	a, out := newTestAdmin(t)
	require.NoError(t, a.run(context.Background(), "status", []string{
		"-issued", "2024-03-01T00:00:00Z",
		"-now", "2024-03-05T00:00:00Z",
	}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "success", got["tier"])
	assert.Equal(t, "96h0m0s", got["elapsed"])

	assert.Error(t, a.run(context.Background(), "status", []string{"-issued", "yesterday"}))
}

func TestSeedExportImportVerify(t *testing.T) {
	a, out := newTestAdmin(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "seed", []string{"-file", writeFile(t, "seed.json", seedJSON)}))
	var seeded struct {
		RequestIDs []uint64 `json:"requestIds"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &seeded))
	require.Len(t, seeded.RequestIDs, 1)

	sheetPath := filepath.Join(t.TempDir(), "pending.csv")
	out.Reset()
	require.NoError(t, a.run(ctx, "export", []string{"-issuer", "lab", "-out", sheetPath}))
	assert.Contains(t, out.String(), "Exported 1 pending requests")

	f, err := os.Open(sheetPath)
	require.NoError(t, err)
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "saliva", records[1][batch.ColSample])

	records[1][batch.ColResult] = "negative"
	records[1][batch.ColResultDate] = "2024/03/02"
	var sheet bytes.Buffer
	require.NoError(t, csv.NewWriter(&sheet).WriteAll(records))

	out.Reset()
	require.NoError(t, a.run(ctx, "import", []string{"-issuer", "lab", "-file", writeFile(t, "results.csv", sheet.String())}))
	var result batch.BatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 1, result.TotalRowsSeen)
	assert.Equal(t, 1, result.Succeeded)

	out.Reset()
	require.NoError(t, a.run(ctx, "export", []string{"-issuer", "lab"}))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "only the header remains")

	text, err := a.pipeline.Verifier.TokenFor(ctx, seeded.RequestIDs[0])
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, a.run(ctx, "verify", []string{"-token", text}))
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, "info", v["tier"])
	assert.Equal(t, "Central Lab", v["organizationName"])
}

func TestCatalog(t *testing.T) {
	a, out := newTestAdmin(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "catalog", []string{"-check", "../../../configs/activity-registry.json"}))
	assert.Contains(t, out.String(), "Found 4 activities")

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, a.run(ctx, "catalog", []string{"-out", path}))
	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	issue, ok := reg.Find("issue-certificate")
	require.True(t, ok)
	assert.Equal(t, "1m0s", issue.Timeout)
	assert.Contains(t, issue.InputSchema["required"], "requestId")

	stale := &registry.ActivityRegistry{Activities: []registry.Activity{
		{ID: "retired", DisplayName: "Retired", TaskType: "retired-task", Category: "issuance"},
	}}
	stalePath := filepath.Join(t.TempDir(), "stale.json")
	require.NoError(t, registry.SaveRegistry(stale, stalePath))
	err = a.run(ctx, "catalog", []string{"-check", stalePath})
	assert.ErrorContains(t, err, "catalog out of date")
}

func TestRun_UsageErrors(t *testing.T) {
	a, _ := newTestAdmin(t)
	ctx := context.Background()

	assert.Error(t, a.run(ctx, "import", []string{"-issuer", "lab"}))
	assert.Error(t, a.run(ctx, "encode-token", nil))
	assert.Error(t, a.run(ctx, "bogus", nil))
}
