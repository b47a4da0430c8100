// cmd/tools/cert-admin/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"certificate-workers/internal/batch"
	"certificate-workers/internal/bootstrap"
	"certificate-workers/internal/certificate/expiry"
	"certificate-workers/internal/certificate/token"
	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/models"
	"certificate-workers/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &admin{out: os.Stdout, loadConfig: loadConfig, build: buildPipeline}
	defer a.close()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

// admin runs one subcommand. The pipeline is built lazily so token and
// status commands work without a ledger or document store.
type admin struct {
	out        io.Writer
	loadConfig func(path string) (*config.Config, error)
	build      func(ctx context.Context, cfg *config.Config) (*bootstrap.Pipeline, error)

	cfg      *config.Config
	pipeline *bootstrap.Pipeline
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*bootstrap.Pipeline, error) {
	zapLog := logger.New(cfg.Logging.Level, "console")
	return bootstrap.Build(ctx, cfg, bootstrap.Options{
		Logger:               logger.NewZapAdapter(zapLog),
		Retries:              3,
		DisableNotifications: true,
	})
}

func (a *admin) settings(path string) (*config.Config, error) {
	if a.cfg == nil {
		cfg, err := a.loadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	return a.cfg, nil
}

func (a *admin) open(ctx context.Context, path string) (*bootstrap.Pipeline, error) {
	if a.pipeline != nil {
		return a.pipeline, nil
	}
	cfg, err := a.settings(path)
	if err != nil {
		return nil, err
	}
	p, err := a.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return p, nil
}

func (a *admin) codec(path string) (*token.Codec, error) {
	if a.pipeline != nil {
		return a.pipeline.Codec, nil
	}
	cfg, err := a.settings(path)
	if err != nil {
		return nil, err
	}
	return token.NewCodec([]byte(cfg.Token.Secret))
}

func (a *admin) close() {
	if a.pipeline != nil {
		_ = a.pipeline.Close()
		a.pipeline = nil
	}
}

func (a *admin) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "import":
		cmd := flag.NewFlagSet("import", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file (default: configs/config.yaml)")
		issuer := cmd.String("issuer", "", "Issuer account the sheet belongs to (required)")
		file := cmd.String("file", "", "Result sheet CSV (required)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *issuer == "" || *file == "" {
			cmd.Usage()
			return fmt.Errorf("-issuer and -file are required")
		}
		return a.importSheet(ctx, *cfgPath, *issuer, *file)

	case "export":
		cmd := flag.NewFlagSet("export", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		issuer := cmd.String("issuer", "", "Issuer account (required)")
		outPath := cmd.String("out", "", "Output CSV file (default: stdout)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *issuer == "" {
			cmd.Usage()
			return fmt.Errorf("-issuer is required")
		}
		return a.exportPending(ctx, *cfgPath, *issuer, *outPath)

	case "seed":
		cmd := flag.NewFlagSet("seed", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		file := cmd.String("file", "", "JSON file with organizations and requests (required)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			cmd.Usage()
			return fmt.Errorf("-file is required")
		}
		return a.seed(ctx, *cfgPath, *file)

	case "encode-token":
		cmd := flag.NewFlagSet("encode-token", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		id := cmd.Uint64("id", 0, "Certificate ID (required)")
		timestamp := cmd.Int64("timestamp", 0, "Creation time in epoch milliseconds (default: now)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			cmd.Usage()
			return fmt.Errorf("-id is required")
		}
		return a.encodeToken(*cfgPath, *id, *timestamp)

	case "decode-token":
		cmd := flag.NewFlagSet("decode-token", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		text := cmd.String("token", "", "Token text (required)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *text == "" {
			cmd.Usage()
			return fmt.Errorf("-token is required")
		}
		return a.decodeToken(*cfgPath, *text)

	case "verify":
		cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		text := cmd.String("token", "", "Token text (required)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *text == "" {
			cmd.Usage()
			return fmt.Errorf("-token is required")
		}
		return a.verify(ctx, *cfgPath, *text)

	case "status":
		cmd := flag.NewFlagSet("status", flag.ContinueOnError)
		issued := cmd.String("issued", "", "Issue time, unix seconds or RFC3339 (required)")
		now := cmd.String("now", "", "Evaluation time, unix seconds or RFC3339 (default: now)")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		if *issued == "" {
			cmd.Usage()
			return fmt.Errorf("-issued is required")
		}
		return a.status(*issued, *now)

	case "catalog":
		cmd := flag.NewFlagSet("catalog", flag.ContinueOnError)
		cfgPath := cmd.String("config", "", "Path to config file")
		outPath := cmd.String("out", "", "Write the catalog to this file (default: stdout)")
		check := cmd.String("check", "", "Compare an existing catalog file against the served task types")
		if err := cmd.Parse(args); err != nil {
			return err
		}
		return a.catalog(*cfgPath, *outPath, *check)

	case "help":
		help()
		return nil

	default:
		help()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *admin) importSheet(ctx context.Context, cfgPath, issuer, file string) error {
	p, err := a.open(ctx, cfgPath)
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open sheet: %w", err)
	}
	defer f.Close()

	result, err := p.Orchestrator.Import(ctx, issuer, f)
	if result != nil {
		if encErr := a.printJSON(result); encErr != nil {
			return encErr
		}
	}
	return err
}

func (a *admin) exportPending(ctx context.Context, cfgPath, issuer, outPath string) error {
	p, err := a.open(ctx, cfgPath)
	if err != nil {
		return err
	}
	w := a.out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}
	n, err := batch.ExportPending(ctx, p.Ledger, issuer, w)
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(a.out, "Exported %d pending requests to %s\n", n, outPath)
	}
	return nil
}

// seedFile is the layout read by the seed command.
type seedFile struct {
	Organizations []models.Organization `json:"organizations"`
	Requests      []models.TestRequest  `json:"requests"`
}

func (a *admin) seed(ctx context.Context, cfgPath, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var s seedFile
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	p, err := a.open(ctx, cfgPath)
	if err != nil {
		return err
	}
	for _, org := range s.Organizations {
		if err := p.Ledger.RegisterOrganization(ctx, org); err != nil {
			return fmt.Errorf("register organization %s: %w", org.Account, err)
		}
	}
	ids := make([]uint64, 0, len(s.Requests))
	for _, req := range s.Requests {
		id, err := p.Ledger.CreateTestRequest(ctx, req)
		if err != nil {
			return fmt.Errorf("create request for %s: %w", req.SubjectAccount, err)
		}
		ids = append(ids, id)
	}
	return a.printJSON(map[string]interface{}{
		"organizations": len(s.Organizations),
		"requestIds":    ids,
	})
}

func (a *admin) encodeToken(cfgPath string, id uint64, timestamp int64) error {
	codec, err := a.codec(cfgPath)
	if err != nil {
		return err
	}
	var text string
	if timestamp == 0 {
		text, err = codec.Issue(id)
	} else {
		text, err = codec.Encode(token.Payload{CertificateID: id, Timestamp: timestamp})
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, text)
	return nil
}

func (a *admin) decodeToken(cfgPath, text string) error {
	codec, err := a.codec(cfgPath)
	if err != nil {
		return err
	}
	p, err := codec.Decode(text)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]interface{}{
		"id":        p.CertificateID,
		"timestamp": p.Timestamp,
		"createdAt": time.UnixMilli(p.Timestamp).UTC().Format(time.RFC3339),
	})
}

func (a *admin) verify(ctx context.Context, cfgPath, text string) error {
	p, err := a.open(ctx, cfgPath)
	if err != nil {
		return err
	}
	v, err := p.Verifier.Verify(ctx, text)
	if err != nil {
		return err
	}
	return a.printJSON(v)
}

func (a *admin) status(issuedRaw, nowRaw string) error {
	issued, err := parseTime(issuedRaw)
	if err != nil {
		return fmt.Errorf("invalid -issued: %w", err)
	}
	now := time.Now()
	if nowRaw != "" {
		if now, err = parseTime(nowRaw); err != nil {
			return fmt.Errorf("invalid -now: %w", err)
		}
	}
	tier := expiry.Status(issued, now)
	return a.printJSON(map[string]interface{}{
		"issuedAt": issued.UTC().Format(time.RFC3339),
		"elapsed":  now.Sub(issued).Round(time.Second).String(),
		"tier":     tier,
	})
}

// parseTime accepts unix seconds or an RFC3339 timestamp.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (a *admin) catalog(cfgPath, outPath, check string) error {
	cfg, err := a.settings(cfgPath)
	if err != nil {
		return err
	}
	reg, err := buildCatalog(cfg)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	if check != "" {
		existing, err := registry.LoadRegistry(check)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := existing.Validate(); err != nil {
			return fmt.Errorf("registry validation failed: %w", err)
		}
		missing, stale := registry.Diff(reg, existing)
		if len(missing) > 0 || len(stale) > 0 {
			return fmt.Errorf("catalog out of date: missing %v, not served %v", missing, stale)
		}
		fmt.Fprintf(a.out, "Registry validation passed. Found %d activities.\n", len(existing.Activities))
		return nil
	}

	if outPath != "" {
		if err := registry.SaveRegistry(reg, outPath); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote %d activities to %s\n", len(reg.Activities), outPath)
		return nil
	}
	return a.printJSON(reg)
}

func (a *admin) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func help() {
	fmt.Print(`
Usage: cert-admin <command> [flags]

Commands:
  import        Import a result sheet and certify every eligible row
  export        Export an issuer's pending requests as a result sheet
  seed          Register organizations and test requests from a JSON file
  encode-token  Encode a verification token for a certificate
  decode-token  Decode a verification token
  verify        Resolve a token to its certificate, document link and tier
  status        Show the freshness tier for an issue time
  catalog       Print, write or check the activity catalog of served job types
  help          Show this help message

Examples:
  cert-admin export -issuer lab-01 -out pending.csv
  cert-admin import -issuer lab-01 -file results.csv
  cert-admin encode-token -id 42
  cert-admin decode-token -token <text>
  cert-admin status -issued 2024-03-01T09:00:00Z
  cert-admin catalog -check configs/activity-registry.json

Use 'cert-admin <command> -h' for more information about a command.
`)
}
