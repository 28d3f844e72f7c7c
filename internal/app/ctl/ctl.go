// Package ctl implements paystubctl, the operator CLI. It keeps YTD
// snapshots and issued verification records in a local SQLite ledger.
package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"

	"paystub/internal/app/server"
	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/paystub"
	"paystub/internal/domain/render"
	"paystub/internal/domain/theme"
	"paystub/internal/platform/config"
	"paystub/internal/platform/ledger"
)

// VerificationFailed is the exit code for a document that does not verify.
const VerificationFailed = 2

type runtime struct {
	cfg config.Config
}

// NewApp builds the command tree. Output goes to out; exit handling is left
// to the caller.
func NewApp(out io.Writer) *cli.App {
	rt := &runtime{}
	ledgerFlag := &cli.StringFlag{Name: "ledger", Usage: "SQLite ledger file (default $LEDGER_PATH)"}
	return &cli.App{
		Name:           "paystubctl",
		Usage:          "generate, seal, render and verify pay statements",
		Writer:         out,
		ErrWriter:      out,
		ExitErrHandler: func(*cli.Context, error) {},
		Before: func(c *cli.Context) error {
			rt.cfg = config.Load()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "compute pay records from a CSV of pay periods, advancing YTD in the ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "periods CSV", Required: true},
					ledgerFlag,
				},
				Action: rt.generate,
			},
			{
				Name:  "render",
				Usage: "seal a pay record and render it under one theme",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "record", Usage: "pay record JSON", Required: true},
					&cli.StringFlag{Name: "theme", Usage: "theme key", Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output PDF", Required: true},
					ledgerFlag,
				},
				Action: rt.render,
			},
			{
				Name:  "render-all",
				Usage: "seal a pay record once and render it under many themes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "record", Usage: "pay record JSON", Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory", Required: true},
					&cli.StringSliceFlag{Name: "theme", Usage: "theme keys (default: all)"},
					ledgerFlag,
				},
				Action: rt.renderAll,
			},
			{
				Name:      "inspect",
				Usage:     "print the verification stamp embedded in a document",
				ArgsUsage: "file.pdf",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner-password", Usage: "owner password of a protected document", EnvVars: []string{"DOCUMENT_OWNER_PASSWORD"}},
				},
				Action: rt.inspect,
			},
			{
				Name:  "verify",
				Usage: "check a pay record against the stamp in a document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "record", Usage: "pay record JSON", Required: true},
					&cli.StringFlag{Name: "stamp", Usage: "document carrying the stamp", Required: true},
					&cli.StringFlag{Name: "owner-password", Usage: "owner password of a protected document", EnvVars: []string{"DOCUMENT_OWNER_PASSWORD"}},
				},
				Action: rt.verify,
			},
			{
				Name:      "lookup",
				Usage:     "show the ledger entry for a verification ID",
				ArgsUsage: "verification-id",
				Flags:     []cli.Flag{ledgerFlag},
				Action:    rt.lookup,
			},
			{
				Name:  "export",
				Usage: "write the verification register as CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output CSV (default stdout)"},
					ledgerFlag,
				},
				Action: rt.export,
			},
			{
				Name:   "themes",
				Usage:  "list the theme catalogue",
				Action: rt.themes,
			},
		},
	}
}

func (rt *runtime) openLedger(c *cli.Context) (*ledger.Ledger, error) {
	path := c.String("ledger")
	if path == "" {
		path = rt.cfg.LedgerPath
	}
	l, err := ledger.Open(c.Context, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return l, nil
}

// pipeline builds the sealing service on top of an optional ledger.
func (rt *runtime) pipeline(l integrity.Ledger) (*paystub.Service, func(), error) {
	if err := rt.cfg.ValidateSealing(); err != nil {
		return nil, nil, err
	}
	svc, pool, err := server.NewPaystubs(rt.cfg, l, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() { _ = pool.Close() }, nil
}

func (rt *runtime) generate(c *cli.Context) error {
	f, err := os.Open(c.String("input"))
	if err != nil {
		return err
	}
	defer f.Close()
	var rows []*PeriodRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return fmt.Errorf("read periods: %w", err)
	}

	l, err := rt.openLedger(c)
	if err != nil {
		return err
	}
	defer l.Close()
	svc, closePool, err := rt.pipeline(nil)
	if err != nil {
		return err
	}
	defer closePool()

	records := make([]payroll.PayRecord, 0, len(rows))
	for i, row := range rows {
		in, err := row.Input()
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		record, err := generateOne(c.Context, svc, l, in)
		if err != nil {
			return fmt.Errorf("row %d (%s): %w", i+1, in.Employee.ID, err)
		}
		records = append(records, record)
	}
	return writeJSON(c.App.Writer, records)
}

func generateOne(ctx context.Context, svc *paystub.Service, l *ledger.Ledger, in payroll.PayPeriodInput) (payroll.PayRecord, error) {
	prior, err := l.Latest(ctx, strings.TrimSpace(in.Employee.ID), in.PayDate.Year())
	if err != nil {
		return payroll.PayRecord{}, err
	}
	record, next, err := svc.GeneratePayRecord(in, prior)
	if err != nil {
		return payroll.PayRecord{}, err
	}
	if err := l.Save(ctx, next); err != nil {
		return payroll.PayRecord{}, err
	}
	return record, nil
}

func (rt *runtime) render(c *cli.Context) error {
	record, err := readRecord(c.String("record"))
	if err != nil {
		return err
	}
	l, err := rt.openLedger(c)
	if err != nil {
		return err
	}
	defer l.Close()
	svc, closePool, err := rt.pipeline(l)
	if err != nil {
		return err
	}
	defer closePool()

	sealed, err := svc.SealAndRender(c.Context, record, c.String("theme"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), sealed.Document, 0o644); err != nil {
		return err
	}
	return writeJSON(c.App.Writer, sealed)
}

type batchSummary struct {
	Verification integrity.Record  `json:"verification"`
	Written      []string          `json:"written"`
	Failed       map[string]string `json:"failed,omitempty"`
}

func (rt *runtime) renderAll(c *cli.Context) error {
	record, err := readRecord(c.String("record"))
	if err != nil {
		return err
	}
	dir := c.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	l, err := rt.openLedger(c)
	if err != nil {
		return err
	}
	defer l.Close()
	svc, closePool, err := rt.pipeline(l)
	if err != nil {
		return err
	}
	defer closePool()

	batch, err := svc.SealAndRenderAll(c.Context, record, c.StringSlice("theme"))
	if err != nil {
		return err
	}
	summary := batchSummary{Verification: batch.Verification}
	for _, res := range batch.Results {
		if !res.OK() {
			if summary.Failed == nil {
				summary.Failed = map[string]string{}
			}
			summary.Failed[res.Theme] = res.Err.Error()
			continue
		}
		path := filepath.Join(dir, res.Theme+".pdf")
		if err := os.WriteFile(path, res.Document, 0o644); err != nil {
			return err
		}
		summary.Written = append(summary.Written, path)
	}
	if err := writeJSON(c.App.Writer, summary); err != nil {
		return err
	}
	if n := batch.Failed(); n > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d themes failed", n, len(batch.Results)), 1)
	}
	return nil
}

func (rt *runtime) inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("inspect needs exactly one document", 1)
	}
	doc, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	stamp, err := render.Inspect(doc, c.String("owner-password"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, stamp)
}

func (rt *runtime) verify(c *cli.Context) error {
	record, err := readRecord(c.String("record"))
	if err != nil {
		return err
	}
	doc, err := os.ReadFile(c.String("stamp"))
	if err != nil {
		return err
	}
	svc, closePool, err := rt.pipeline(nil)
	if err != nil {
		return err
	}
	defer closePool()

	verdict, stamp, err := svc.VerifyDocument(record, doc, c.String("owner-password"))
	if err != nil {
		return err
	}
	if err := writeJSON(c.App.Writer, map[string]any{"verdict": verdict, "stamp": stamp}); err != nil {
		return err
	}
	if !verdict.Valid {
		return cli.Exit("verification failed", VerificationFailed)
	}
	return nil
}

func (rt *runtime) lookup(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("lookup needs exactly one verification ID", 1)
	}
	l, err := rt.openLedger(c)
	if err != nil {
		return err
	}
	defer l.Close()
	svc, closePool, err := rt.pipeline(l)
	if err != nil {
		return err
	}
	defer closePool()

	entry, err := svc.Lookup(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, entry)
}

func (rt *runtime) export(c *cli.Context) error {
	l, err := rt.openLedger(c)
	if err != nil {
		return err
	}
	defer l.Close()
	entries, err := l.List(c.Context, 0, 0)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return gocsv.Marshal(entries, out)
}

func (rt *runtime) themes(c *cli.Context) error {
	for _, def := range theme.All() {
		s := def.Swatch()
		if _, err := fmt.Fprintf(c.App.Writer, "%-16s %-20s %s %s %s\n", s.Key, s.Name, s.Primary, s.Secondary, s.Accent); err != nil {
			return err
		}
	}
	return nil
}

func readRecord(path string) (payroll.PayRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return payroll.PayRecord{}, err
	}
	var record payroll.PayRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return payroll.PayRecord{}, fmt.Errorf("decode pay record %s: %w", path, err)
	}
	return record, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
