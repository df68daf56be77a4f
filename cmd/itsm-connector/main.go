// Command itsm-connector reads and writes ITSM records of a ServiceNow
// instance from the command line. Fetched documents and records are written
// to stdout as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"

	"github.com/nucleus/itsm-core/internal/config"
	"github.com/nucleus/itsm-core/internal/connector/servicenow"
	"github.com/nucleus/itsm-core/internal/core/cdm"
	"github.com/nucleus/itsm-core/internal/pipeline"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if _, err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var cfg config.Config
	rootFlags := flag.NewFlagSet("itsm-connector", flag.ContinueOnError)
	cfg.RegisterFlags(rootFlags)
	config.RegisterConfigFileFlag(rootFlags)

	app := &app{cfg: &cfg, out: out}
	root := &ffcli.Command{
		Name:       "itsm-connector",
		ShortUsage: "itsm-connector [flags] <subcommand> [subcommand flags]",
		ShortHelp:  "ServiceNow ITSM connector " + Version,
		FlagSet:    rootFlags,
		Options:    config.ParseOptions(),
		Subcommands: []*ffcli.Command{
			app.fetchCommand(),
			app.getCommand(),
			app.writeCommand("create"),
			app.writeCommand("update"),
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}
	return root.ParseAndRun(ctx, args)
}

// app holds what every subcommand shares.
type app struct {
	cfg    *config.Config
	out    io.Writer
	logger *zap.Logger
}

func (a *app) adapter() (*servicenow.Adapter, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := a.cfg.Logger()
	if err != nil {
		return nil, err
	}
	a.logger = logger
	opts, err := a.cfg.AdapterOptions(logger)
	if err != nil {
		return nil, err
	}
	return servicenow.New(a.cfg.ServiceNow(), opts...)
}

func (a *app) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", data)
	return err
}

// =============================================================================
// FETCH
// =============================================================================

func (a *app) fetchCommand() *ffcli.Command {
	fs := flag.NewFlagSet("itsm-connector fetch", flag.ContinueOnError)
	contentType := fs.String("type", "Incident", "Content type to fetch")
	var filters filterList
	fs.Var(&filters, "filter", "Filter as field:op:value (op: eq, neq, like, gt, gte, lt, lte); repeatable")
	var sorts sortList
	fs.Var(&sorts, "sort", "Sort field, prefix with - for descending; repeatable")
	since := fs.String("since", "", "Lower bound of the last update time (RFC 3339)")
	until := fs.String("until", "", "Upper bound of the last update time (RFC 3339)")
	limit := fs.Int("limit", 0, "Maximum number of pages, 0 for all")
	raw := fs.Bool("raw", false, "Emit enriched table documents instead of canonical records")

	return &ffcli.Command{
		Name:       "fetch",
		ShortUsage: "itsm-connector fetch -type Incident [-filter state:eq:1] [-since 2024-01-01T00:00:00Z]",
		ShortHelp:  "Stream records of a content type",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			adapter, err := a.adapter()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			req := &pipeline.FetchRequest{Filters: filters, Sorts: sorts, Limit: *limit, Tenant: a.cfg.Tenant}
			if req.Start, err = parseTime(*since); err != nil {
				return fmt.Errorf("since: %w", err)
			}
			if req.End, err = parseTime(*until); err != nil {
				return fmt.Errorf("until: %w", err)
			}

			var status *pipeline.FinalStatus
			if *raw {
				status = adapter.FetchEntities(ctx, *contentType, req, pipeline.SinkFunc(func(_ context.Context, p *pipeline.EnrichedPage) error {
					for _, doc := range p.Documents {
						if err := a.emit(doc); err != nil {
							return err
						}
					}
					return nil
				}))
			} else {
				status = adapter.FetchRecords(ctx, *contentType, req, servicenow.RecordSinkFunc(func(_ context.Context, p *servicenow.RecordPage) error {
					for _, rec := range p.Records {
						for _, d := range rec.Diagnostics {
							a.logger.Warn("conversion", zap.String("record", rec.ID), zap.String("field", d.FieldPath), zap.String("message", d.Message))
						}
						if err := a.emit(map[string]any{"id": rec.ID, "record": rec.Data}); err != nil {
							return err
						}
					}
					return nil
				}))
			}

			a.logger.Info("fetch finished",
				zap.String("operation_id", status.OperationID),
				zap.String("state", string(status.State)),
				zap.Int("pages", status.Pages),
				zap.Int("records", status.Records),
				zap.Int("join_failures", len(status.JoinFailures)),
				zap.Int("diagnostics", len(status.Diagnostics)))
			if err := status.Diagnostics.Err(); err != nil {
				a.logger.Warn("records converted with problems", zap.Error(err))
			}
			if !status.Succeeded() {
				return status.Err
			}
			return nil
		},
	}
}

// =============================================================================
// GET / CREATE / UPDATE
// =============================================================================

func (a *app) getCommand() *ffcli.Command {
	fs := flag.NewFlagSet("itsm-connector get", flag.ContinueOnError)
	contentType := fs.String("type", "Incident", "Content type of the record")
	id := fs.String("id", "", "sys_id of the record")

	return &ffcli.Command{
		Name:       "get",
		ShortUsage: "itsm-connector get -type Incident -id <sys_id>",
		ShortHelp:  "Read one record",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			if *id == "" {
				return errors.New("-id is required")
			}
			adapter, err := a.adapter()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			rec, err := adapter.FetchEntry(ctx, *contentType, *id)
			if err != nil {
				return err
			}
			return a.emit(map[string]any{"id": rec.ID, "record": rec.Data})
		},
	}
}

func (a *app) writeCommand(op string) *ffcli.Command {
	fs := flag.NewFlagSet("itsm-connector "+op, flag.ContinueOnError)
	contentType := fs.String("type", "Incident", "Content type of the record")
	file := fs.String("file", "-", "Canonical record as JSON, - for stdin")

	return &ffcli.Command{
		Name:       op,
		ShortUsage: "itsm-connector " + op + " -type Incident -file record.json",
		ShortHelp:  strings.ToUpper(op[:1]) + op[1:] + " a record from its canonical JSON form",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			rec, err := readRecord(*file)
			if err != nil {
				return err
			}
			adapter, err := a.adapter()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			var res *servicenow.WriteResult
			if op == "create" {
				res, err = adapter.CreateEntry(ctx, *contentType, rec)
			} else {
				res, err = adapter.UpdateEntry(ctx, *contentType, rec)
			}
			if err != nil {
				return err
			}
			for _, d := range res.Diagnostics {
				a.logger.Warn("conversion", zap.String("field", d.FieldPath), zap.String("message", d.Message))
			}
			return a.emit(map[string]any{"externalId": res.ExternalID, "id": res.ID, "record": res.Data})
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func readRecord(path string) (*cdm.Record, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	rec := cdm.NewRecord()
	if err := rec.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// filterList collects -filter flags.
type filterList []pipeline.Filter

func (l *filterList) String() string {
	parts := make([]string, len(*l))
	for i, f := range *l {
		parts[i] = f.Field + ":" + string(f.Operator) + ":" + f.Value
	}
	return strings.Join(parts, ",")
}

// Set parses field:op:value. A value without colons is passed through as a
// raw encoded query clause.
func (l *filterList) Set(s string) error {
	field, rest, ok := strings.Cut(s, ":")
	if !ok {
		*l = append(*l, pipeline.Filter{Field: s})
		return nil
	}
	op, value, ok := strings.Cut(rest, ":")
	if !ok {
		return fmt.Errorf("filter %q: want field:op:value", s)
	}
	switch o := pipeline.Operator(op); o {
	case pipeline.OpEq, pipeline.OpNeq, pipeline.OpLike, pipeline.OpGt, pipeline.OpGte, pipeline.OpLt, pipeline.OpLte:
		*l = append(*l, pipeline.Filter{Field: field, Operator: o, Value: value})
		return nil
	}
	return fmt.Errorf("filter %q: unknown operator %q", s, op)
}

// sortList collects -sort flags.
type sortList []pipeline.Sort

func (l *sortList) String() string {
	parts := make([]string, len(*l))
	for i, s := range *l {
		parts[i] = s.Field
		if s.Direction == pipeline.Desc {
			parts[i] = "-" + s.Field
		}
	}
	return strings.Join(parts, ",")
}

func (l *sortList) Set(s string) error {
	if field, ok := strings.CutPrefix(s, "-"); ok {
		*l = append(*l, pipeline.Sort{Field: field, Direction: pipeline.Desc})
	} else {
		*l = append(*l, pipeline.Sort{Field: s, Direction: pipeline.Asc})
	}
	return nil
}
