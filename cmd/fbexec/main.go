package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	_ "github.com/duckdb/duckdb-go/v2"
	"gopkg.in/yaml.v3"

	"github.com/gandaldf/fbexec"
)

// fileConfig is the YAML configuration accepted by -config.
type fileConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Dialect    string `yaml:"dialect"`
	Rewindable bool   `yaml:"rewindable_result"`
	AutoCommit *bool  `yaml:"autocommit"`
	MaxParams  int    `yaml:"max_params"`
}

// params collects repeated -p name=value flags.
type params map[string]any

func (p params) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (p params) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	p[name] = value
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("fbexec: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fbexec", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML configuration file")
	driver := fs.String("driver", "", "database/sql driver name (default duckdb)")
	dsn := fs.String("dsn", "", "data source name")
	dialect := fs.String("dialect", "", "placeholder dialect (default duckdb)")
	rewindable := fs.Bool("rewindable", false, "buffer the whole result before printing")
	autocommit := fs.Bool("autocommit", true, "commit automatically")
	verbose := fs.Bool("v", false, "log transaction decisions")
	named := params{}
	fs.Var(named, "p", "named bind name=value (repeatable)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: fbexec [flags] QUERY [positional binds...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	fc := fileConfig{Driver: "duckdb", Dialect: fbexec.DuckDB.String()}
	if *configPath != "" {
		if err := loadConfig(*configPath, &fc); err != nil {
			return err
		}
	}

	// Flags given explicitly override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			fc.Driver = *driver
		case "dsn":
			fc.DSN = *dsn
		case "dialect":
			fc.Dialect = *dialect
		case "rewindable":
			fc.Rewindable = *rewindable
		case "autocommit":
			fc.AutoCommit = autocommit
		}
	})

	cfg, err := fc.config()
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	db, err := sql.Open(fc.Driver, fc.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	stmt, err := fbexec.Open(db, cfg).Prepare(fs.Arg(0))
	if err != nil {
		return err
	}

	binds := make([]any, 0, fs.NArg())
	for _, a := range fs.Args()[1:] {
		binds = append(binds, a)
	}
	if len(named) > 0 {
		binds = append(binds, map[string]any(named))
	}

	res, err := stmt.ExecuteContext(ctx, binds...)
	if err != nil {
		stmt.Finish()
		return err
	}
	printErr := printResult(stdout, res)
	return errors.Join(printErr, stmt.Finish())
}

// loadConfig reads a YAML file into fc, keeping fields it does not set.
func loadConfig(path string, fc *fileConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (fc fileConfig) config() (fbexec.Config, error) {
	d, ok := fbexec.ParseDialect(fc.Dialect)
	if !ok {
		return fbexec.Config{}, fmt.Errorf("unknown dialect %q", fc.Dialect)
	}
	cfg := fbexec.Config{
		Dialect:          d,
		RewindableResult: fc.Rewindable,
		AutoCommit:       true,
		MaxParams:        fc.MaxParams,
	}
	if fc.AutoCommit != nil {
		cfg.AutoCommit = *fc.AutoCommit
	}
	return cfg, nil
}

// printResult writes the converted rows as an aligned table and closes the
// cursor.
func printResult(w io.Writer, res *fbexec.Result) error {
	rows, err := res.Rows()
	if err != nil {
		return err
	}
	if res.Schema.Len() == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := make([]string, res.Schema.Len())
	for i, c := range res.Schema.Columns() {
		header[i] = fmt.Sprintf("%s (%s)", c.Name, c.Semantic)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case *big.Rat:
		if x.IsInt() {
			return x.RatString()
		}
		return strings.TrimRight(x.FloatString(9), "0")
	default:
		return fmt.Sprint(v)
	}
}
