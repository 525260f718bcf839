// Reserving return scoping and actuarial analysis engine.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wakala/reserving/internal/config"
	"github.com/wakala/reserving/internal/domain"
	"github.com/wakala/reserving/internal/generator"
	"github.com/wakala/reserving/internal/ingestion"
	"github.com/wakala/reserving/internal/pipeline"
	"github.com/wakala/reserving/internal/repository"
	"github.com/wakala/reserving/internal/scope"
	"github.com/wakala/reserving/internal/validation"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reserving",
	Short: "Reserving return scoping and actuarial analysis engine",
	Long: `Resolves the scope of annual (RRA) and quarterly (RRQ) reserving returns,
generates synthetic datasets for them, builds claims development triangles and
chain-ladder factors, analyses IBNR ranges and validates the result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = config.NewLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/reserving.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scopeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reserving %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Scope Command ---

type scopeReport struct {
	Scope            domain.ScopeDescriptor `json:"scope" yaml:"scope"`
	ReportingQuarter string                 `json:"reporting_quarter" yaml:"reporting_quarter"`
	AsOfDate         string                 `json:"as_of_date" yaml:"as_of_date"`
}

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Resolve the years of account and forms of a return",
	Example: `  reserving scope --return-type RRQ --year 2024 --quarter Q4
  reserving scope --return-type annual --year 2024 --output yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return printOutput(cmd.OutOrStdout(), output, scopeReport{
			Scope:            sc,
			ReportingQuarter: sc.ReportingQuarter(),
			AsOfDate:         sc.AsOfDateString(),
		})
	},
}

func init() {
	addScopeFlags(scopeCmd)
	scopeCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")
}

// --- Run Command ---

type runReport struct {
	Run      domain.Run                 `json:"run" yaml:"run"`
	Summary  validation.Summary         `json:"summary" yaml:"summary"`
	Findings []domain.ValidationFinding `json:"findings" yaml:"findings"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate, analyse and validate a dataset for a return",
	Example: `  reserving run --return-type RRQ --year 2024 --quarter Q2 --seed 7
  reserving run --return-type RRA --year 2024 --persist`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		seed := cfg.Generation.Seed
		if cmd.Flags().Changed("seed") {
			seed, _ = cmd.Flags().GetInt64("seed")
		}
		persist, _ := cmd.Flags().GetBool("persist")

		svc, closeFn, err := newPipeline(persist)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := svc.Run(cmd.Context(), pipeline.Request{
			ReturnType: sc.ReturnType,
			Year:       sc.Year,
			Quarter:    sc.Quarter,
			Seed:       seed,
		})
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if err := printOutput(cmd.OutOrStdout(), output, runReport{
			Run:      res.Run,
			Summary:  res.Summary,
			Findings: res.Findings,
		}); err != nil {
			return err
		}
		return checkStrict(cmd, res.Run.Passed, res.Run.FailCount, res.Run.ErrorCount)
	},
}

func init() {
	addScopeFlags(runCmd)
	runCmd.Flags().Int64("seed", 0, "generator seed (default: generation.seed from config)")
	runCmd.Flags().Bool("persist", false, "store the run in the database")
	runCmd.Flags().Bool("strict", false, "exit non-zero when any rule fails or errors")
	runCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")
}

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Analyse and validate a dataset file",
	Long: `Analyse and validate a JSON dataset bundle or a claims development CSV.

The format is inferred from the file extension unless --format is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		format, _ := cmd.Flags().GetString("format")
		persist, _ := cmd.Flags().GetBool("persist")

		svc, closeFn, err := newIngestion(persist)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := svc.Ingest(cmd.Context(), data, path, format)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if err := printOutput(cmd.OutOrStdout(), output, res); err != nil {
			return err
		}
		if res.AlreadyIngested {
			return nil
		}
		return checkStrict(cmd, res.Passed, res.FailCount, res.ErrorCount)
	},
}

func init() {
	validateCmd.Flags().String("format", "", "file format (json, csv)")
	validateCmd.Flags().Bool("persist", false, "store the run and remember the file in the database")
	validateCmd.Flags().Bool("strict", false, "exit non-zero when any rule fails or errors")
	validateCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")
}

// --- helpers ---

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("return-type", "RRQ", "return type (RRA/annual, RRQ/quarterly)")
	cmd.Flags().Int("year", 0, "reporting year")
	cmd.Flags().String("quarter", "", "reporting quarter for quarterly returns (Q1-Q4)")
	_ = cmd.MarkFlagRequired("year")
}

func scopeFromFlags(cmd *cobra.Command) (domain.ScopeDescriptor, error) {
	rtFlag, _ := cmd.Flags().GetString("return-type")
	year, _ := cmd.Flags().GetInt("year")
	qFlag, _ := cmd.Flags().GetString("quarter")

	rt, err := scope.ParseReturnType(rtFlag)
	if err != nil {
		return domain.ScopeDescriptor{}, err
	}
	q, err := scope.ParseQuarter(qFlag)
	if err != nil {
		return domain.ScopeDescriptor{}, err
	}
	return scope.Resolve(rt, year, q)
}

func printOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func checkStrict(cmd *cobra.Command, passed bool, fails, errs int) error {
	strict, _ := cmd.Flags().GetBool("strict")
	if strict && !passed {
		return fmt.Errorf("validation failed: %d rule(s) failed, %d errored", fails, errs)
	}
	return nil
}

// newPipeline builds the pipeline service. With persist the runs are stored
// in the configured database; closeFn releases it.
func newPipeline(persist bool) (*pipeline.Service, func(), error) {
	svc, _, closeFn, err := buildServices(persist)
	return svc, closeFn, err
}

func newIngestion(persist bool) (*ingestion.Service, func(), error) {
	svc, files, closeFn, err := buildServices(persist)
	if err != nil {
		return nil, nil, err
	}
	var store ingestion.FileStore
	if files != nil {
		store = files
	}
	return ingestion.NewService(svc, store, logger), closeFn, nil
}

func buildServices(persist bool) (*pipeline.Service, *repository.IngestionRepo, func(), error) {
	gen, err := generator.New(cfg.Generation.Generator(), logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generator: %w", err)
	}
	engine, err := validation.NewEngine(validation.DefaultRules(),
		validation.WithConcurrency(cfg.Generation.Workers), validation.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("validation engine: %w", err)
	}

	if !persist {
		return pipeline.NewService(gen, engine, nil, logger), nil, func() {}, nil
	}

	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := pipeline.NewService(gen, engine, repository.NewRunRepo(db), logger)
	return svc, repository.NewIngestionRepo(db), func() { db.Close() }, nil
}
