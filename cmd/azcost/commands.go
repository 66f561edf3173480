package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"azure-cost/analysis/compare"
	"azure-cost/analysis/coverage"
	"azure-cost/analysis/reservation"
	"azure-cost/analysis/usage"
	"azure-cost/api"
	"azure-cost/db/clickhouse"
	"azure-cost/fetch"
	"azure-cost/report"
)

// =============================================================================
// RESERVATIONS COMMAND
// =============================================================================

func reservationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "reservations",
		Usage: "Analyze reservation utilization from a usage export",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to usage-details JSON export",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output-csv",
				Usage: "Write per-reservation rows to a CSV file",
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Store the analysis run in ClickHouse",
			},
		}, windowFlags()...),
		Action: runReservations,
	}
}

func runReservations(c *cli.Context) error {
	logger := initLogger(c)

	records, err := loadWindowedRecords(c, logger)
	if err != nil {
		return err
	}

	correlation := reservation.Correlate(records)
	reports := reservation.AnalyzeAll(correlation)
	groups := reservation.GroupBySKU(reports)

	report.PrintUtilization(os.Stdout, reports, groups)

	fileCfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine := reservation.NewEngineWithThresholds(
		fileCfg.Policy.ConsolidationThreshold, fileCfg.Policy.UpsizeThreshold)
	policyResult := engine.Evaluate(reports, groups)
	report.PrintPolicy(os.Stdout, policyResult)

	if path := c.String("output-csv"); path != "" {
		if err := report.WriteUtilizationCSV(path, reports); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		logger.Info("utilization CSV written", "path", path)
	}

	if c.Bool("persist") {
		if err := persistAnalysis(c, logger, "reservations", c.String("file"), len(records), reports); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// COVERAGE COMMAND
// =============================================================================

func coverageCommand() *cli.Command {
	return &cli.Command{
		Name:  "coverage",
		Usage: "Compute VM reservation coverage and savings from a usage export",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to usage-details JSON export",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output-csv",
				Usage: "Write per-VM coverage rows to a CSV file",
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Store the analysis run in ClickHouse",
			},
		}, windowFlags()...),
		Action: runCoverage,
	}
}

func runCoverage(c *cli.Context) error {
	logger := initLogger(c)

	records, err := loadWindowedRecords(c, logger)
	if err != nil {
		return err
	}

	correlation := reservation.Correlate(records)
	reservationCost := decimal.Decimal{}
	for _, res := range correlation.Visible {
		reservationCost = reservationCost.Add(res.Cost)
	}

	result := coverage.Compute(records, reservationCost)
	report.PrintCoverage(os.Stdout, result)

	if path := c.String("output-csv"); path != "" {
		if err := report.WriteCoverageCSV(path, result); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		logger.Info("coverage CSV written", "path", path)
	}

	if c.Bool("persist") {
		if err := persistAnalysis(c, logger, "coverage", c.String("file"), len(records), result); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// COMPARISON COMMANDS
// =============================================================================

func compareVMCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare-vm",
		Usage: "Compare VM compute and license costs between two billing periods",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "old",
				Usage:    "Usage export for the old period",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "new",
				Usage:    "Usage export for the new period",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output-csv",
				Usage: "Write the comparison to a CSV file",
			},
		},
		Action: runCompareVM,
	}
}

func runCompareVM(c *cli.Context) error {
	logger := initLogger(c)

	oldRecords, err := usage.LoadFile(c.String("old"))
	if err != nil {
		return err
	}
	newRecords, err := usage.LoadFile(c.String("new"))
	if err != nil {
		return err
	}

	result := compare.CompareVMs(oldRecords, newRecords)
	if result.Summary.TotalVMs == 0 {
		return fmt.Errorf("no VM data found in either file")
	}
	report.PrintVMComparison(os.Stdout, result, c.String("old"), c.String("new"))

	if path := c.String("output-csv"); path != "" {
		if err := report.WriteVMComparisonCSV(path, result); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		logger.Info("VM comparison CSV written", "path", path)
	}
	return nil
}

func compareStorageCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare-storage",
		Usage: "Compare storage capacity and usage between two billing periods",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "old",
				Usage:    "Usage export for the old period",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "new",
				Usage:    "Usage export for the new period",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output-csv",
				Usage: "Write the comparison to a CSV file",
			},
		},
		Action: runCompareStorage,
	}
}

func runCompareStorage(c *cli.Context) error {
	logger := initLogger(c)

	oldRecords, err := usage.LoadFile(c.String("old"))
	if err != nil {
		return err
	}
	newRecords, err := usage.LoadFile(c.String("new"))
	if err != nil {
		return err
	}

	oldPeriod := compare.AnalyzeStorage(oldRecords)
	newPeriod := compare.AnalyzeStorage(newRecords)
	result := compare.CompareStorage(oldPeriod, newPeriod)
	report.PrintStorageComparison(os.Stdout, result)

	if path := c.String("output-csv"); path != "" {
		if err := report.WriteStorageComparisonCSV(path, result); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		logger.Info("storage comparison CSV written", "path", path)
	}
	return nil
}

// =============================================================================
// MONTHLY COMMAND
// =============================================================================

func monthlyCommand() *cli.Command {
	return &cli.Command{
		Name:  "monthly",
		Usage: "Aggregate calculated cost per month and meter category across exports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "Directory of usage-details exports",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "pattern",
				Value: `.*\.json$`,
				Usage: "Regex the export file names must match",
			},
			&cli.StringFlag{
				Name:  "output-csv",
				Usage: "Write the monthly pivot to a CSV file",
			},
		},
		Action: runMonthly,
	}
}

func runMonthly(c *cli.Context) error {
	logger := initLogger(c)

	records, err := usage.LoadDir(c.String("dir"), c.String("pattern"))
	if err != nil {
		return err
	}
	logger.Info("usage exports loaded", "dir", c.String("dir"), "records", len(records))

	table, dropped := compare.AggregateMonthly(records)
	if dropped > 0 {
		logger.Warn("records without resolvable dates excluded", "dropped", dropped)
	}
	report.PrintMonthly(os.Stdout, table)

	if path := c.String("output-csv"); path != "" {
		if err := report.WriteMonthlyCSV(path, table); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		logger.Info("monthly CSV written", "path", path)
	}
	return nil
}

// =============================================================================
// FETCH COMMAND
// =============================================================================

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch usage details from the Azure Consumption API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "subscription",
				Usage:   "Azure subscription ID",
				EnvVars: []string{"AZURE_SUBSCRIPTION_ID"},
			},
			&cli.StringFlag{
				Name:    "tenant",
				Usage:   "Azure AD tenant ID",
				EnvVars: []string{"AZURE_TENANT_ID"},
			},
			&cli.StringFlag{
				Name:    "client-id",
				Usage:   "Service principal client ID",
				EnvVars: []string{"AZURE_CLIENT_ID"},
			},
			&cli.StringFlag{
				Name:    "client-secret",
				Usage:   "Service principal client secret",
				EnvVars: []string{"AZURE_CLIENT_SECRET"},
			},
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Start date (YYYY-MM-DD)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "End date (YYYY-MM-DD)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the merged export here instead of stdout",
			},
		},
		Action: runFetch,
	}
}

func runFetch(c *cli.Context) error {
	logger := initLogger(c)

	fileCfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	subscription := firstNonEmpty(c.String("subscription"), fileCfg.Azure.SubscriptionID)
	creds := fetch.Credentials{
		TenantID:     firstNonEmpty(c.String("tenant"), fileCfg.Azure.TenantID),
		ClientID:     firstNonEmpty(c.String("client-id"), fileCfg.Azure.ClientID),
		ClientSecret: firstNonEmpty(c.String("client-secret"), fileCfg.Azure.ClientSecret),
	}
	if subscription == "" || creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("subscription, tenant, client-id and client-secret are required (flags, env or config file)")
	}

	from, err := time.Parse("2006-01-02", c.String("from"))
	if err != nil {
		return fmt.Errorf("invalid --from date %q: use YYYY-MM-DD", c.String("from"))
	}
	to, err := time.Parse("2006-01-02", c.String("to"))
	if err != nil {
		return fmt.Errorf("invalid --to date %q: use YYYY-MM-DD", c.String("to"))
	}
	if err := usage.ValidateWindow(&from, &to); err != nil {
		return err
	}

	client := fetch.NewClient(subscription, creds, logger)
	doc, err := client.UsageDetails(context.Background(), from, to)
	if err != nil {
		return err
	}

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, doc, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		logger.Info("export written", "path", path, "bytes", len(doc))
		return nil
	}
	_, err = os.Stdout.Write(append(doc, '\n'))
	return err
}

// =============================================================================
// INGEST COMMAND
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load a usage export into ClickHouse",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to usage-details JSON export",
				Required: true,
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	logger := initLogger(c)

	records, err := usage.LoadFile(c.String("file"))
	if err != nil {
		return err
	}

	store, err := storeFromFlags(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("ClickHouse not reachable: %w", err)
	}

	runID := uuid.New()
	if err := store.InsertUsageRecords(ctx, runID, records); err != nil {
		return fmt.Errorf("failed to insert usage records: %w", err)
	}
	count, err := store.CountUsageRecords(ctx, runID)
	if err != nil {
		return err
	}
	logger.Info("export ingested", "run_id", runID.String(), "records", count)
	fmt.Printf("ingested %d records as run %s\n", count, runID)
	return nil
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP analysis API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP listen port",
				EnvVars: []string{"AZCOST_PORT"},
			},
			&cli.BoolFlag{
				Name:  "no-store",
				Usage: "Run without ClickHouse persistence",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	logger := initLogger(c)

	var store *clickhouse.Store
	if !c.Bool("no-store") {
		var err error
		store, err = storeFromFlags(c)
		if err != nil {
			logger.Warn("ClickHouse unavailable, persistence disabled", "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	server := api.NewServer(store, cfg, logger)
	return server.StartWithGracefulShutdown()
}

// =============================================================================
// HELPERS
// =============================================================================

// persistAnalysis stores a finished analysis run, hashing the source
// file for dedup. An identical earlier run short-circuits the insert.
func persistAnalysis(c *cli.Context, logger *slog.Logger, kind, sourceFile string, records int, payload any) error {
	store, err := storeFromFlags(c)
	if err != nil {
		return fmt.Errorf("persist requested but ClickHouse unavailable: %w", err)
	}
	defer store.Close()

	raw, err := os.ReadFile(sourceFile)
	if err != nil {
		return err
	}
	hash := clickhouse.HashInput(raw)

	ctx := context.Background()
	if existing, err := store.FindRunByHash(ctx, kind, hash); err == nil && existing != nil {
		logger.Info("identical input already analyzed", "run_id", existing.ID.String())
		return nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode run payload: %w", err)
	}
	run := &clickhouse.ReportRun{
		Kind:       kind,
		SourceFile: sourceFile,
		Records:    records,
		Hash:       hash,
		Payload:    string(encoded),
	}
	if err := store.CreateReportRun(ctx, run); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	logger.Info("analysis run stored", "run_id", run.ID.String(), "kind", kind)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
