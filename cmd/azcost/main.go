// azcost - Azure usage-export analyzer
//
// Usage:
//   azcost reservations --file usage.json [options]
//   azcost coverage --file usage.json [options]
//   azcost compare-vm --old june.json --new july.json
//   azcost compare-storage --old june.json --new july.json
//   azcost monthly --dir exports/ --pattern 'usage_.*\.json'
//   azcost fetch --subscription <id> --from 2026-06-01 --to 2026-06-30
//   azcost serve
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"azure-cost/analysis/usage"
	"azure-cost/db/clickhouse"
	"azure-cost/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "azcost",
		Usage:   "Azure billing usage-export analyzer - reservation utilization, coverage and cost drift",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"AZCOST_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to YAML config file",
				EnvVars: []string{"AZCOST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "azcost",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			reservationsCommand(),
			coverageCommand(),
			compareVMCommand(),
			compareStorageCommand(),
			monthlyCommand(),
			fetchCommand(),
			ingestCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		platform.LogFatal(slog.Default(), "command failed", err)
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func initLogger(c *cli.Context) *slog.Logger {
	return platform.InitLogger(c.String("log-level"))
}

// loadConfig merges the optional YAML file with flag defaults. A missing
// --config flag yields an empty config, not an error.
func loadConfig(c *cli.Context) (*platform.FileConfig, error) {
	path := c.String("config")
	if path == "" {
		return &platform.FileConfig{}, nil
	}
	return platform.LoadConfig(path)
}

func storeFromFlags(c *cli.Context) (*clickhouse.Store, error) {
	cfg := &clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
		Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
	}
	fileCfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if fileCfg.ClickHouse.Host != "" {
		cfg.Host = fileCfg.ClickHouse.Host
	}
	if fileCfg.ClickHouse.Port != 0 {
		cfg.Port = fileCfg.ClickHouse.Port
	}
	if fileCfg.ClickHouse.Database != "" {
		cfg.Database = fileCfg.ClickHouse.Database
	}
	if fileCfg.ClickHouse.Username != "" {
		cfg.Username = fileCfg.ClickHouse.Username
	}
	if fileCfg.ClickHouse.Password != "" {
		cfg.Password = fileCfg.ClickHouse.Password
	}
	return clickhouse.NewStore(cfg)
}

// parseWindowFlags reads --from/--to into an optional date window.
func parseWindowFlags(c *cli.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if s := c.String("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from date %q: use YYYY-MM-DD", s)
		}
		from = &t
	}
	if s := c.String("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to date %q: use YYYY-MM-DD", s)
		}
		to = &t
	}
	if err := usage.ValidateWindow(from, to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "from",
			Usage: "Window start date, inclusive (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "Window end date, inclusive (YYYY-MM-DD)",
		},
	}
}

// loadWindowedRecords loads the export at --file and applies the window.
func loadWindowedRecords(c *cli.Context, logger *slog.Logger) ([]usage.Record, error) {
	records, err := usage.LoadFile(c.String("file"))
	if err != nil {
		return nil, err
	}
	from, to, err := parseWindowFlags(c)
	if err != nil {
		return nil, err
	}
	filtered, skipped := usage.FilterByWindow(records, from, to)
	if skipped > 0 {
		logger.Warn("records without resolvable dates excluded from window", "skipped", skipped)
	}
	logger.Info("usage export loaded", "file", c.String("file"),
		"records", len(records), "in_window", len(filtered))
	return filtered, nil
}
