package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/pulse/internal/app"
	"github.com/ternarybob/pulse/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	dryRun       = flag.Bool("dry-run", false, "Render newsletters without sending them")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: pulse [flags] <command> [args]

Commands:
  run [user]                         Build and send the weekly newsletter (all users, or one)
  schedule [-now]                    Run the newsletter on the configured cron schedule
  prices <ticker>...                 Print current prices
  performance <period> <user|ticker>...
                                     Print weekly, mtd or ytd performance
  validate <ticker>...               Report which tickers resolve to a price
  import <file> [user]               Import holdings from YAML, TOML, CSV or a statement document
  users [delete <user>]              List users with stored holdings, or delete one
  keys [set <key> <value>|delete <key>]
                                     List, set or delete stored API keys

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	common.LoadVersionFromFile()

	if *showVersion || *showVersionV {
		fmt.Println(common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	command, commandArgs := args[0], args[1:]

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("pulse.toml"); err == nil {
			configFiles = append(configFiles, "pulse.toml")
		} else if _, err := os.Stat("deployments/local/pulse.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/pulse.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		common.GetLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *logLevel, *dryRun)

	if err := config.Validate(); err != nil {
		common.GetLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger, command)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("providers", config.Prices.Providers).
		Bool("dry_run", config.Newsletter.DryRun).
		Str("log_file", common.GetLogFilePath(logger)).
		Msg("Resolved configuration (sanitized)")

	if config.IsProduction() && config.Newsletter.DryRun {
		logger.Warn().Msg("Production environment with dry_run enabled, newsletters will not be sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	err = dispatch(ctx, application, command, commandArgs)
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Failed to close application")
	}

	if err != nil {
		logger.Error().Str("command", command).Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "pulse %s: %v\n", command, err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, a *app.App, command string, args []string) error {
	switch command {
	case "run":
		return runNewsletter(ctx, a, args)
	case "schedule":
		return runSchedule(ctx, a, args)
	case "prices":
		return runPrices(ctx, a, args)
	case "performance":
		return runPerformance(ctx, a, args)
	case "validate":
		return runValidate(ctx, a, args)
	case "import":
		return runImport(ctx, a, args)
	case "users":
		return runUsers(ctx, a, args)
	case "keys":
		return runKeys(ctx, a, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
