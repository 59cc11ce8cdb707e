// Package cli provides the command-line interface for the backtester.
package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"backtester/internal/config"
	"backtester/internal/logging"
	"backtester/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dbPath := filepath.Join(config.DefaultConfigDir(), "backtester.db")
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, data commands will be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "A-share strategy backtester",
		Long: `Backtester simulates trading strategies against historical A-share data.

It models T+1 settlement, price limits by board, lot-size rounding and the
full fee schedule, and reports performance and risk metrics. Grid search
and walk-forward validation are built in.

Use 'backtester help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newOptimizeCmd(app))
	rootCmd.AddCommand(newWalkForwardCmd(app))
	rootCmd.AddCommand(newDataCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("backtester v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Run Configuration")
	output.Printf("  Symbol:          %s\n", cfg.Run.Symbol)
	output.Printf("  Strategy:        %s\n", cfg.Run.Strategy)
	output.Printf("  Date Range:      %s .. %s\n", cfg.Run.StartDate, cfg.Run.EndDate)
	output.Printf("  Capital:         %s\n", FormatMoney(cfg.Run.InitialCapital))
	output.Printf("  Commission:      %.4f%% (min %s)\n", cfg.Run.CommissionRate*100, FormatMoney(cfg.Run.MinCommission))
	output.Printf("  Slippage:        %.1f bps\n", cfg.Run.SlippageBps)
	output.Printf("  Transfer Tax:    %.2f%%\n", cfg.Run.TransferTaxRate*100)
	output.Printf("  Lot Size:        %d\n", cfg.Run.LotSize)
	output.Println()

	output.Bold("Risk Configuration")
	output.Printf("  Max Position %%:  %.0f%%\n", cfg.Risk.MaxPositionPct*100)
	output.Printf("  Max Exposure %%:  %.0f%%\n", cfg.Risk.MaxTotalExposure*100)
	output.Printf("  Stop Loss:       %s\n", formatThreshold(cfg.Risk.StopLossPct))
	output.Printf("  Stop Profit:     %s\n", formatThreshold(cfg.Risk.StopProfitPct))
	output.Printf("  Max Drawdown:    %s\n", formatThreshold(cfg.Risk.MaxDrawdownPct))
	output.Printf("  Trailing Stop:   %v\n", cfg.Risk.TrailingStop)
	output.Println()

	output.Bold("Optimization")
	output.Printf("  Objective:       %s\n", cfg.Optimization.Objective)
	output.Printf("  Workers:         %d\n", cfg.Optimization.Workers)
	output.Printf("  Axes:            %d\n", len(cfg.Optimization.Params))
	output.Println()

	output.Bold("Walk-Forward")
	output.Printf("  Train/Test/Step: %d/%d/%d bars\n", cfg.WalkForward.TrainBars, cfg.WalkForward.TestBars, cfg.WalkForward.StepBars)
	output.Printf("  Optimize:        %v\n", cfg.WalkForward.OptimizeInTrain)
	output.Printf("  Degradation:     %.0f%%\n", cfg.WalkForward.DegradationThreshold*100)

	return nil
}

func formatThreshold(pct float64) string {
	if pct <= 0 {
		return "disabled"
	}
	return FormatPercent(pct)
}
