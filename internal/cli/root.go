package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"twstock-portfolio/internal/config"
	"twstock-portfolio/internal/dividend"
	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/portfolio"
	"twstock-portfolio/internal/quote"
	"twstock-portfolio/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      store.DataStore
	Resolver   *quote.Resolver
	Reconciler *dividend.Reconciler
	Aggregator *portfolio.Aggregator
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, most commands will be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	if app.Store != nil {
		timeout := time.Duration(cfg.Quote.TimeoutSeconds) * time.Second
		twse := quote.NewTWSESource(logger, timeout)
		finmind := quote.NewFinMindSource(cfg.Credentials.FinMind.Token, logger, timeout)

		app.Resolver = quote.NewResolver(app.Store, logger, twse, finmind)
		app.Resolver.SetFreshness(time.Duration(cfg.Quote.CacheFreshnessMinutes) * time.Minute)

		app.Reconciler = dividend.NewReconciler(app.Store, app.Store, app.Store, finmind, logger)
		app.Aggregator = portfolio.NewAggregator(app.Store, app.Store, app.Store, app.Resolver, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "twstock",
		Short: "Taiwan stock portfolio tracker",
		Long: `twstock tracks stock transactions and computes a live portfolio
valuation for Taiwanese equities.

Quotes are reconciled from the free TWSE intraday feed with the
token-gated FinMind historical feed as fallback, cached to survive
provider outages. Dividend payments are discovered from FinMind and
attributed retroactively to individual purchases.

Use 'twstock help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/twstock-portfolio)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// Add all command groups
	addCoreCommands(rootCmd, app)
	addTransactionCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addQuoteCommands(rootCmd, app)
	addDividendCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("twstock v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
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
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}
