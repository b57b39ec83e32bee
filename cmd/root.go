package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/shadecheck/internal/config"
	"github.com/andresmejia3/shadecheck/internal/logger"
	"github.com/andresmejia3/shadecheck/internal/store"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

// Options holds flags shared by the assess, capture and crop commands
type Options struct {
	NumEngines int
	ProbeWidth int
	JSON       bool
	Timeout    string
	Auto       bool
	Output     string
	Limit      int
}

// needsDB marks commands that cannot run without the capture store.
const needsDB = "needs-db"

var (
	// DB is the global database connection shared by subcommands
	DB *store.Store
	// Cfg is the loaded configuration
	Cfg = config.Default()

	dbURL   string
	cfgPath string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "shadecheck",
	Short:   "Selfie capture quality gate",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; real environment variables still apply.
		_ = godotenv.Load()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		Cfg = cfg

		if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return err
		}

		if cmd.Annotations[needsDB] != "" {
			if _, err := openDB(cmd.Context()); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
		logger.Sync()
	},
}

// openDB connects once and reuses the connection for the rest of the command.
func openDB(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	s, err := store.New(ctx, connString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

// connString prefers --db, then POSTGRES_* variables, then a local default.
func connString() string {
	if dbURL != "" {
		return dbURL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/shadecheck"
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !utils.WasShown(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	// Execute prints whatever the commands have not already boxed.
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/shadecheck)")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "shadecheck.yaml", "Path to the YAML config file (defaults are used if it does not exist)")
}
