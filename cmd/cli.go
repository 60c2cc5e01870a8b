package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/habedi/uniboard/auth"
	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/config"
	"github.com/habedi/uniboard/db"
	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/habedi/uniboard/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	apiURL     string
	configFile string

	// store overrides the sqlite session store; set by tests.
	store session.Store
	// loadConfig overrides config.Load; set by tests.
	loadConfig func(ctx context.Context, opts config.Options) (*config.Config, error)
}

// app bundles what a command needs to talk to the backend.
type app struct {
	cfg    *config.Config
	store  session.Store
	client *client.Client
	auth   *auth.Service
}

// Execute runs the root command with ctx and exits with the status
// matching the returned error.
func Execute(ctx context.Context) {
	rootCmd := createRootCmd(&rootOptions{})
	initializeDatabase()

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	err := rootCmd.ExecuteContext(ctx)
	closeDatabase()
	if err != nil {
		var cliErr *clierr.Error
		if !errors.As(err, &cliErr) {
			rootCmd.PrintErrln("Error:", err)
		}
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(clierr.ExitCode(err))
	}
}

func createRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "uniboard",
		Short:         "Command-line client for the university dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Dashboard API base URL (overrides the config file and UNIBOARD_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to the config file (default ~/.uniboard/config.yaml)")

	rootCmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		statusCmd(opts),
		dashboardCmd(opts),
		uploadCmd(opts),
		usersCmd(opts),
		configCmd(opts),
		serveCmd(opts),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// config resolves the runtime configuration for cmd.
func (o *rootOptions) config(cmd *cobra.Command) (*config.Config, error) {
	load := o.loadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load(cmd.Context(), config.Options{APIBaseURL: o.apiURL, ConfigFile: o.configFile})
	if err != nil {
		return nil, clierr.New(clierr.Validation, fmt.Sprintf("Invalid configuration: %v", err), err)
	}
	return cfg, nil
}

// newApp builds the API client and auth service for cmd.
func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.config(cmd)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		if db.GetDB() == nil {
			return nil, clierr.New(clierr.Internal, "Session database is not initialized.", nil)
		}
		store = db.NewSessionStore(db.GetDB())
	}

	client.SetUploadRateLimit(cfg.UploadRateLimit)
	// Concurrent requests of one command may each see the session expire.
	var expiredOnce sync.Once
	clientOpts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithUserAgent("uniboard/" + version),
		client.WithSessionExpiredHandler(func(cause error) {
			log.Warn().Err(cause).Msg("Session expired")
			expiredOnce.Do(func() { cmd.PrintErrln(clierr.SessionExpiredMessage) })
		}),
	}
	if cfg.SingleFlightRefresh {
		clientOpts = append(clientOpts, client.WithSingleFlightRefresh())
	}
	c, err := client.New(cfg.APIBaseURL, store, clientOpts...)
	if err != nil {
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}

	return &app{
		cfg:    cfg,
		store:  store,
		client: c,
		auth:   auth.NewService(store, c),
	}, nil
}

// reportError prints a user-facing message for err and returns the CLI error.
// The session-expired message is printed by the client's handler already.
func reportError(cmd *cobra.Command, action string, err error) error {
	cliErr := clierr.FromAPI(action, err)
	if cliErr == nil {
		return nil
	}
	if cliErr.Message != clierr.SessionExpiredMessage {
		cmd.PrintErrln("Error:", cliErr.Message)
	}
	return cliErr
}

func initializeDatabase() {
	if path := os.Getenv("UNIBOARD_SESSION_DB"); path != "" {
		db.Path = filepath.Clean(path)
	}
	if err := db.InitDB(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		fmt.Fprintln(os.Stderr, "Error: failed to open the session database:", err)
		os.Exit(1)
	}
}

func closeDatabase() {
	if err := db.CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database.")
	}
}
