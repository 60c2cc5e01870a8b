package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/habedi/uniboard/config"
	"github.com/habedi/uniboard/db"
	"github.com/habedi/uniboard/session"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateRootCmd checks that createRootCmd returns a root command
// with the expected use string, subcommands, and a replaced help command.
func TestCreateRootCmd(t *testing.T) {
	rootCmd := createRootCmd(&rootOptions{})
	if rootCmd.Use != "uniboard" {
		t.Errorf("expected root command use to be 'uniboard', got: %s", rootCmd.Use)
	}

	subCommands := rootCmd.Commands()
	if len(subCommands) == 0 {
		t.Error("expected root command to have subcommands, got none")
	}

	names := map[string]bool{}
	for _, cmd := range subCommands {
		if cmd.Use == "help" {
			t.Error("expected help command to be replaced, but found a subcommand with use 'help'")
		}
		names[cmd.Name()] = true
	}
	for _, want := range []string{"login", "logout", "whoami", "status", "dashboard", "upload", "users", "config", "serve", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

// TestInitializeAndCloseDatabase points the session database at a temporary
// path. If no os.Exit occurs, the test passes.
func TestInitializeAndCloseDatabase(t *testing.T) {
	t.Setenv("UNIBOARD_SESSION_DB", filepath.Join(t.TempDir(), "session.db"))
	initializeDatabase()
	require.NotNil(t, db.GetDB())
	closeDatabase()
}

// TestExecuteFailure runs a subprocess where the root command's RunE is overridden
// to always return an error, and checks that it exits with status 1.
func TestExecuteFailure(t *testing.T) {
	if os.Getenv("TEST_EXECUTE_FAILURE") == "1" {
		rootCmd := createRootCmd(&rootOptions{})
		rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return errors.New("dummy failure")
		}
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestExecuteFailure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_FAILURE=1")
	err := cmd.Run()
	if exitError, ok := err.(*exec.ExitError); ok {
		if exitError.ExitCode() != 1 {
			t.Fatalf("expected exit code 1, got %d", exitError.ExitCode())
		}
	} else if err == nil {
		t.Fatalf("expected an exit error, but command succeeded")
	} else {
		t.Fatalf("unexpected error: %v", err)
	}
}

// testOptions returns rootOptions backed by an in-memory store and a fixed
// configuration pointing at baseURL.
func testOptions(baseURL string, store session.Store) *rootOptions {
	return &rootOptions{
		store: store,
		loadConfig: func(ctx context.Context, opts config.Options) (*config.Config, error) {
			return &config.Config{
				APIBaseURL:       baseURL,
				APIBaseURLSource: config.SourceEnv,
				Timeout:          5 * time.Second,
				Port:             3000,
				StaticDir:        "dist",
			}, nil
		},
	}
}

// runCmd executes the root command with args and returns stdout and stderr.
func runCmd(t *testing.T, opts *rootOptions, stdin string, args ...string) (string, string, error) {
	t.Helper()
	rootCmd := createRootCmd(opts)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}
