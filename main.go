package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/habedi/uniboard/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main sets up logging from DEBUG_UNIBOARD and runs the root command.
// The first interrupt cancels the command's context so in-flight requests
// and the web server stop cleanly; a second one exits immediately.
func main() {
	configureLogLevelFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		stopChan := setupInterruptListener()
		handleInterrupt(stopChan, func(msg string) { log.Error().Msg(msg) }, os.Exit)
	}()

	cmd.Execute(ctx)
}

// configureLogLevelFromEnv enables debug logging to stderr when DEBUG_UNIBOARD
// is set to anything other than "", "0" or "false". Logging is disabled otherwise.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_UNIBOARD") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	return stopChan
}

func handleInterrupt(stopChan chan os.Signal, fatalLog func(string), exit func(int)) {
	<-stopChan
	fatalLog("Interrupt signal received. Exiting...")
	exit(1)
}
