package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Loads BADGESYNC_* settings from a .env file in the working directory.
	_ "github.com/joho/godotenv/autoload"

	"github.com/tylercrumpton/open-sespame/internal/cli"
	"github.com/tylercrumpton/open-sespame/internal/syncer"
)

// main delegates all the real work to cli.Run and turns its error into an
// exit status, one per failure class.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Run(ctx, os.Args[1:], cli.NewOptions())
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(syncer.ExitCode(err))
	}
}
