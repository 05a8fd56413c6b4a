// library-fixture serves the library application the browser flows run
// against. State lives in a single SQLite file which is seeded when missing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"github.com/ternarybob/shelfcheck/internal/common"
	"github.com/ternarybob/shelfcheck/internal/library"
)

var (
	host        = flag.String("host", "127.0.0.1", "Listen host")
	port        = flag.Int("port", 5000, "Listen port")
	dbPath      = flag.String("db", "library.db", "SQLite database file")
	logLevel    = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("library-fixture version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	logger := arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}).WithLevelFromString(*logLevel)

	store, err := library.OpenStore(logger, *dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *dbPath).Msg("Failed to open library database")
	}
	defer store.Close()

	srv := library.NewServer(library.NewHandler(store, logger), *host, *port, logger)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "library-server", func() {
		serverErr <- srv.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			store.Close()
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}
