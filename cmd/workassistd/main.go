// Workassistd is the work-communications assistant daemon.
//
// It ingests emails and status updates, extracts structured facts with a
// local or hosted language model, persists entities to SQLite, indexes
// documents in an embedded vector store, and answers natural-language
// questions over the accumulated data via an HTTP API.
//
// Usage:
//
//	# Start with defaults (Ollama on localhost)
//	workassistd
//
//	# Start with a config file
//	workassistd -config workassist.yaml
//
//	# Configure via environment
//	WORKASSIST_SERVER_PORT=9090 WORKASSIST_LLM_MODEL=llama3 workassistd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/config"
	"github.com/ledgerline/workassist/internal/embeddings"
	"github.com/ledgerline/workassist/internal/extraction"
	"github.com/ledgerline/workassist/internal/httpapi"
	"github.com/ledgerline/workassist/internal/ingest"
	"github.com/ledgerline/workassist/internal/llm"
	"github.com/ledgerline/workassist/internal/logging"
	"github.com/ledgerline/workassist/internal/query"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("workassistd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run wires all services and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting workassistd",
		zap.String("version", version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	entities, err := store.Open(cfg.Store.Path, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("opening entity store: %w", err)
	}
	defer entities.Close()

	embedder, err := embeddings.NewHTTPEmbedder(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	index, err := semindex.New(semindex.Config{
		Path:     cfg.Index.Path,
		Compress: cfg.Index.Compress,
	}, embedder, logger.Named("semindex"))
	if err != nil {
		return fmt.Errorf("opening semantic index: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM.Provider, llm.Config{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	extractor, err := extraction.NewEngine(client, logger.Named("extraction"))
	if err != nil {
		return fmt.Errorf("creating extraction engine: %w", err)
	}

	coordinator, err := ingest.NewCoordinator(entities, index, extractor, logger.Named("ingest"))
	if err != nil {
		return fmt.Errorf("creating ingestion coordinator: %w", err)
	}

	engine, err := query.NewEngine(client, entities, index, query.Config{
		MaxResults:  cfg.Assistant.SearchResults,
		WarningDays: cfg.Assistant.DeliverableWarningDays,
	}, logger.Named("query"))
	if err != nil {
		return fmt.Errorf("creating query engine: %w", err)
	}

	server, err := httpapi.NewServer(entities, coordinator, engine, index, logger.Named("http"), httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
