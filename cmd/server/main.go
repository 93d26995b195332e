package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"atelier-chat/auth"
	"atelier-chat/identity"
	"atelier-chat/membership"
	"atelier-chat/moderation"
	"atelier-chat/observability"
	"atelier-chat/repositories"
	"atelier-chat/runtime"
	"atelier-chat/runtime/workers"
	"atelier-chat/search"
	"atelier-chat/transport/ws"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownGrace = 10 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close, index
// flush) executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLogger(nil)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Search index (Bluge)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 4. Moderation
	blocklist, err := moderation.LoadBlocklist()
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to load blocklist: %w", err)
	}
	logger.Info("Blocklist loaded", "words", len(blocklist.Words), "languages", blocklist.Languages)
	moderator, err := moderation.NewModerator(blocklist.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to build moderator: %w", err)
	}

	// 5. Runtime
	users := repositories.NewUserRepository(db)
	projects := repositories.NewProjectRepository(db)
	messages := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	monitoring := observability.NewManager()
	index := search.NewMessageIndex(blugeWriter, logger, config.SearchLimit)

	orchestrator := runtime.NewOrchestrator(
		logger,
		workers.NewSupervisor(logger),
		runtime.NewRegistry(),
		messages,
		&moderator,
		index,
		monitoring,
		config.BufferSize,
		config.SinkTimeout,
		config.MetricInterval,
	)
	if err := orchestrator.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orchestrator.Stop()

	// 6. Transport
	codec := auth.NewTokenCodec(config.AuthSigningKey)
	resolver := identity.NewDirectoryResolver(codec, users, logger)
	policy := membership.NewProjectPolicy(projects)
	socketServer := ws.NewServer(logger, resolver, policy, orchestrator, monitoring, config.ConnectionBufferSize)

	mux := http.NewServeMux()
	mux.Handle("/ws", socketServer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(monitoring.Snapshot())
	})

	httpServer := &http.Server{Addr: config.Addr(), Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Chat endpoint listening", "addr", config.Addr())
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("http shutdown failed: %w", err)
	}
	logger.Info("Server stopped cleanly")
	return exitOK, nil
}
