package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"housing-chat/auth"
	"housing-chat/contract"
	"housing-chat/domain/event"
	"housing-chat/infrastructure/grpc/chatapi"
	"housing-chat/infrastructure/grpc/server"
	"housing-chat/infrastructure/storage"
	"housing-chat/infrastructure/ws"
	"housing-chat/internal"
	"housing-chat/moderation"
	"housing-chat/runtime"
	"housing-chat/runtime/workers"
	"housing-chat/services"
	"housing-chat/sink"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	debugPort        = 8081
	searchBatchSize  = 100
	shutdownDeadline = 10 * time.Second
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Deferred cleanups run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Message Store
	store, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Presence, directory, router
	presence := runtime.NewPresence(logger)
	directory := services.NewChatDirectory(store, logger, config.CreateChatAttempts)
	storedEvents := make(chan event.DomainEvent, config.BufferSize)
	router := services.NewMessageRouter(directory, store, presence, logger, config.MaxTextLength).
		WithEvents(storedEvents)

	fanout := workers.NewEventFanout(logger, storedEvents, config.SinkTimeout)

	if config.EnableModeration {
		moderator, err := buildModerator(charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
		}
		router.WithCensor(moderator)
		fanout.Add(sink.NewCensorshipSink(logger))
	}

	// 4. Search index (optional)
	var searchSink *sink.SearchSink
	if config.BlugeFilepath != "" {
		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()
		index := storage.NewSearchIndex(blugeWriter, logger)
		router.WithIndex(index)
		searchSink = sink.NewSearchSink(index, logger, searchBatchSize, config.BufferTimeout)
		fanout.Add(searchSink)
	} else {
		logger.Info("BLUGE_FILEPATH is empty, message search disabled")
	}

	chatService := services.NewChatService(directory, router, presence)

	var verifier *auth.Verifier
	if config.IdentityTokenSecret != "" {
		verifier = auth.NewVerifier(config.IdentityTokenSecret)
	} else {
		logger.Warn("IDENTITY_TOKEN_SECRET is empty, identities are trusted as claimed")
	}

	// 5. Supervised workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		fanout,
		workers.NewReporterWorker(logger, presence, config.MetricInterval,
			workers.NamedChannel{Name: "stored_events", Channel: storedEvents}),
	)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		sup.Run(ctx)
	}()

	errChan := make(chan error, 2)

	// 6. gRPC Server Setup
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			auth.UnaryInterceptor(verifier),
		),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(verifier)),
		// Dead peers end their Connect stream, which disconnects them from presence.
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    config.PingInterval,
			Timeout: config.PongTimeout - config.PingInterval,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	chatServer := server.NewChatServer(logger, chatService, config.ConnectionBufferSize)
	chatapi.RegisterChatServiceServer(s, chatServer)

	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Websocket Server Setup
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(logger, chatService, verifier,
		config.ConnectionBufferSize, config.PingInterval, config.PongTimeout))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting websocket server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; they end with the process.
	_ = httpServer.Shutdown(shutdownCtx)
	chatServer.Shutdown()
	stopGRPC(s, shutdownCtx, logger)
	sup.Stop()
	<-workersDone
	if searchSink != nil {
		if err := searchSink.Flush(shutdownCtx); err != nil {
			logger.Error("Final search flush failed", "error", err)
		}
	}
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// stopGRPC drains in-flight calls, forcing the stop once ctx expires.
func stopGRPC(s *grpc.Server, ctx context.Context, logger *slog.Logger) {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.GracefulStop()
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("gRPC graceful stop timed out, forcing")
		s.Stop()
		<-stopped
	}
}

// openStore returns the configured MessageStore and its cleanup.
func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.MessageStore, func(), error) {
	switch config.StoreDriver {
	case internal.StorePostgres:
		db, err := storage.OpenPostgres(ctx, config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres opening failed: %w", err)
		}
		return storage.NewPostgresStore(db, logger), func() {
			logger.Info("Closing Postgres...")
			_ = db.Close()
		}, nil
	default:
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			url := fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint)
			logger.Info("Debug Badger inspector available", "url", url)
			database.StartDebugServer(db, debugPort, endpoint, RecordMapper)
		}
		store, err := storage.NewBadgerStore(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() {
			// Defer ensures the database lock is released and buffers are flushed before the function returns.
			logger.Info("Closing BadgerDB...")
			_ = store.Close()
			_ = db.Close()
		}, nil
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// buildModerator loads the embedded word lists and builds the Aho-Corasick automaton.
func buildModerator(charReplacement rune, logger *slog.Logger) (*moderation.Moderator, error) {
	data, err := moderation.NewCensoredLoader(moderation.CensoredFolder).LoadAll("censored")
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	logger.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, charReplacement, logger)
}

// RecordMapper renders chats and messages in the debug inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	rec := storage.DecodeRecord(key, val)
	row.Type = rec.Kind
	row.Detail = rec.Detail
	return row
}
