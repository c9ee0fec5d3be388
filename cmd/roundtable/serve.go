package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/config"
	"roundtable/conversation"
	"roundtable/db"
	"roundtable/handlers"
	"roundtable/llm"
	"roundtable/memory"
	"roundtable/metrics"
	"roundtable/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation HTTP server",
	Long: `Builds the cast, connects the memory and persistence backends and serves
the conversation endpoints:

  POST /chat         user message, answered by one agent
  POST /voice_chat   multipart "audio" upload, transcribed then answered
  GET  /idle         poll while the user is silent
  GET  /history      paged conversation log
  GET  /agents       cast state, /agents/{name} for one agent
  GET  /metrics      Prometheus metrics`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Info(".env file not found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.New(ctx, cfg.Gemini, logger)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector("roundtable", logger)

	short, closeShort, err := newShortTerm(ctx, cfg.Memory)
	if err != nil {
		return err
	}
	defer closeShort()

	var (
		long      memory.LongTerm = memory.NewVectorStore(client)
		persister conversation.Persister
		store     *db.SessionStore
	)
	if cfg.Mongo.URI != "" {
		mdb, err := db.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
		if err != nil {
			return err
		}
		defer mdb.Close(context.Background())
		if err := mdb.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to create indexes", zap.Error(err))
		}
		long = db.NewMemoryRepository(mdb, cfg.Engine.SessionID, client, 0)
		store = db.NewSessionStore(mdb)
		persister = store
	} else {
		logger.Info("mongodb not configured, session state is kept in memory only")
	}

	writer := memory.NewAsyncWriter(cfg.Memory.QueueSize, cfg.Engine.ExternalTimeout, collector, logger)
	defer writer.Close()
	mem := memory.NewManager(short, long, memory.Options{
		RecallK:     cfg.Engine.RecallK,
		RecentLines: cfg.Engine.HistoryTail,
		Writer:      writer,
		Logger:      logger,
	})

	var fallback conversation.ImportanceJudge
	if cfg.Memory.UseLLMImportance {
		fallback = client
	}

	logger.Info("building cast", zap.Int("characters", len(cfg.Cast.Characters)))
	registry, err := agent.BuildCast(ctx, cfg.Cast.Characters, client, client, agent.CastOptions{
		Seed:   cfg.Engine.Seed,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build cast: %w", err)
	}

	opts := conversation.Options{
		IdleThreshold:        cfg.Engine.IdleThreshold,
		MaxAutonomousTurns:   cfg.Engine.MaxAutonomousTurns,
		HistoryTail:          cfg.Engine.HistoryTail,
		PropagationThreshold: cfg.Engine.PropagationThreshold,
		ExternalTimeout:      cfg.Engine.ExternalTimeout,
		Importance:           memory.NewHeuristicImportance(fallback, logger),
		Emotions:             client,
		Memory:               mem,
		Persister:            persister,
		Observer:             collector,
		Logger:               logger,
	}
	if cfg.Engine.CoachFeedback {
		opts.Coach = client
	}
	session := conversation.NewSession(cfg.Engine.SessionID, registry, client, client, opts)

	if store != nil {
		restoreSession(ctx, store, session, logger)
	}

	mux := http.NewServeMux()
	handlers.NewServer(session, client, cfg.Server.MaxAudioBytes, logger).Register(mux)
	mux.Handle("GET /metrics", collector.Handler())

	// Observe must see the request the mux annotates, so nothing after it may
	// replace the request.
	handler := middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Observe(logger, collector),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newShortTerm uses Redis when an address is configured and process memory
// otherwise.
func newShortTerm(ctx context.Context, cfg config.MemoryConfig) (memory.ShortTerm, func(), error) {
	if cfg.RedisAddr == "" {
		return memory.NewInMemoryShortTerm(cfg.ShortTermWindow), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	store := memory.NewRedisShortTerm(rdb, cfg.KeyPrefix, cfg.ShortTermWindow, cfg.TTL)
	return store, func() { rdb.Close() }, nil
}

// snapshotLoader is satisfied by db.SessionStore.
type snapshotLoader interface {
	LoadSnapshot(ctx context.Context, sessionID string) (conversation.Snapshot, bool, error)
}

// restoreSession loads the last saved state into session. A missing or
// unusable snapshot leaves the fresh session in place.
func restoreSession(ctx context.Context, loader snapshotLoader, session *conversation.Session, logger *zap.Logger) bool {
	snap, ok, err := loader.LoadSnapshot(ctx, session.ID())
	switch {
	case err != nil:
		logger.Warn("failed to load saved session, starting fresh", zap.Error(err))
		return false
	case !ok:
		logger.Info("no saved session, starting fresh")
		return false
	}
	if err := session.Restore(snap); err != nil {
		logger.Warn("saved session does not match the cast, starting fresh", zap.Error(err))
		return false
	}
	return true
}
