// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/assistant"
	"github.com/zeina-health/companion/internal/catalog"
	"github.com/zeina-health/companion/internal/config"
	"github.com/zeina-health/companion/internal/handler"
	"github.com/zeina-health/companion/internal/llm"
	"github.com/zeina-health/companion/internal/model"
	natsclient "github.com/zeina-health/companion/internal/nats"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/internal/tool"
	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/tracing"
)

// options are the command line flags.
type options struct {
	Config   string `short:"c" long:"config" description:"YAML configuration file; environment variables take precedence"`
	SeedDemo bool   `long:"seed-demo" description:"store the demo user profile on startup"`
}

// repositories is the storage backend selected by configuration.
type repositories struct {
	appointments store.AppointmentRepository
	users        store.UserRepository
	reviews      store.ReviewRepository
	memory       *store.MemoryStore
	pinger       handler.Pinger
	closers      []func() error
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.Setup(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, opts, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options, log *logger.Logger) error {
	log.Info("starting API server", zap.String("store", cfg.StoreDriver), zap.String("llm", cfg.DefaultLLM))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "zeina-companion", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range repos.closers {
			if err := closeFn(); err != nil {
				log.Warn("failed to close resource", zap.Error(err))
			}
		}
	}()

	// Connect to NATS when lifecycle events are enabled
	var (
		natsClient    *natsclient.Client
		streamManager *natsclient.StreamManager
	)
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:           cfg.NATSURL,
			ClientName:    cfg.NATSClientName,
			Stream:        cfg.NATSStream,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Retention:     cfg.NATSRetention,
			CAFile:        cfg.NATSCAFile,
			CertFile:      cfg.NATSCertFile,
			KeyFile:       cfg.NATSKeyFile,
			Token:         cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager = natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	cat := catalog.Default()

	// Initialize services
	users := service.NewUserService(repos.users, log)
	if opts.SeedDemo {
		if err := users.SeedDemo(ctx); err != nil {
			return fmt.Errorf("failed to seed demo user: %w", err)
		}
		if repos.memory != nil {
			if err := repos.memory.SetCurrentUser(model.DemoUserID); err != nil {
				log.Warn("failed to persist current user", zap.Error(err))
			}
		}
	}

	apptOpts := service.AppointmentOptions{}
	if streamManager != nil {
		apptOpts.Publisher = streamManager
	}
	appointments := service.NewAppointmentService(repos.appointments, cat, apptOpts, log)
	ratings := service.NewRatingService(repos.reviews, repos.users, log)

	// Initialize LLM client
	client, images, err := newModelClients(cfg, log)
	if err != nil {
		return err
	}

	deps := assistant.Dependencies{
		Client:     client,
		Dispatcher: tool.NewDispatcher(appointments, images, log),
		Roster:     assistant.NewRoster(cat, ratings, cfg.ExpertBaseReviewCount, log),
	}
	if streamManager != nil {
		deps.Publisher = streamManager
	}

	var history assistant.HistoryPolicy = assistant.KeepAll{}
	if cfg.MaxHistoryTurns > 0 {
		history = assistant.KeepLastTurns(cfg.MaxHistoryTurns)
	}
	sessions := assistant.NewManager(deps, assistant.Options{
		Model:         cfg.LLMModel,
		MaxToolRounds: cfg.MaxToolRounds,
		History:       history,
	}, cfg.SessionIdleTimeout, log)

	sessionsDone := make(chan struct{})
	go func() {
		sessions.Run(ctx)
		close(sessionsDone)
	}()

	// Initialize handlers
	var events handler.EventHistory
	if streamManager != nil {
		events = streamManager
	}
	router := handler.NewRouter(handler.Handlers{
		Health:       handler.NewHealthHandler(natsClient, repos.pinger),
		Assistant:    handler.NewAssistantHandler(sessions, users, cfg.DefaultLanguage, log),
		Appointments: handler.NewAppointmentHandler(appointments, events, log),
		Catalog:      handler.NewCatalogHandler(cat, ratings, cfg.ExpertBaseReviewCount, log),
		Profile:      handler.NewProfileHandler(users, log),
	}, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		<-sessionsDone
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	<-sessionsDone

	log.Info("server stopped")
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repositories, error) {
	repos := &repositories{}

	switch cfg.StoreDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		repos.closers = append(repos.closers, db.Close)

		pg := store.NewPostgresStore(db)
		if err := pg.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach database: %w", err)
		}
		applied, err := pg.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("database ready", zap.Int("migrations_applied", applied))

		repos.appointments = pg.Appointments()
		repos.users = pg.Users()
		repos.reviews = pg.Reviews()
		repos.pinger = pg

	default:
		var (
			mem *store.MemoryStore
			err error
		)
		if cfg.SnapshotPath != "" {
			mem, err = store.OpenMemoryStore(cfg.SnapshotPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open snapshot: %w", err)
			}
			log.Info("snapshot loaded", zap.String("path", cfg.SnapshotPath))
		} else {
			mem = store.NewMemoryStore()
		}

		repos.appointments = mem.Appointments()
		repos.users = mem.Users()
		repos.reviews = mem.Reviews()
		repos.memory = mem
	}

	if cfg.ReviewDriver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		repos.closers = append(repos.closers, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		repos.reviews = store.NewRedisReviewRepository(rdb)
		log.Info("reviews stored in redis", zap.String("addr", cfg.RedisAddr))
	}

	return repos, nil
}

// newModelClients builds the chat client and, when an OpenAI key is present,
// the image generator.
func newModelClients(cfg *config.Config, log *logger.Logger) (llm.Client, llm.ImageGenerator, error) {
	var images llm.ImageGenerator
	if cfg.OpenAIAPIKey != "" {
		oc, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, nil, err
		}
		images = oc.WithImageModel(cfg.ImageModel)
	} else {
		log.Warn("OPENAI_API_KEY not set, image generation disabled")
	}

	apiKey := cfg.OpenAIAPIKey
	if llm.Provider(cfg.DefaultLLM) == llm.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	base, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), apiKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", cfg.DefaultLLM, err)
	}

	policy := llm.DefaultRetryPolicy()
	policy.Timeout = cfg.LLMTimeout
	policy.MaxRetries = cfg.LLMMaxRetries

	return llm.NewResilientClient(base, policy, log), images, nil
}
