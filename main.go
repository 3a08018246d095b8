package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/chative-pizzeria/agent/agents/orchestrator"
	"github.com/tanpawarit/chative-pizzeria/agent/agents/responder"
	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/data"
	llmx "github.com/tanpawarit/chative-pizzeria/agent/llm"
	statex "github.com/tanpawarit/chative-pizzeria/agent/state"
	toolx "github.com/tanpawarit/chative-pizzeria/agent/tool"
	"github.com/tanpawarit/chative-pizzeria/api"
	configx "github.com/tanpawarit/chative-pizzeria/pkg/config"
	"github.com/tanpawarit/chative-pizzeria/pkg/database"
	_ "github.com/tanpawarit/chative-pizzeria/pkg/logger/autoload"
	"github.com/tanpawarit/chative-pizzeria/pkg/metrics"
	openrouterx "github.com/tanpawarit/chative-pizzeria/pkg/openrouter"
	qstashx "github.com/tanpawarit/chative-pizzeria/pkg/qstash"
	redisx "github.com/tanpawarit/chative-pizzeria/pkg/redis"
)

const (
	MemoryBackendNone     = "none"
	MemoryBackendPostgres = "postgres"
	MemoryBackendRedis    = "redis"
	MemoryBackendUpstash  = "upstash"
)

type AppConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	MemoryBackend   string        `envconfig:"MEMORY_BACKEND" default:"none"`
	CacheTTL        time.Duration `envconfig:"CONTEXT_CACHE_TTL" default:"0s"`
	WindowSize      int           `envconfig:"CONTEXT_WINDOW_SIZE" default:"12"`
	MaxMessageChars int           `envconfig:"CONTEXT_MAX_MESSAGE_CHARS" default:"1000"`
	RetentionDays   int           `envconfig:"CONTEXT_RETENTION_DAYS" default:"7"`
	MenuImagePath   string        `envconfig:"MENU_IMAGE_PATH" default:"menu.webp"`
	AdminToken      string        `envconfig:"ADMIN_TOKEN"`
	PublicURL       string        `envconfig:"PUBLIC_URL"`
	CleanupCron     string        `envconfig:"CLEANUP_CRON" default:"0 3 * * *"`
	TurnTimeout     time.Duration `envconfig:"TURN_TIMEOUT" default:"45s"`
	SaveTimeout     time.Duration `envconfig:"SAVE_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	dbCfg := configx.MustNew[database.Config]("DATABASE")
	redisCfg := configx.MustNew[redisx.Config]("REDIS")
	upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	m := metrics.New(metrics.DefaultNamespace, nil)
	var checks []api.Option

	var db *bun.DB
	var repo data.Repository
	if dbCfg.Enabled() {
		db = database.MustOpen(*dbCfg)
		defer db.Close()
		if dbCfg.MigrateOnStart {
			models := append(data.Models(), (*statex.ChatMemory)(nil))
			if err := database.CreateTables(ctx, db, models...); err != nil {
				log.Fatal().Err(err).Msg("database migration failed")
			}
		}
		bunRepo, err := data.NewBunRepository(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize repository")
		}
		repo = bunRepo
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory repository with the default menu")
		repo = data.NewMemoryRepository(data.DefaultMenu()...)
	}
	checks = append(checks, api.WithReadinessCheck("database", repo.Ping))

	store, storeCheck := mustMemoryStore(appCfg.MemoryBackend, db, *redisCfg, *upstashCfg)
	if storeCheck != nil {
		checks = append(checks, api.WithReadinessCheck("memory", storeCheck))
	}

	convs := statex.NewManager(store,
		statex.WithWindowSize(appCfg.WindowSize),
		statex.WithMaxMessageChars(appCfg.MaxMessageChars),
		statex.WithCacheTTL(appCfg.CacheTTL),
		statex.WithCacheObserver(m.CacheLookup),
	)

	gateway, err := toolx.NewGateway(repo,
		toolx.WithMenuImagePath(appCfg.MenuImagePath),
		toolx.WithObserver(m.ToolExecuted),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tool gateway")
	}

	models, err := responder.NewRegistry(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chat models")
	}
	modelClient := openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.StageRespond))
	checks = append(checks, api.WithReadinessCheck("model", func(ctx context.Context) error {
		return openrouterx.Ping(ctx, modelClient, llmCfg.OpenRouterFor(contractx.StageRespond).Model)
	}))

	orch, err := orchestrator.New(convs, models, gateway,
		orchestrator.WithTurnTimeout(appCfg.TurnTimeout),
		orchestrator.WithSaveTimeout(appCfg.SaveTimeout),
		orchestrator.WithObserver(m),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	opts := append(checks, api.WithMetricsHandler(m.Handler()))
	var qstashClient *qstashx.Client
	if qstashCfg.Enabled() {
		qstashClient = qstashx.MustNew(*qstashCfg)
		opts = append(opts, api.WithVerifier(qstashClient))
	}

	srv := api.New(api.Config{
		AdminToken: strings.TrimSpace(appCfg.AdminToken),
		PublicURL:  strings.TrimSpace(appCfg.PublicURL),
		Retention:  time.Duration(appCfg.RetentionDays) * 24 * time.Hour,
	}, orch, convs, opts...)

	httpServer := &http.Server{
		Addr:              appCfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", appCfg.Addr).Str("memory_backend", appCfg.MemoryBackend).Msg("pizzeria agent listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), appCfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if qstashClient != nil && appCfg.PublicURL != "" {
		g.Go(func() error {
			registerCleanupSchedule(gctx, qstashClient, *appCfg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func mustMemoryStore(backend string, db *bun.DB, redisCfg redisx.Config, upstashCfg statex.UpstashRedisConfig) (statex.MemoryStore, api.Check) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", MemoryBackendNone:
		log.Warn().Msg("conversation memory is process-local only")
		return nil, nil
	case MemoryBackendPostgres:
		if db == nil {
			log.Fatal().Msg("postgres memory backend requires DATABASE_URL")
		}
		store, err := statex.NewPostgresStore(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize postgres memory store")
		}
		return store, nil
	case MemoryBackendRedis:
		client, err := redisx.New(redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis client")
		}
		store, err := statex.NewRedisStore(client,
			statex.WithKeyPrefix(redisCfg.KeyPrefix),
			statex.WithTTL(redisCfg.TTL),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis memory store")
		}
		return store, func(ctx context.Context) error { return redisx.Ping(ctx, client) }
	case MemoryBackendUpstash:
		store, err := statex.NewUpstashRedisStore(upstashCfg, statex.WithKeyPrefix(redisCfg.KeyPrefix))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize upstash memory store")
		}
		return store, nil
	default:
		log.Fatal().Str("memory_backend", backend).Msg("unknown memory backend")
		return nil, nil
	}
}

func registerCleanupSchedule(ctx context.Context, client *qstashx.Client, cfg AppConfig) {
	destination := strings.TrimRight(cfg.PublicURL, "/") + api.CleanupPath
	body := []byte(`{"retention_days":` + strconv.Itoa(cfg.RetentionDays) + `}`)

	id, err := client.Schedule(ctx, destination, cfg.CleanupCron, body)
	if err != nil {
		log.Error().Err(err).Str("destination", destination).Msg("cleanup schedule registration failed")
		return
	}
	log.Info().Str("schedule_id", id).Str("cron", cfg.CleanupCron).Msg("cleanup schedule registered")
}
