package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"certpipe/internal/archive"
	"certpipe/internal/broker"
	"certpipe/internal/config"
	"certpipe/internal/dedup"
	"certpipe/internal/enrichment"
	"certpipe/internal/extraction"
	"certpipe/internal/filtering"
	"certpipe/internal/gateway"
	"certpipe/internal/listing"
	"certpipe/internal/logger"
	"certpipe/internal/pipeline"
	"certpipe/pkg/bootstrap"
	"certpipe/pkg/circuitbreaker"
	"certpipe/pkg/health"
	"certpipe/pkg/metrics"
	"certpipe/pkg/migrations"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	gatewayClient *gateway.Client
	stream        *gateway.Stream
	pipeline      *pipeline.Pipeline
	archiveRepo   archive.Repository
	server        *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	if kp, ok := a.Producer.(*broker.KafkaProducer); ok {
		kp.SetServiceName("ingest-service")
	}

	if err := a.initGateway(ctx); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	metrics.RegisterGatewayMetrics()
	metrics.RegisterFilteringMetrics()
	metrics.RegisterEnrichmentMetrics()
	metrics.RegisterExtractionMetrics()
	metrics.RegisterDedupMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterQueryMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(a.db, a.Config.Database.MigrationsPath); err != nil {
			return err
		}
		a.Logger.Info("Migrations applied")
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.Warnw("Redis unavailable, deduplication falls back to storage only", "error", err)
	} else {
		a.redisClient = redisClient
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.Warnw("MongoDB unavailable, raw message archiving disabled", "error", err)
	} else {
		a.mongoClient = mongoClient
	}

	return nil
}

func (a *App) breaker(name string) *circuitbreaker.Wrapper {
	if !a.Config.CircuitBreaker.Enabled {
		return nil
	}

	cfg := circuitbreaker.DefaultConfig(name)
	if a.Config.CircuitBreaker.MaxRequests > 0 {
		cfg.MaxRequests = a.Config.CircuitBreaker.MaxRequests
	}
	if a.Config.CircuitBreaker.Interval > 0 {
		cfg.Interval = a.Config.CircuitBreaker.Interval
	}
	if a.Config.CircuitBreaker.Timeout > 0 {
		cfg.Timeout = a.Config.CircuitBreaker.Timeout
	}
	if a.Config.CircuitBreaker.FailureRatio > 0 && a.Config.CircuitBreaker.MinRequests > 0 {
		ratio := a.Config.CircuitBreaker.FailureRatio
		minRequests := a.Config.CircuitBreaker.MinRequests
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		}
	}

	return circuitbreaker.NewWrapper(cfg)
}

func (a *App) initGateway(ctx context.Context) error {
	a.gatewayClient = gateway.NewClient(a.Config.Gateway, a.breaker("gateway"), a.Logger)

	botID, err := a.gatewayClient.ResolveBotID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve bot account: %w", err)
	}
	a.Logger.Infow("Gateway bot account resolved", "bot_id", botID)

	if err := a.gatewayClient.CheckOnline(ctx); err != nil {
		a.Logger.Warnw("Bot account is not online yet", "error", err)
	}

	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	filter, err := filtering.NewService(a.Config.Filtering, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create filtering service: %w", err)
	}

	cache := enrichment.NewCache(a.redisClient, a.Config.Enrichment.CacheTTLSeconds)
	enricher := enrichment.NewService(a.gatewayClient, cache, a.Logger)

	extractPrompt, err := extraction.LoadPrompt(a.Config.Extraction.ExtractPromptPath, extraction.DefaultExtractPrompt)
	if err != nil {
		return err
	}
	splitPrompt, err := extraction.LoadPrompt(a.Config.Extraction.SplitPromptPath, extraction.DefaultSplitPrompt)
	if err != nil {
		return err
	}

	sessions := extraction.NewSessionStore(a.Config.Extraction.SessionCap)
	modelClient := extraction.NewClient(a.Config.Extraction, a.breaker("extraction"), sessions, a.Logger)
	engine := extraction.NewEngine(modelClient, extractPrompt, splitPrompt, a.Logger)

	var dedupCache dedup.CacheRepository
	if a.redisClient != nil {
		dedupCache = dedup.NewRedisRepository(a.redisClient)
	}
	deduper := dedup.NewService(dedupCache, dedup.NewPostgresRepository(a.db), a.Config.Deduplication, a.Logger)

	var archiver pipeline.Archiver
	if a.Config.Archive.Enabled && a.mongoClient != nil {
		repo := archive.NewRepository(a.mongoClient.Database(a.Config.Database.MongoDB.Database))
		if mongoRepo, ok := repo.(*archive.MongoDBRepository); ok {
			if err := mongoRepo.EnsureIndexes(ctx); err != nil {
				a.Logger.Warnw("Failed to create archive indexes", "error", err)
			}
		}
		archiver = repo
		a.archiveRepo = repo
	}

	assembler := listing.NewAssembler(a.Config.Pipeline.StrictAssemblyChecks)
	listings := listing.NewService(listing.NewRepository(a.db))

	a.pipeline = pipeline.New(
		a.Config.Pipeline,
		filter,
		deduper,
		enricher,
		engine,
		assembler,
		listings,
		archiver,
		a.Producer,
		a.Config.Broker.Kafka,
		a.Logger,
	)

	a.stream = gateway.NewStream(a.Config.Gateway, a.handleEvent, a.Logger)

	return nil
}

func (a *App) handleEvent(ctx context.Context, event gateway.Event) {
	msg := gateway.Normalize(event, time.Now())
	if err := a.pipeline.Submit(ctx, msg); err != nil {
		a.Logger.Warnw("Failed to enqueue message", "error", err, "message_id", msg.MessageID)
	}
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	healthRegistry.Register(health.NewGatewayChecker(a.gatewayClient.CheckOnline))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.pipeline.Run(gCtx)
	})

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Gateway stream starting", "url", a.Config.Gateway.WebSocketURL)
		return a.stream.Run(gCtx)
	})

	if a.archiveRepo != nil && a.Config.Archive.RetentionDays > 0 {
		g.Go(func() error {
			a.runArchiveRetention(gCtx)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) runArchiveRetention(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.archiveRepo.PurgeOlderThan(ctx, a.Config.Archive.RetentionDays)
			if err != nil {
				a.Logger.Warnw("Archive retention purge failed", "error", err)
				continue
			}
			a.Logger.Infow("Archive retention purge completed",
				"removed", removed,
				"retention_days", a.Config.Archive.RetentionDays,
			)
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		return a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
	})
}
