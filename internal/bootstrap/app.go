package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/credentials"
	"intake-backend/internal/documents"
	"intake-backend/internal/ingest"
	"intake-backend/internal/pipeline"
	"intake-backend/internal/quality"
	"intake-backend/internal/queue"
	"intake-backend/internal/services/health"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/server"
	"intake-backend/internal/shared/storage/db"
	"intake-backend/internal/shared/storage/object"
	localstore "intake-backend/internal/shared/storage/object/local"
	memorystore "intake-backend/internal/shared/storage/object/memory"
	s3store "intake-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for every entrypoint.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	Queue            queue.Publisher
	Consumer         *queue.JetStreamPublisher
	DocumentsRepo    documents.Repo
	IngestLogs       ingest.LogRepo
	Verifier         credentials.Verifier
	DocumentsService *documents.Service
	PipelineService  *pipeline.Service
	IngestService    *ingest.Service
	Health           *health.Service
	DocumentsHandler *documents.Handler
	PipelineHandler  *pipeline.Handler
	IngestHandler    *ingest.Handler

	closers []func() error
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildQueue(ctx, app); err != nil {
		return nil, err
	}

	if err := buildServices(app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   app.Config,
		Verifier: app.Verifier,
		Handlers: []server.RouteRegistrar{
			app.DocumentsHandler,
			app.PipelineHandler,
			app.IngestHandler,
		},
		Health: func(c *gin.Context) map[string]any {
			return app.Health.Status(c.Request.Context())
		},
	})

	return app, nil
}

// Close releases broker connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("bootstrap: close: %v", err)
		}
	}
	a.closers = nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "memory":
		return memorystore.New(), nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.QueueBackend {
	case "sqs":
		pub, err := queue.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.SQSQueueURLs)
		if err != nil {
			return err
		}
		app.Queue = pub
	case "nats":
		pub, err := queue.NewJetStreamPublisher(ctx, cfg.NATSURL, cfg.NATSStream)
		if err != nil {
			return err
		}
		app.Queue = pub
		app.Consumer = pub
		app.closers = append(app.closers, pub.Close)
	default:
		if !isDevLike(cfg.Env) {
			return errors.New("QUEUE_BACKEND=memory is only allowed in dev")
		}
		log.Printf("bootstrap: using in-memory job queue; jobs are not delivered to workers")
		app.Queue = queue.NewMemoryPublisher()
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var docRepo documents.Repo
	var logRepo ingest.LogRepo

	static := credentials.NewStatic(app.Config.APIKeys)
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		logRepo = &ingest.PGLogRepo{DB: app.DB}
		app.Verifier = credentials.Chain{static, &credentials.PGVerifier{DB: app.DB}}
	} else {
		docRepo = documents.NewMemoryRepo()
		logRepo = ingest.NewMemoryLogRepo()
		app.Verifier = static
	}

	docSvc := documents.NewService(docRepo)

	pipeSvc := pipeline.NewService(docSvc, app.Queue)
	if app.Config.SweepStaleAfter > 0 {
		pipeSvc.StaleAfter = app.Config.SweepStaleAfter
	}

	ingestSvc := &ingest.Service{
		Docs:        docSvc,
		Pipeline:    pipeSvc,
		Store:       app.Store,
		Logs:        logRepo,
		Scorer:      quality.NewScorer(),
		Gate:        quality.Gate{MinPassScore: app.Config.QualityMinPassScore},
		Secrets:     app.Config.WebhookSecrets,
		BlobTimeout: app.Config.BlobTimeout,
	}

	app.DocumentsRepo = docRepo
	app.IngestLogs = logRepo
	app.DocumentsService = docSvc
	app.PipelineService = pipeSvc
	app.IngestService = ingestSvc
	app.Health = health.NewService(app.DB)
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.PipelineHandler = pipeline.NewHandler(pipeSvc)
	app.IngestHandler = ingest.NewHandler(ingestSvc)

	if app.DocumentsHandler == nil || app.PipelineHandler == nil || app.IngestHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}
