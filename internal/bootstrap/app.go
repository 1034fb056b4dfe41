package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/llm"
	openai "medocs-backend/internal/llm/openai"
	"medocs-backend/internal/medications"
	"medocs-backend/internal/processing"
	"medocs-backend/internal/queue"
	"medocs-backend/internal/review"
	"medocs-backend/internal/services/health"
	"medocs-backend/internal/shared/auth"
	"medocs-backend/internal/shared/config"
	"medocs-backend/internal/shared/server"
	"medocs-backend/internal/shared/storage/db"
	"medocs-backend/internal/shared/storage/object"
	localstore "medocs-backend/internal/shared/storage/object/local"
	miniostore "medocs-backend/internal/shared/storage/object/minio"
	s3store "medocs-backend/internal/shared/storage/object/s3"
	"medocs-backend/internal/shared/telemetry"
	"medocs-backend/internal/uploads"
)

const (
	nameCacheSize = 4096
	nameCacheTTL  = 10 * time.Minute
)

// App holds shared dependencies.
type App struct {
	Config             config.Config
	Router             *gin.Engine
	DB                 *sql.DB
	Store              object.ObjectStore
	Queue              queue.Client
	LLM                llm.Client
	DocumentsRepo      documents.DocumentsRepo
	MedicationsRepo    medications.Repo
	DocumentsService   *documents.Service
	MedicationsService *medications.Service
	ReviewService      *review.Service
	Processing         *processing.Manager
	Health             *health.Service
}

// Options lets callers replace external dependencies, mainly in tests.
type Options struct {
	LLM   llm.Client
	Queue queue.Client
}

// Close releases the database pool, if any.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(context.Background(), cfg, Options{})
}

// BuildWith is Build with overridable dependencies.
func BuildWith(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = config.StoreLocal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	telemetry.Configure(os.Stdout, cfg.LogFormat)
	auth.Configure(cfg.JWTSecret, cfg.Env)
	if cfg.JWKSURL != "" {
		keys, err := auth.NewRemoteKeySet(ctx, cfg.JWKSURL, cfg.JWKSRefresh)
		if err != nil {
			return nil, err
		}
		auth.UseKeySet(keys)
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient := opts.Queue
	if queueClient == nil {
		queueClient, err = buildQueue(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	llmClient := opts.LLM
	if llmClient == nil {
		llmClient, err = buildLLM(cfg)
		if err != nil {
			return nil, err
		}
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		LLM:    llmClient,
	}
	buildServices(app)

	var presigner object.Presigner
	if p, ok := store.(object.Presigner); ok {
		presigner = p
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Health:      app.Health,
		Documents:   documents.NewHandler(app.DocumentsService),
		Processing:  processing.NewHandler(app.Processing, app.DocumentsService, cfg.ProcessingMode),
		Medications: medications.NewHandler(app.MedicationsService),
		Review:      review.NewHandler(app.ReviewService, app.DocumentsService),
		Uploads:     uploads.NewHandler(presigner),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, db.DefaultOptions(db.ProfileLambda).Override(PoolOverrides(cfg)))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.DefaultOptions(db.ProfileServer).Override(PoolOverrides(cfg)))
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "err": err})
			return nil, nil
		}
		return nil, err
	}

	if !db.IsLambdaRuntime() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

// PoolOverrides maps the DB_* settings onto pool options.
func PoolOverrides(cfg config.Config) db.Options {
	return db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	}
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case config.StoreS3:
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case config.StoreMinio:
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.ProcessingQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.ProcessingQueueURL, cfg.AWSRegion)
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	if cfg.LLMProvider != "openai" {
		return llm.PlaceholderClient{}, nil
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && isDevLike(cfg.Env) {
		telemetry.Warn("bootstrap.llm_placeholder", map[string]any{"reason": "OPENAI_API_KEY empty"})
		return llm.PlaceholderClient{}, nil
	}
	client, err := OpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// OpenAIClient builds the OpenAI client described by cfg.
func OpenAIClient(cfg config.Config) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithMaxAttempts(cfg.OpenAIMaxAttempts),
		openai.WithoutZeroTemperature(cfg.NoZeroTempModels...),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAITimeout(), opts...)
}

func buildServices(app *App) {
	var (
		docRepo documents.DocumentsRepo
		medRepo medications.Repo
	)
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		medRepo = &medications.PGRepo{DB: app.DB}
	} else {
		memDocs := documents.NewMemoryRepo()
		docRepo = memDocs
		medRepo = medications.NewMemoryRepoFor(memDocs)
	}

	app.DocumentsRepo = docRepo
	app.MedicationsRepo = medRepo
	app.DocumentsService = &documents.Service{
		Store:       app.Store,
		Repo:        docRepo,
		Medications: medRepo,
	}
	app.MedicationsService = &medications.Service{
		Repo:      medRepo,
		Documents: docRepo,
		Names:     medications.NewNameCache(nameCacheSize, nameCacheTTL),
	}
	app.ReviewService = review.NewService(docRepo)
	app.Processing = &processing.Manager{
		Docs:        docRepo,
		Medications: medRepo,
		Store:       app.Store,
		LLM:         app.LLM,
		Queue:       app.Queue,
	}
	if app.DB != nil {
		app.Health = health.NewService(app.DB)
	} else {
		app.Health = health.NewService(nil)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
