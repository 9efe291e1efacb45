package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appControllers "github.com/yigit/chatsphere/internal/app/controllers"
	appMigrations "github.com/yigit/chatsphere/internal/app/migrations"
	appRepos "github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/app/repositories/memory"
	appRoutes "github.com/yigit/chatsphere/internal/app/routes"
	appServices "github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/config"
	"github.com/yigit/chatsphere/internal/db"
	appMiddleware "github.com/yigit/chatsphere/internal/middleware"
	pkgAuth "github.com/yigit/chatsphere/internal/pkg/auth"
	"github.com/yigit/chatsphere/internal/pkg/eventbus"
	"github.com/yigit/chatsphere/internal/pkg/helpers"
	"github.com/yigit/chatsphere/internal/pkg/logger"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
	"github.com/yigit/chatsphere/internal/pkg/redisx"
	"github.com/yigit/chatsphere/internal/pkg/validation"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
	"github.com/yigit/chatsphere/internal/seed"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	Repos           *appRepos.Repositories
	Metrics         *metrics.Metrics
	JWTService      *pkgAuth.JWTService
	AuthService     *appServices.AuthService
	UserService     appServices.UserService
	Membership      *appServices.MembershipService
	ChatService     appServices.ChatService
	AuthMiddleware  *appMiddleware.AuthMiddleware
	Controllers     appRoutes.Controllers
	WSRouter        *websocket.Router
	WSHandler       *websocket.Handler
	Bus             *eventbus.Bus // nil unless Kafka is enabled
	PostLimiter     appMiddleware.Limiter
	IdempotencyKeys appMiddleware.KeyStore
	Logger          zerolog.Logger
}

// Infrastructure holds the external connections the dependencies are built on
type Infrastructure struct {
	Repos    *appRepos.Repositories
	Postgres *db.PostgresDB // nil with the memory driver
	Redis    *redis.Client  // nil unless Redis is enabled
}

// Close releases the connections
func (i *Infrastructure) Close() error {
	var err error
	if i.Redis != nil {
		err = i.Redis.Close()
	}
	if i.Postgres != nil {
		i.Postgres.Close()
	}
	return err
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupInfrastructure opens the store selected by database.driver and, when enabled, Redis
func SetupInfrastructure(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		lgr.Warn().Msg("Using the in-memory store; data is lost on restart")
		infra.Repos = memory.NewRepositories()
	default:
		pg, err := SetupDatabase(ctx, cfg, lgr)
		if err != nil {
			return nil, err
		}
		infra.Postgres = pg
		infra.Repos = appRepos.NewRepositories(pg.Pool)
	}

	if cfg.Redis.Enabled {
		rdb, err := redisx.NewClient(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		lgr.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
		infra.Redis = rdb
	}

	return infra, nil
}

// SetupDatabase establishes the database connection and runs migrations.
func SetupDatabase(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*db.PostgresDB, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(ctx, cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	migrationsDir := cfg.Server.MigrationsDir
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		database.Close()
		return nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}

	migrator := appMigrations.NewMigrator(database.Pool, logger.Component(lgr, "migrator"))
	if err := migrator.MigrateFromDirectory(ctx, migrationsDir); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		database.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	return database, nil
}

// BuildDependencies initializes application services, the push layer and controllers.
func BuildDependencies(cfg *config.Config, infra *Infrastructure, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr, Repos: infra.Repos, Metrics: metrics.New()}

	var (
		tracker  websocket.PresenceTracker
		presence appServices.PresenceReader
	)
	if infra.Redis != nil {
		redisPresence := redisx.NewPresence(infra.Redis, redisx.DefaultPresenceTTL)
		tracker, presence = redisPresence, redisPresence
	}

	deps.WSRouter = websocket.NewRouter(
		appServices.MemberLookup{Members: deps.Repos.Members},
		tracker,
		deps.Metrics,
		logger.Component(lgr, "websocket"),
	)
	if presence == nil {
		presence = deps.WSRouter
	}

	var publisher appServices.EventPublisher = deps.WSRouter
	if cfg.Kafka.Enabled {
		deps.Bus = eventbus.New(eventbus.Config{
			Brokers:     cfg.KafkaBrokers(),
			Topic:       cfg.Kafka.Topic,
			GroupPrefix: cfg.Kafka.GroupPrefix,
		}, deps.WSRouter, logger.Component(lgr, "eventbus"))
		publisher = deps.Bus
	}

	clock := appServices.Clock(appServices.SystemClock)
	serviceLog := logger.Component(lgr, "chat")
	dispatcher := appServices.NewDispatcher(deps.Repos.Members, publisher, deps.Metrics, serviceLog)
	deps.Membership = appServices.NewMembershipService(deps.Repos, dispatcher, clock, serviceLog)
	unread := appServices.NewUnreadCalculator(deps.Repos, cfg.Chat.UnreadCap)
	summary := appServices.NewSummaryCache(deps.Repos, unread, serviceLog)
	messages := appServices.NewMessageLog(deps.Repos, summary, dispatcher, deps.Metrics, clock, cfg.Chat.MaxMessageLength, serviceLog)
	deps.ChatService = appServices.NewChatService(appServices.ChatServiceDeps{
		Repos:       deps.Repos,
		Membership:  deps.Membership,
		Messages:    messages,
		Summary:     summary,
		Unread:      unread,
		Dispatcher:  dispatcher,
		Presence:    presence,
		Clock:       clock,
		PageSize:    cfg.Chat.DefaultPageSize,
		MaxPageSize: cfg.Chat.MaxPageSize,
	}, serviceLog)

	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenExp: helpers.ParseDuration(cfg.JWT.AccessTokenExpiration, 720*time.Hour),
		TokenIssuer:    cfg.JWT.Issuer,
	})
	authLog := logger.Component(lgr, "auth")
	deps.AuthService = appServices.NewAuthService(deps.Repos.Users, deps.JWTService, authLog)
	deps.UserService = appServices.NewUserService(deps.Repos.Users, authLog)
	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.AuthService)
	deps.WSHandler = websocket.NewHandler(deps.WSRouter, deps.AuthService, cfg.Chat.SendBuffer, logger.Component(lgr, "websocket"))

	if infra.Redis != nil {
		if cfg.RateLimit.Enabled {
			deps.PostLimiter = redisx.NewLimiter(infra.Redis, int64(cfg.RateLimit.Messages),
				helpers.ParseDuration(cfg.RateLimit.Window, 10*time.Second))
		}
		deps.IdempotencyKeys = redisx.NewIdempotency(infra.Redis, redisx.DefaultIdempotencyTTL)
	}

	deps.Controllers = appRoutes.Controllers{
		Auth:    appControllers.NewAuthController(deps.AuthService, authLog),
		User:    appControllers.NewUserController(deps.UserService),
		Chat:    appControllers.NewChatController(deps.ChatService, serviceLog),
		Message: appControllers.NewMessageController(deps.ChatService),
	}

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies) *gin.Engine {
	switch strings.ToLower(cfg.Server.Mode) {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	validation.RegisterBindingRules()

	router := gin.New()
	router.Use(gin.Recovery(), appMiddleware.RequestLogger(logger.Component(deps.Logger, "http")))

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	appRoutes.SetupRouter(router, deps.Controllers, appRoutes.Options{
		AuthMiddleware:  deps.AuthMiddleware,
		Membership:      deps.Membership,
		WebSocket:       deps.WSHandler,
		Metrics:         deps.Metrics,
		MetricsPath:     metricsPath,
		PostLimiter:     deps.PostLimiter,
		IdempotencyKeys: deps.IdempotencyKeys,
		Logger:          deps.Logger,
	})

	return router
}

// SeedDemoData creates the demo users and chats when seeding is enabled
func SeedDemoData(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	if !cfg.Seed.Enabled {
		return nil
	}
	seeder := seed.NewSeeder(deps.AuthService, deps.Repos.Users, deps.ChatService, logger.Component(deps.Logger, "seed"))
	return seeder.CreateDefaultData(ctx, seed.Options{Users: cfg.Seed.Users, Seed: time.Now().UnixNano()})
}
