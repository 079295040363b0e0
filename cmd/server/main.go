package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/focusflow/modules/account"
	"github.com/dmitrymomot/focusflow/pkg/authn"
	"github.com/dmitrymomot/focusflow/pkg/billing"
	"github.com/dmitrymomot/focusflow/pkg/config"
	"github.com/dmitrymomot/focusflow/pkg/email"
	"github.com/dmitrymomot/focusflow/pkg/httpserver"
	"github.com/dmitrymomot/focusflow/pkg/logger"
	"github.com/dmitrymomot/focusflow/pkg/pg"
	"github.com/dmitrymomot/focusflow/pkg/ratelimiter"
	"github.com/dmitrymomot/focusflow/pkg/redis"
)

type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"focusflow-api"`
	PlansPath   string `env:"PLANS_PATH" envDefault:"config/plans.yml"`

	RateLimitCapacity int           `env:"RATE_LIMIT_CAPACITY" envDefault:"120"`
	RateLimitRefill   int           `env:"RATE_LIMIT_REFILL" envDefault:"120"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"1m"`
}

func main() {
	var (
		appCfg    appConfig
		logCfg    logger.Config
		httpCfg   httpserver.Config
		pgCfg     pg.Config
		redisCfg  redis.Config
		authCfg   authn.Config
		paddleCfg billing.PaddleConfig
		emailCfg  email.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&authCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&emailCfg)

	log := logger.NewFromConfig(logCfg, logger.WithService(appCfg.ServiceName))
	logger.SetAsDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, appCfg, httpCfg, pgCfg, redisCfg, authCfg, paddleCfg, emailCfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	appCfg appConfig,
	httpCfg httpserver.Config,
	pgCfg pg.Config,
	redisCfg redis.Config,
	authCfg authn.Config,
	paddleCfg billing.PaddleConfig,
	emailCfg email.Config,
	log *slog.Logger,
) error {
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log.With(logger.Component("migrations"))); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	verifier, err := authn.NewVerifier([]byte(authCfg.SigningKey))
	if err != nil {
		return fmt.Errorf("authn: %w", err)
	}

	provider, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return fmt.Errorf("billing: %w", err)
	}

	catalog, err := account.LoadCatalog(appCfg.PlansPath)
	if err != nil {
		return fmt.Errorf("plan catalog: %w", err)
	}

	var mailer email.EmailSender
	if emailCfg.PostmarkServerToken != "" {
		mailer, err = email.NewPostmarkClient(emailCfg)
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
	} else {
		log.InfoContext(ctx, "no Postmark token configured, emails go to the log")
		mailer = email.NewDevSender(log.With(logger.Component("email")))
	}

	svc := account.NewService(
		account.NewPGStore(pool),
		provider,
		catalog,
		account.WithMailer(mailer),
		account.WithLogger(log.With(logger.Component("account"))),
	)
	accountHandler := account.NewHandler(svc, log.With(logger.Component("http")))

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(redisClient), ratelimiter.Config{
		Capacity:       appCfg.RateLimitCapacity,
		RefillRate:     appCfg.RateLimitRefill,
		RefillInterval: appCfg.RateLimitInterval,
	})
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(ratelimiter.Middleware(limiter, ratelimiter.KeyByIP))

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))
	r.Mount("/v1", accountHandler.Router(authn.Middleware(verifier)))

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}
