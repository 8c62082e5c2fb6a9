package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"quiz-engine/internal/app"
	"quiz-engine/internal/catalog"
	"quiz-engine/internal/config"
	"quiz-engine/internal/infra/memory"
	"quiz-engine/internal/infra/postgres"
	infraredis "quiz-engine/internal/infra/redis"
	transport "quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.Log)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = openBun(cfg.Postgres.URL)
		defer db.Close()
	}

	questions, err := questionStore(cfg, pool, log)
	if err != nil {
		return err
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		questions = infraredis.NewCachedStore(redisClient, questions, quizTTL, log)
	} else {
		questions = memory.NewCachedStore(questions, quizTTL)
	}

	shuffler := app.NewShuffler(nil)
	pools := app.NewPoolFetcher(app.DefaultStrategies(questions), cfg.Quiz.Categories, shuffler, log)

	var (
		sinks  app.FanoutSink
		reader app.ResultReader
		opts   = []app.ServiceOption{app.WithShuffler(shuffler), app.WithLogger(log)}
	)
	if db != nil {
		pgResults := postgres.NewResultStore(db)
		sinks = append(sinks, pgResults)
		reader = pgResults
	}
	if redisClient != nil {
		redisResults := infraredis.NewResultStore(redisClient, cfg.Quiz.ResultCap, redisTTL)
		sinks = append(sinks, redisResults)
		if reader == nil {
			reader = redisResults
		}
		opts = append(opts, app.WithDashboardCache(redisResults))
	}
	if len(sinks) == 0 {
		memResults := memory.NewResultStore()
		sinks = append(sinks, memResults)
		reader = memResults
	}
	opts = append(opts, app.WithResultReader(reader))

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}
	service := app.NewQuizService(store, pools, sinks, opts...)

	router := transport.NewRouter(
		transport.NewWSHandler(service, log),
		transport.NewResultsHandler(service, log),
		pools.Categories(),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", finalPort).Info("starting quiz engine")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		log.WithError(err).Error("failed to start server")
		return err
	case <-ctx.Done():
		log.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// questionStore picks Postgres when configured, otherwise the catalog file in memory.
func questionStore(cfg config.Config, pool *pgxpool.Pool, log logrus.FieldLogger) (app.QuestionStore, error) {
	if pool != nil {
		return postgres.NewQuestionStore(pool), nil
	}
	path := cfg.Quiz.Catalog
	if path == "" {
		path = "config/quizzes.json"
	}
	c, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"catalog": path, "categories": c.Categories()}).Info("serving questions from catalog")
	return memory.FromCatalog(c), nil
}
