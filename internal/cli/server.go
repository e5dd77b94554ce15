package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"karoot/internal/app"
	"karoot/internal/config"
	"karoot/internal/infra/memory"
	"karoot/internal/infra/postgres"
	rediscache "karoot/internal/infra/redis"
	"karoot/internal/infra/sqlite"
	transport "karoot/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type store interface {
	app.Store
	io.Closer
}

// runnableRelay is a relay that needs a background receive loop.
type runnableRelay interface {
	app.Relay
	Run(ctx context.Context) error
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	var questions app.QuestionCache
	if cfg.Cache.Driver == config.DriverRedis {
		questions = rediscache.NewQuestionCache(redisClient, st, cacheTTL)
	} else {
		questions = memory.NewQuestionCache(st, cacheTTL)
	}

	var relay app.Relay
	switch cfg.Relay.Driver {
	case config.DriverRedis:
		relay = rediscache.NewRelay(redisClient)
	case config.DriverPostgres:
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect relay pool: %w", err)
		}
		defer pool.Close()
		relay = postgres.NewRelay(pool)
	default:
		relay = app.NewHub()
	}

	service := app.NewGameService(st, questions, relay, app.Options{
		QuestionDuration: config.TTLDuration(cfg.Game.QuestionDuration, 15*time.Second),
		CodeAttempts:     cfg.Game.CodeAttempts,
	})
	router, throttle := transport.NewRouter(service, transport.RouterConfig{
		PublicURL: cfg.Server.PublicURL,
		JoinRate:  rate.Limit(cfg.Join.Rate),
		JoinBurst: cfg.Join.Burst,
		JoinIdle:  config.TTLDuration(cfg.Join.Idle, 10*time.Minute),
	})
	defer throttle.Stop()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if r, ok := relay.(runnableRelay); ok {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Printf("starting karoot on :%s store=%s relay=%s cache=%s", finalPort, cfg.Store.Driver, cfg.Relay.Driver, cfg.Cache.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLite.Path)
	case config.DriverPostgres:
		st := postgres.Open(cfg.Postgres.URL)
		if err := migrateDB(ctx, st.DB()); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return st, nil
	default:
		return memory.NewStore(), nil
	}
}
