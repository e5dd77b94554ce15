package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
	"karoot/internal/app"
	"karoot/internal/domain"
	"karoot/internal/infra/postgres"
	pgmigrations "karoot/internal/infra/postgres/migrations"
	infraredis "karoot/internal/infra/redis"
	"karoot/internal/infra/storetest"
)

const host = "host-1"

func TestPostgresStoreConformance(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	store := migratedStore(t, ctx, pgURL)
	defer store.Close()

	storetest.Run(t, func(t *testing.T) app.Store {
		if _, err := store.DB().ExecContext(ctx, `TRUNCATE answers, options, questions, participants, games CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return store
	})
}

func TestPostgresRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	publisher := postgres.NewRelay(pool)
	receiver := postgres.NewRelay(pool)
	go func() { _ = receiver.Run(ctx) }()
	waitReady(t, receiver.Ready())

	assertRelayed(t, ctx, publisher, receiver)
}

func TestGameOverRealBackends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	store := migratedStore(t, ctx, pgURL)
	defer store.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	relay := infraredis.NewRelay(redisClient)
	go func() { _ = relay.Run(ctx) }()
	waitReady(t, relay.Ready())

	cache := infraredis.NewQuestionCache(redisClient, store, 5*time.Minute)
	service := app.NewGameService(store, cache, relay, app.Options{})

	game, err := service.CreateGame(ctx, host, "Carrot Quiz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	q, err := service.AddQuestion(ctx, host, game.ID, "Which vegetable is orange?")
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	options := []app.OptionInput{{Text: "Carrot", IsCorrect: true}, {Text: "Leek"}, {Text: "Kale"}, {Text: "Pea"}}
	if _, err := service.EditQuestion(ctx, host, game.ID, q.ID, q.Text, 1, options); err != nil {
		t.Fatalf("edit question: %v", err)
	}
	if _, err := service.Publish(ctx, host, game.ID, ""); err != nil {
		t.Fatalf("publish: %v", err)
	}

	alice, _, err := service.JoinGame(ctx, game.Code, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := service.JoinGame(ctx, game.Code, "Alice"); err == nil || !strings.Contains(err.Error(), "taken") {
		t.Fatalf("expected duplicate nickname to be rejected, got %v", err)
	}
	if _, err := service.StartGame(ctx, host, game.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	monitor, err := service.Monitor(ctx, host, game.ID)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	defer monitor.Close()

	session := service.NewPlayerSession(game.ID, alice.ID)
	view, err := session.View(ctx)
	if err != nil {
		t.Fatalf("player view: %v", err)
	}
	result, err := session.Submit(ctx, view.Question.Options[0].ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Awarded < 500 {
		t.Fatalf("expected correct answer, got %+v", result)
	}

	// earlier lifecycle events may still be in flight through redis
	deadline := time.After(5 * time.Second)
	for answered := false; !answered; {
		select {
		case event := <-monitor.Events():
			if err := monitor.Apply(ctx, event); err != nil {
				t.Fatalf("apply: %v", err)
			}
			answered = event.Type == domain.EventAnswerCreated
		case <-deadline:
			t.Fatalf("timed out waiting for relayed answer")
		}
	}
	if tally := monitor.Tally(); len(tally) != 4 || tally[0].Count != 1 {
		t.Fatalf("unexpected live tally: %+v", tally)
	}

	finished, err := service.NextQuestion(ctx, host, game.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if finished.Status != domain.StatusFinished {
		t.Fatalf("expected finished game, got %s", finished.Status)
	}
}

func assertRelayed(t *testing.T, ctx context.Context, publisher, receiver app.Relay) {
	t.Helper()
	events, unsubscribe, err := receiver.Subscribe(ctx, "game-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	game := domain.Game{ID: "game-1", Status: domain.StatusLobby}
	if err := publisher.Publish(ctx, domain.Event{Type: domain.EventGameUpdated, GameID: game.ID, Game: &game}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case event := <-events:
		if event.Game == nil || event.Game.Status != domain.StatusLobby {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for relayed event")
	}
}

func migratedStore(t *testing.T, ctx context.Context, dsn string) *postgres.Store {
	t.Helper()
	store := postgres.Open(dsn)
	migrator := migrate.NewMigrator(store.DB(), pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("relay did not become ready")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "karoot", "POSTGRES_PASSWORD": "karootpass", "POSTGRES_DB": "karoot"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://karoot:karootpass@%s:%s/karoot?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(context.Background())
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(context.Background())
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
