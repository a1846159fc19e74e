package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/domain"
	"quiz-event-service/internal/infra/postgres"
	pgmigrations "quiz-event-service/internal/infra/postgres/migrations"
	infraredis "quiz-event-service/internal/infra/redis"
)

func TestEventLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()

	hostID, aliceID := seedUsers(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizzes := infraredis.NewQuizCache(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)

	store := postgres.NewStore(db)
	recorder := audit.NewRecorder(store, 64)

	quizSvc := app.NewQuizService(store, recorder)
	eventSvc := app.NewEventService(store, recorder)
	attemptSvc := app.NewAttemptService(store, quizzes, recorder)
	boardSvc := app.NewLeaderboardService(store)

	quiz, err := quizSvc.Create(ctx, hostID, app.CreateQuizRequest{
		Title: "general knowledge",
		Questions: []app.QuestionInput{
			{Type: domain.QuestionFreeText, Prompt: "Capital of France?", Points: 2, CorrectAnswer: "Paris"},
			{Type: domain.QuestionSingleChoice, Prompt: "2 + 2?", Points: 3, Options: []app.OptionInput{
				{Text: "3"}, {Text: "4", Correct: true}, {Text: "5"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	event, err := eventSvc.Create(ctx, hostID, app.CreateEventRequest{
		QuizID:          quiz.ID,
		Name:            "friday night",
		DurationSeconds: 600,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if len(event.JoinCode) != 8 {
		t.Fatalf("join code = %q", event.JoinCode)
	}

	// the schema's unique index backs the code redraw loop
	clash := domain.Event{
		QuizID: quiz.ID, HostID: hostID, Name: "clash",
		JoinCode: event.JoinCode, Status: domain.EventOpen, DurationSeconds: 60,
	}
	if err := store.CreateEvent(ctx, &clash); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}

	if _, err := eventSvc.Join(ctx, aliceID, strings.ToLower(event.JoinCode)); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := eventSvc.Join(ctx, aliceID, event.JoinCode); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on double join, got %v", err)
	}
	if err := eventSvc.Start(ctx, hostID, event.ID); err != nil {
		t.Fatalf("start event: %v", err)
	}

	if _, err := attemptSvc.Start(ctx, aliceID, event.ID); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if _, err := attemptSvc.Start(ctx, aliceID, event.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second attempt, got %v", err)
	}

	q1, q2 := quiz.Questions[0], quiz.Questions[1]
	var correctOption int64
	for _, o := range q2.Options {
		if o.Correct {
			correctOption = o.ID
		}
	}
	answer := "paris"
	result, err := attemptSvc.Submit(ctx, aliceID, event.ID, []domain.AnswerSubmission{
		{QuestionID: q1.ID, TextAnswer: &answer},
		{QuestionID: q2.ID, SelectedOptionIDs: []int64{correctOption}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 5 || result.MaxScore != 5 {
		t.Fatalf("score = %d/%d, want 5/5", result.Score, result.MaxScore)
	}

	entries, err := boardSvc.TopForEvent(ctx, event.ID, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != aliceID || entries[0].Score != 5 {
		t.Fatalf("leaderboard = %+v", entries)
	}

	recorder.Close()
	var auditCount int
	if err := db.NewSelect().Table("audit_logs").ColumnExpr("count(*)").Scan(ctx, &auditCount); err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditCount == 0 {
		t.Fatalf("expected audit rows to be written")
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUsers(t *testing.T, ctx context.Context, db *bun.DB) (hostID, aliceID int64) {
	t.Helper()
	rows, err := db.QueryContext(ctx,
		`INSERT INTO users (display_name, role) VALUES ('host', 'user'), ('alice', 'user') RETURNING id`)
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	defer rows.Close()
	ids := make([]int64, 0, 2)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan user id: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 user ids, got %d", len(ids))
	}
	return ids[0], ids[1]
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
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
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
