package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/config"
	"quiz-event-service/internal/domain"
	"quiz-event-service/internal/infra/memory"
	"quiz-event-service/internal/infra/postgres"
	redisinfra "quiz-event-service/internal/infra/redis"
	transport "quiz-event-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz event server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var (
		store  app.Store
		loader memory.QuizLoader
		sink   audit.Sink
	)

	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := postgres.NewStore(db)
		store = pgStore
		loader = postgres.NewQuizLoader(pool)

		recorder := audit.NewRecorder(pgStore, cfg.Audit.Buffer)
		defer recorder.Close()
		sink = recorder
	} else {
		log.Printf("no postgres configured, running in-memory demo mode")
		memStore := memory.NewStore()
		seedDemoData(ctx, memStore)
		store = memStore
		loader = memory.NewStoreQuizLoader(memStore)
		sink = audit.Noop{}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizSource
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		quizzes = redisinfra.NewQuizCache(client, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	handler := transport.NewHandler(
		app.NewQuizService(store, sink),
		app.NewEventService(store, sink),
		app.NewAttemptService(store, quizzes, sink),
		app.NewLeaderboardService(store),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz event service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoData loads a host and a sample quiz so the API is usable without a
// database.
func seedDemoData(ctx context.Context, store *memory.Store) {
	host := store.PutUser(domain.User{DisplayName: "demo-host", Role: domain.RoleAdmin})
	store.PutUser(domain.User{DisplayName: "demo-player", Role: domain.RoleUser})

	quiz := domain.Quiz{
		OwnerID: host.ID,
		Title:   "Demo quiz",
		Questions: []domain.Question{
			{
				Type:          domain.QuestionFreeText,
				Prompt:        "What is the capital of France?",
				Points:        2,
				Position:      0,
				CorrectAnswer: "Paris",
			},
			{
				Type:     domain.QuestionSingleChoice,
				Prompt:   "What is 2 + 2?",
				Points:   1,
				Position: 1,
				Options: []domain.Option{
					{Text: "3", Position: 0},
					{Text: "4", Correct: true, Position: 1},
					{Text: "5", Position: 2},
				},
			},
		},
	}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		log.Printf("seed demo quiz: %v", err)
		return
	}
	log.Printf("demo mode: quiz %d owned by user %d", quiz.ID, host.ID)
}
