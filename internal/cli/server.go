package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duel-quiz-service/internal/app"
	"duel-quiz-service/internal/config"
	"duel-quiz-service/internal/domain"
	"duel-quiz-service/internal/infra/memory"
	pgloader "duel-quiz-service/internal/infra/postgres"
	redisinfra "duel-quiz-service/internal/infra/redis"
	"duel-quiz-service/internal/logging"
	transport "duel-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
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

	logger := logging.New(logging.FileConfig{
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionPools())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questionRepo app.QuestionRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questionRepo = memory.NewQuestionRepository(loader, questionTTL)
	}

	var sessions app.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var archive app.ArchiveStore
	switch {
	case pool != nil:
		archive = pgloader.NewArchiveStore(pool)
	case redisClient != nil:
		archive = redisinfra.NewArchiveStore(redisClient)
	default:
		archive = memory.NewArchiveStore()
	}

	profiles := memory.NewProfileStore()

	service := app.NewDuelService(app.Config{
		QuestionCount: cfg.Duel.QuestionCount,
		Composition:   cfg.Duel.Composition,
		TimeLimit:     time.Duration(cfg.Duel.TimeLimitSeconds) * time.Second,
		RatingK:       cfg.Duel.RatingK,
		RatingFloor:   cfg.Duel.RatingFloor,
		TimerTick:     time.Second,
	}, sessions, questionRepo, profiles, archive, app.NewLogNotifier(logger), logger)

	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Retry persistence writes that exhausted their inline backoff.
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-reconcileCtx.Done():
				return
			case <-ticker.C:
				service.FlushPending(reconcileCtx)
			}
		}
	}()

	go func() {
		logger.Info("starting duel quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestionPools provides a minimal bank per domain; the Postgres
// loader replaces this in production.
func sampleQuestionPools() map[string][]domain.Question {
	return map[string][]domain.Question{
		"vocabulary": {
			question("voc-1", "vocabulary", "Pick the synonym of 'rapid'.", "swift", "idle", "scarce", "Rapid and swift both mean fast."),
			question("voc-2", "vocabulary", "Pick the antonym of 'scarce'.", "plentiful", "rare", "sparse", "Scarce means in short supply; plentiful is the opposite."),
			question("voc-3", "vocabulary", "What does 'reluctant' mean?", "unwilling", "eager", "careless", "Reluctant describes hesitation or unwillingness."),
		},
		"grammar": {
			question("gra-1", "grammar", "She ___ to the gym every morning.", "goes", "go", "going", "Third person singular takes -es."),
			question("gra-2", "grammar", "If I ___ rich, I would travel.", "were", "am", "was being", "Second conditional uses the subjunctive 'were'."),
			question("gra-3", "grammar", "They have lived here ___ 2010.", "since", "for", "during", "'Since' marks the starting point of a period."),
		},
		"listening": {
			question("lis-1", "listening", "Which word is stressed in 'photographer'?", "second syllable", "first syllable", "last syllable", "pho-TOG-ra-pher carries stress on the second syllable."),
			question("lis-2", "listening", "Which pair rhymes?", "though / go", "tough / go", "through / tough", "'Though' ends with the same vowel sound as 'go'."),
		},
		"reading": {
			question("rea-1", "reading", "A text that argues a viewpoint is called ___.", "persuasive", "narrative", "descriptive", "Persuasive writing argues for a position."),
			question("rea-2", "reading", "The main idea of a paragraph is usually in the ___.", "topic sentence", "footnote", "last word", "The topic sentence states the main idea."),
		},
	}
}

func question(id, domainTag, prompt, correct, wrong1, wrong2, explanation string) domain.Question {
	return domain.Question{
		ID:     id,
		Prompt: prompt,
		Options: []domain.Option{
			{ID: id + "-a", Text: wrong1},
			{ID: id + "-b", Text: correct, Correct: true},
			{ID: id + "-c", Text: wrong2},
		},
		Domain:      domainTag,
		Difficulty:  1,
		Explanation: explanation,
	}
}
