package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizbank-service/internal/app"
	"quizbank-service/internal/auth"
	"quizbank-service/internal/config"
	"quizbank-service/internal/domain"
	"quizbank-service/internal/infra/memory"
	pgstore "quizbank-service/internal/infra/postgres"
	redisstream "quizbank-service/internal/infra/redis"
	transport "quizbank-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the question bank server",
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

	tenantID := cfg.Tenant.ID
	if tenantID == "" {
		tenantID = "local"
	}
	collectionPath := domain.CollectionPath(tenantID)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// The durable path needs both the document store and the change
	// channel; without either, fall back to the in-process store.
	var store app.QuestionStore
	var notifier app.ChangeNotifier
	if pool != nil && redisClient != nil {
		stream := redisstream.NewChangeStream(redisClient, collectionPath)
		store = pgstore.NewQuestionStore(pool, collectionPath, stream)
		notifier = stream
		log.Printf("question store: postgres, change stream: redis (%s)", collectionPath)
	} else {
		memStore := memory.NewQuestionStore()
		store = memStore
		notifier = memStore
		log.Printf("question store: in-memory (%s)", collectionPath)
	}

	provider := auth.NewJWTProvider([]byte(cfg.Auth.Secret))
	uploader := app.NewBatchUploader(store)
	bank := app.NewQuestionBankSync(store, notifier)
	wsHandler := transport.NewWSHandler(uploader, bank, provider)

	unsubscribe, err := bank.Subscribe(ctx, func(map[string]domain.Question) {
		wsHandler.BroadcastCatalog()
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

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

	go func() {
		log.Printf("starting quizbank service on :%s", finalPort)
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
