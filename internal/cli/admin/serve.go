package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/studybuddy-ai/backend/internal/anthropic"
	"github.com/studybuddy-ai/backend/internal/api/handlers"
	"github.com/studybuddy-ai/backend/internal/canvas"
	"github.com/studybuddy-ai/backend/internal/config"
	"github.com/studybuddy-ai/backend/internal/database"
	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/jobs"
	"github.com/studybuddy-ai/backend/internal/repository"
	"github.com/studybuddy-ai/backend/internal/server"
	"github.com/studybuddy-ai/backend/internal/service"
	"github.com/studybuddy-ai/backend/internal/storage"
	"github.com/studybuddy-ai/backend/internal/supermemory"
	"github.com/studybuddy-ai/backend/internal/telemetry"
)

const ingestionPollInterval = 10 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the StudyBuddy API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	courseRepo := repository.NewCourseRepository(pool)
	moduleRepo := repository.NewModuleRepository(pool)

	var blobStore service.BlobStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobStore = s3Client
	} else {
		diskStore, err := storage.NewDiskStore(cfg.UploadDir)
		if err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
		log.Printf("archiving uploads to local directory '%s'", cfg.UploadDir)
		blobStore = diskStore
	}

	var llmClient service.LLMClient
	if cfg.HasAnthropic() {
		client, err := anthropic.NewClient(anthropic.ClientConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
		if err != nil {
			return fmt.Errorf("failed to create anthropic client: %w", err)
		}
		llmClient = client
	}

	var retriever service.Retriever
	if cfg.HasSupermemory() {
		client, err := supermemory.NewClient(supermemory.ClientConfig{
			APIKey:  cfg.SupermemoryAPIKey,
			BaseURL: cfg.SupermemoryAPIURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create supermemory client: %w", err)
		}
		retriever = client
	}

	var canvasClient *canvas.Client
	if cfg.HasCanvas() {
		canvasClient, err = canvas.NewClient(canvas.ClientConfig{
			Token:   cfg.CanvasToken,
			BaseURL: cfg.CanvasAPIURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create canvas client: %w", err)
		}
	}

	var topicSvc *service.TopicService
	var chatHandler *handlers.ChatHandler
	if llmClient != nil {
		var webSearch service.WebSearchFunc
		if cfg.WebSearchStub {
			webSearch = service.StubWebSearch
		}
		scorer := service.NewRelevanceScorer(llmClient)
		resolver := service.NewSourceResolver(scorer, webSearch)
		topicSvc = service.NewTopicService(llmClient, retriever)
		chatHandler = handlers.NewChatHandler(service.NewChatService(llmClient, resolver, retriever))
	} else {
		chatHandler = handlers.NewChatHandler(&NoOpChatService{})
	}

	materialSvc := service.NewMaterialService(blobStore, retriever, topicSvc)
	materialHandler := handlers.NewMaterialHandler(materialSvc)

	var courseSvc *service.CourseService
	if canvasClient != nil {
		courseSvc = service.NewCourseService(courseRepo, moduleRepo, canvasClient)
	} else {
		courseSvc = service.NewCourseService(courseRepo, moduleRepo, nil)
	}
	courseHandler := handlers.NewCourseHandler(courseSvc)

	var ingestionWorker *jobs.Worker
	if canvasClient != nil && retriever != nil {
		processor := jobs.NewIngestionWorker(moduleRepo, canvasClient, retriever, courseSvc)
		ingestionWorker = jobs.NewWorker(processor, ingestionPollInterval)
		go ingestionWorker.Start(ctx)
		log.Println("ingestion worker started")
	}

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:     chatHandler,
		MaterialHandler: materialHandler,
		CourseHandler:   courseHandler,
		CORSOrigins:     cfg.CORSOrigins,
		Health: server.HealthStatus{
			AnthropicConfigured: cfg.HasAnthropic(),
			RetrievalConfigured: cfg.HasSupermemory(),
			CanvasConfigured:    cfg.HasCanvas(),
		},
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if ingestionWorker != nil {
		ingestionWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// NoOpChatService stands in for the chat pipeline when no language model is
// configured. Questions still get a response instead of a panic or a 500.
type NoOpChatService struct{}

func (s *NoOpChatService) RetrieveContext(ctx context.Context, question, fileID string) string {
	return ""
}

func (s *NoOpChatService) Answer(ctx context.Context, input service.AnswerInput) service.AnswerResult {
	return service.AnswerResult{
		Text:   domain.ErrLLMNotConfigured.Message,
		Source: domain.SourceGeneralKnowledge,
	}
}

func (s *NoOpChatService) StreamAnswer(ctx context.Context, input service.AnswerInput) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk, 2)
	out <- domain.StreamChunk{Metadata: &domain.StreamMetadata{}}
	out <- domain.StreamChunk{Error: domain.ErrLLMNotConfigured.Message, Text: domain.ErrLLMNotConfigured.Message}
	close(out)
	return out
}

func (s *NoOpChatService) StoreConversation(ctx context.Context, question, answer string, source domain.AnswerSource) error {
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
