package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/muhammadolammi/jobaiassistant/internal/database"
	"github.com/streadway/amqp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred connection closes always run.
func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newGenaiClient(ctx, cfg.GoogleApiKey)
	if err != nil {
		return err
	}
	if cfg.VerifyOnStartup {
		verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := VerifyCredentials(verifyCtx, client, cfg.Model)
		cancel()
		if err != nil {
			return fmt.Errorf("GOOGLE_API_KEY rejected by the analysis service: %w", err)
		}
	}

	analyzer, err := NewAnalyzer(ctx, cfg, client)
	if err != nil {
		return fmt.Errorf("failed to create %s analyzer: %w", cfg.AnalyzerBackend, err)
	}
	slog.Info("Analyzer ready", "backend", cfg.AnalyzerBackend, "model", cfg.Model)

	// Optional archive: Postgres, RabbitMQ and R2 are each enabled by their env.
	var (
		dbRecorder *DBRecorder
		broker     *Broker
		files      ResumeStore
		history    HistoryReader
	)

	if cfg.RABBITMQUrl != "" {
		conn, err := amqp.Dial(cfg.RABBITMQUrl)
		if err != nil {
			return fmt.Errorf("error connecting to RabbitMQ: %w", err)
		}
		defer conn.Close()

		broker = NewBroker(conn, logger)
		if err := broker.Setup(); err != nil {
			return err
		}
		slog.Info("RabbitMQ connected")
	}

	if cfg.DBUrl != "" {
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			return fmt.Errorf("error opening db: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
		dbqueries := database.New(db)
		if err := dbqueries.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		// With a broker the records travel through the archive queue.
		dbRecorder = NewDBRecorder(dbqueries, broker == nil)
		history = dbRecorder
		slog.Info("Database connected")
	}

	if cfg.R2 != nil {
		awsConfig, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			return fmt.Errorf("error creating aws config: %w", err)
		}
		cfg.AwsConfig = &awsConfig
		files = NewR2Store(NewR2Client(awsConfig, cfg.R2.AccountID), cfg.R2.Bucket)
		slog.Info("R2 resume storage enabled", "bucket", cfg.R2.Bucket)
	}

	var recorders []Recorder
	if dbRecorder != nil {
		recorders = append(recorders, dbRecorder)
	}
	if broker != nil {
		recorders = append(recorders, broker)
	}

	assistant := NewAssistant(AssistantConfig{
		Analyzer: analyzer,
		Model:    cfg.Model,
		Bands:    ScoreBands{Legacy: cfg.LegacyScoreBands},
		Recorder: NewRecorder(recorders...),
		Files:    files,
		Timeout:  cfg.AnalysisTimeout,
		Logger:   logger,
	})

	sessions := NewSessionStore()
	go RunSessionJanitor(ctx, sessions, cfg.SessionTTL, time.Minute, logger)

	server, err := NewServer(ServerConfig{
		Assistant:      assistant,
		Sessions:       sessions,
		History:        history,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	// closed once the archive workers have returned; db.Close waits on it
	poolDone := make(chan struct{})
	if broker != nil && dbRecorder != nil {
		go func() {
			defer close(poolDone)
			broker.StartArchiveWorkerPool(ctx, cfg.ArchiveWorkers, dbRecorder)
		}()
	} else {
		close(poolDone)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AnalysisTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		<-poolDone
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	<-poolDone
	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server stopped successfully")
	return nil
}
