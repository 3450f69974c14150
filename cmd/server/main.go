package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amadeling/kp-forecasting-bma/config"
	"github.com/amadeling/kp-forecasting-bma/internal/api"
	"github.com/amadeling/kp-forecasting-bma/internal/broker"
	"github.com/amadeling/kp-forecasting-bma/internal/dispatcher"
	"github.com/amadeling/kp-forecasting-bma/internal/engine"
	"github.com/amadeling/kp-forecasting-bma/internal/jobstate"
	"github.com/amadeling/kp-forecasting-bma/internal/preprocess"
	"github.com/amadeling/kp-forecasting-bma/internal/service"
	"github.com/amadeling/kp-forecasting-bma/internal/store"
	"github.com/amadeling/kp-forecasting-bma/internal/util"
	"github.com/amadeling/kp-forecasting-bma/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting forecast service")

	tp, err := util.InitTracer("forecast-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	states, err := jobstate.NewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Jobs.StateTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer states.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	disp := dispatcher.NewKafkaDispatcher(producer, states, cfg.Jobs.StartDelay)
	engineClient := engine.NewClient(cfg.Engine.URL, cfg.Engine.Timeout)

	svc := service.NewForecastService(
		db, db, disp, preprocess.New(),
		cfg.Paths.UploadDir, cfg.Paths.OutputDir,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs, cfg.Kafka.ConsumerGroup)
	forecastWorker := worker.NewForecastWorker(consumer, states, engineClient, worker.Config{
		CallbackBaseURL:  cfg.Callback.BaseURL,
		RetryEnabled:     cfg.Callback.RetryEnabled,
		RetryMaxAttempts: cfg.Callback.RetryMaxAttempts,
		RetryBackoff:     cfg.Callback.RetryBackoff,
	})
	go func() {
		if err := forecastWorker.Start(workerCtx); err != nil {
			log.Printf("Forecast worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(svc, cfg.Paths.OutputDir)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	forecastWorker.Stop()

	log.Println("Server exited")
}
