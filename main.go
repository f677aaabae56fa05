package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medoai/internal/api"
	"medoai/internal/auth"
	"medoai/internal/blob"
	"medoai/internal/config"
	"medoai/internal/files"
	"medoai/internal/logger"
	"medoai/internal/pdf"
	"medoai/internal/quiz"
	"medoai/internal/redis"
	"medoai/internal/service/ai"
	"medoai/internal/service/flows"
	"medoai/internal/service/speech"
	"medoai/internal/storage"
	"medoai/internal/upload"
	"medoai/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("MEDOAI_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(cfg.BasicConfig.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.Database
	lg.Info("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		lg.Fatal("open database", "error", err)
	}
	defer db.Close()
	// Create necessary tables: users, user_tokens, uploaded_files
	if err := storage.Migrate(db, dbType); err != nil {
		lg.Fatal("migrate database", "error", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			lg.Fatal("create redis client", "error", err)
		}
		defer rdb.Close()
	}

	blobs, err := blob.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init blob storage", "backend", cfg.Storage.Backend, "error", err)
	}
	localBlobs, _ := blobs.(*blob.LocalStore)

	notifier, err := files.NewNotifier(ctx, rdb, lg)
	if err != nil {
		lg.Fatal("init file notifier", "error", err)
	}
	filesService := files.NewService(files.NewRepository(db), blobs, notifier, lg)
	uploads := upload.New(filesService, cfg.BasicConfig.UploadConcurrency, lg)

	completer, err := ai.NewCompleter(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init ai completer", "provider", cfg.AI.Provider, "error", err)
	}
	var transcriber flows.Transcriber
	if cfg.Speech.Enabled {
		st, err := speech.New(ctx, cfg.Speech, lg)
		if err != nil {
			lg.Fatal("init speech transcriber", "error", err)
		}
		defer st.Close()
		transcriber = st
	}
	flowService := flows.NewService(completer, transcriber, lg)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}, lg)
	defer dispatcher.Stop()

	var quizStore quiz.Store = quiz.NewMemoryStore(quiz.DefaultTTL)
	if rdb != nil {
		quizStore = quiz.NewRedisStore(rdb, quiz.DefaultTTL)
	}
	quizService := quiz.NewService(quizStore, flowService, lg)

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	authService := auth.NewService(db, rdb, tokenTTL).WithLogger(lg)
	sweepInterval := time.Duration(cfg.BasicConfig.TokenSweepInterval) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = auth.DefaultTokenSweepInterval
	}
	authService.StartTokenSweeper(ctx, sweepInterval)

	handlers := api.NewHandler(api.Options{
		Auth:       authService,
		Files:      filesService,
		Uploads:    uploads,
		Flows:      flowService,
		Quiz:       quizService,
		Jobs:       dispatcher,
		Exporter:   pdf.Exporter{FontPath: cfg.BasicConfig.PDFFontPath},
		LocalBlobs: localBlobs,
		RateLimit:  cfg.AI.RateLimit,
		RateWindow: time.Duration(cfg.AI.RateWindowSecs) * time.Second,
		Logger:     lg,
	})

	if cfg.BasicConfig.LogMode == "production" || cfg.BasicConfig.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.BasicConfig.AllowedOrigins)))
	handlers.RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Warn("server shutdown", "error", err)
		}
	}()

	lg.Info("medo.ai server starting", "addr", server.Addr, "storage", cfg.Storage.Backend, "provider", cfg.AI.Provider)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("server stopped", "error", err)
	}
	lg.Info("server stopped")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language", "X-CSRF-Token"},
		ExposeHeaders:    []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000", "http://localhost:9002"}
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
