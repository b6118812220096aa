package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/ugcstudio/internal/api"
	"github.com/bobarin/ugcstudio/internal/catalog"
	"github.com/bobarin/ugcstudio/internal/config"
	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/pipeline"
	"github.com/bobarin/ugcstudio/internal/planner"
	"github.com/bobarin/ugcstudio/internal/queue"
	"github.com/bobarin/ugcstudio/internal/services"
	"github.com/bobarin/ugcstudio/internal/session"
	"github.com/bobarin/ugcstudio/internal/storage"
	"github.com/bobarin/ugcstudio/internal/store"
	"github.com/bobarin/ugcstudio/internal/worker"
)

func main() {
	log.Println("Starting UGC Studio API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Load the narrative structure catalog
	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("Failed to load structure catalog: %v", err)
	}
	if cfg.StructuresPath != "" {
		if err := cat.MergeFile(cfg.StructuresPath); err != nil {
			log.Fatalf("Failed to load structures overlay: %v", err)
		}
		log.Printf("Loaded structures overlay from %s", cfg.StructuresPath)
	}
	log.Printf("Structure catalog loaded (%d structures)", len(cat.List()))

	// Session credential state, seeded from the environment when set
	creds := session.New(cfg.GeminiKey)
	if creds.Selected() {
		log.Println("Credential seeded from GEMINI_API_KEY")
	} else {
		log.Println("No credential configured; select one via POST /v1/credentials")
	}

	// Services
	gemini := services.NewGeminiService(creds, cfg.PlanModel, cfg.ImageModel, cfg.TTSModel)
	veo := services.NewVeoService(creds, cfg.VeoModel, cfg.VeoPollMax)

	var planProvider planner.PlanProvider = gemini
	if cfg.PlanProvider == "openai" {
		planProvider = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
		log.Println("Plan provider: OpenAI")
	} else {
		log.Println("Plan provider: Gemini")
	}

	// Voice-over provider: ElevenLabs preferred when a key is set
	var speech services.SpeechService = gemini
	if cfg.ElevenLabsKey != "" {
		speech = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Println("Voice-over provider: ElevenLabs")
	} else {
		log.Println("Voice-over provider: Gemini TTS")
	}

	// Planner strategies
	pl := planner.New(planProvider,
		planner.NewUGCStrategy(cat),
		planner.NewBrandingStrategy(),
	)

	// State: per-tool scene batches and session-scoped artifacts
	ugcStrategy, _ := pl.Strategy(models.ToolUGC)
	brandingStrategy, _ := pl.Strategy(models.ToolPersonalBranding)
	st := store.New(ugcStrategy.Defaults(), brandingStrategy.Defaults())
	assets := storage.New(cfg.PublicBaseURL)

	pipe := pipeline.New(st, assets, creds, pl, gemini, veo, speech, cfg.MaxConcurrentJobs)

	// API handler
	handler := api.NewHandler(st, assets, creds, cat, pipe, q)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Worker always runs in-process: batch state is in memory, so jobs must
	// be consumed by the process that owns it.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	w := worker.New(q, pipe)
	go w.Start(workerCtx, cfg.MaxConcurrentJobs)

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
