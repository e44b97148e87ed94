package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"pdf-order-extractor/export"
	"pdf-order-extractor/internal/constants"
	"pdf-order-extractor/orders"
	"pdf-order-extractor/pdftext"
)

// Global Variables and Constants
var (
	// Logger
	log = logrus.New()

	// Token budget for the document text, 0 disables truncation
	tokenLimit int
	llmModel   string

	// Templates
	extractionTemplate *template.Template
	templateMutex      sync.RWMutex
)

// App struct to hold dependencies
type App struct {
	Config    Config
	LLM       llms.Model
	Database  *gorm.DB
	Extractor TextExtractor
	Documents *DocumentStore
	Jobs      *JobStore
	Access    *AccessControl

	inflight singleflight.Group
	jobQueue chan *Job
}

func newApp(cfg Config, llm llms.Model, db *gorm.DB, extractor TextExtractor) *App {
	return &App{
		Config:    cfg,
		LLM:       llm,
		Database:  db,
		Extractor: extractor,
		Documents: NewDocumentStore(),
		Jobs:      newJobStore(),
		Access:    NewAccessControl(cfg),
		jobQueue:  make(chan *Job, jobQueueSize),
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	initLogger(cfg.LogLevel)

	tokenLimit = cfg.TokenLimit
	llmModel = cfg.LLMModel

	if err := loadTemplates(cfg.PromptsDir); err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	database, err := InitializeDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := createLLM(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	app := newApp(cfg, llm, database, pdftext.NewExtractor())
	app.startWorker(ctx)

	router, err := newRouter(app)
	if err != nil {
		log.Fatalf("Failed to set up router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Server started on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}

func newRouter(app *App) (*gin.Engine, error) {
	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()
	if err := router.SetTrustedProxies(app.Config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gated := router.Group("/", app.Access.Gate())

	api := gated.Group("/api")
	{
		api.POST("/auth", app.Access.authHandler)
		api.POST("/logout", app.Access.logoutHandler)

		// Single-shot endpoints
		api.POST("/extract-text", app.extractTextHandler)
		api.POST("/extract-data", app.extractDataHandler)

		// Session documents
		api.POST("/documents", app.uploadDocumentsHandler)
		api.GET("/documents", app.documentsHandler)
		api.GET("/documents/:id", app.getDocumentHandler)
		api.DELETE("/documents/:id", app.deleteDocumentHandler)
		api.POST("/documents/:id/process", app.processDocumentHandler)
		api.PATCH("/documents/:id/records/:index", app.updateRecordHandler)
		api.POST("/documents/process-all", app.processAllHandler)

		// Batch jobs
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.GET("/jobs", app.getAllJobsHandler)

		api.GET("/export", app.exportHandler)

		// Local db actions
		api.GET("/modifications", app.getModificationHistoryHandler)
		api.POST("/undo-modification/:id", app.undoModificationHandler)
	}

	gated.GET("/", func(c *gin.Context) {
		serveEmbeddedFile(c, "index.html")
	})
	gated.GET("/login", func(c *gin.Context) {
		serveEmbeddedFile(c, "login.html")
	})

	return router, nil
}

func initLogger(logLevel string) {
	level := logrus.InfoLevel
	switch logLevel {
	case "debug":
		level = logrus.DebugLevel
	case "info", "":
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		log.Fatalf("Invalid log level: '%s'.", logLevel)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	pdftext.SetLogLevel(level)
	orders.SetLogLevel(level)
	export.SetLogLevel(level)
}

// createLLM creates the appropriate LLM client based on the provider
func createLLM(ctx context.Context, cfg Config) (llms.Model, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.LLMProvider {
	case "anthropic":
		model, err = anthropic.New(
			anthropic.WithModel(cfg.LLMModel),
			anthropic.WithToken(cfg.AnthropicAPIKey),
		)
	case "openai":
		token := cfg.OpenAIAPIKey
		if token == "" {
			token = constants.DummyAPIKey
		}
		opts := []openai.Option{
			openai.WithModel(cfg.LLMModel),
			openai.WithToken(token),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		}
		if client := newBearerClient(cfg.OllamaToken); client != nil {
			opts = append(opts, ollama.WithHTTPClient(client))
		}
		model, err = ollama.New(opts...)
	case "mistral":
		model, err = mistral.New(
			mistral.WithModel(cfg.LLMModel),
			mistral.WithAPIKey(cfg.MistralAPIKey),
		)
	case "googleai":
		model, err = NewGoogleAIProvider(ctx, cfg.LLMModel, cfg.GoogleAIAPIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"provider": cfg.LLMProvider,
		"model":    cfg.LLMModel,
	}).Info("LLM client created")

	return NewRateLimitedLLM(model, RateLimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxRetries:        cfg.MaxRetries,
	}), nil
}
