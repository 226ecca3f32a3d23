package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Akshay1705/caption.ai/internal/ratelimit"
	"github.com/Akshay1705/caption.ai/internal/telemetry"
	"github.com/Akshay1705/caption.ai/internal/usertoken"
	"github.com/Akshay1705/caption.ai/internal/util"
	"github.com/Akshay1705/caption.ai/pkg/ai"
	"github.com/Akshay1705/caption.ai/pkg/storage"
	"github.com/Akshay1705/caption.ai/pkg/store"
	"github.com/Akshay1705/caption.ai/services/caption/internal/app"
	"github.com/Akshay1705/caption.ai/services/caption/internal/config"
	"github.com/Akshay1705/caption.ai/services/caption/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fatal("caption service stopped", "err", err)
	}
}

func run(ctx context.Context, cfg config.FileConfig) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, "caption", cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "err", err)
		}
	}()

	generator, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	mode, err := app.ParseExtractionMode(cfg.ExtractionMode)
	if err != nil {
		return err
	}

	var history store.Store = store.NewMemoryStore()
	if cfg.PersistHistory {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init history store: %w", err)
		}
		history = gormStore
	}

	var images storage.ImageStore
	if cfg.MinioEnabled() {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("init image store: %w", err)
		}
		images = minioStore
	}
	expiry, err := config.ParseImageURLExpiry(cfg.ImageURLExpiry)
	if err != nil {
		return err
	}

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		return err
	}
	verifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Secret:     cfg.AuthSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	metrics := telemetry.NewMetrics()
	core, err := app.New(app.Config{
		Generator:      generator,
		Provider:       cfg.GenerationProvider,
		Store:          history,
		Images:         images,
		ExtractionMode: mode,
		PersistHistory: cfg.PersistHistory,
		HistoryLimit:   cfg.HistoryLimit,
		MaxImageBytes:  cfg.MaxImageBytes,
		PresignExpiry:  expiry,
		Metrics:        metrics,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	serverCfg := server.Config{
		App:            core,
		TokenVerifier:  verifier,
		Metrics:        metrics,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.GenerateRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.GenerateRateLimitPerMinute, time.Minute)
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
		defer limiter.Close()
		serverCfg.GenerateLimiter = limiter
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Inference calls can take well over a minute on large images.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("caption server listening",
			"addr", addr,
			"provider", cfg.GenerationProvider,
			"model", cfg.GenerationModel,
			"persist_history", cfg.PersistHistory,
			"object_storage", images != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("caption server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newGenerator(cfg config.FileConfig) (ai.VisionGenerator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderGemini:
		var opts []ai.GeminiOption
		if cfg.GenerationBaseURL != "" {
			opts = append(opts, ai.WithGeminiBaseURL(cfg.GenerationBaseURL))
		}
		client, err := ai.NewGeminiClient(cfg.APIKey(), opts...)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case config.ProviderOllama:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	case config.ProviderOpenAICompat:
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.APIKey(), cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.GenerationProvider)
	}
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
