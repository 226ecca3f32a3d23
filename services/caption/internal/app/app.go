package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Akshay1705/caption.ai/internal/telemetry"
	"github.com/Akshay1705/caption.ai/internal/util"
	"github.com/Akshay1705/caption.ai/pkg/ai"
	"github.com/Akshay1705/caption.ai/pkg/domain"
	"github.com/Akshay1705/caption.ai/pkg/storage"
	"github.com/Akshay1705/caption.ai/pkg/store"
)

const (
	defaultHistoryLimit  = 5
	defaultMaxImageBytes = 10 << 20
	defaultPresignExpiry = 15 * time.Minute
	objectCleanupTimeout = 10 * time.Second
)

// Config holds runtime configuration for the caption pipeline.
type Config struct {
	Generator      ai.VisionGenerator
	Provider       string
	Store          store.Store
	Images         storage.ImageStore
	ExtractionMode ExtractionMode
	PersistHistory bool
	HistoryLimit   int
	MaxImageBytes  int
	PresignExpiry  time.Duration
	Metrics        *telemetry.Metrics
}

// App runs the generate-and-persist cycle and the history operations.
type App struct {
	generator     ai.VisionGenerator
	provider      string
	store         store.Store
	images        storage.ImageStore
	mode          ExtractionMode
	persist       bool
	historyLimit  int
	maxImageBytes int
	presignExpiry time.Duration
	metrics       *telemetry.Metrics
	tracer        trace.Tracer
}

// Generation is the outcome of one Generate call. Post is set only when
// history persistence is enabled.
type Generation struct {
	Result   domain.GenerationResult
	Post     *domain.Post
	Degraded bool
}

// New validates the configuration and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("vision generator required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("history store required")
	}
	mode := cfg.ExtractionMode
	if mode == "" {
		mode = ModeStrict
	}
	if mode != ModeStrict && mode != ModeTolerant {
		return nil, fmt.Errorf("unknown extraction mode: %s", mode)
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit == 0 {
		historyLimit = defaultHistoryLimit
	}
	if historyLimit < 1 {
		return nil, fmt.Errorf("history limit must be at least 1")
	}
	maxImageBytes := cfg.MaxImageBytes
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	presignExpiry := cfg.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = defaultPresignExpiry
	}
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = "unknown"
	}
	return &App{
		generator:     cfg.Generator,
		provider:      provider,
		store:         cfg.Store,
		images:        cfg.Images,
		mode:          mode,
		persist:       cfg.PersistHistory,
		historyLimit:  historyLimit,
		maxImageBytes: maxImageBytes,
		presignExpiry: presignExpiry,
		metrics:       cfg.Metrics,
		tracer:        otel.Tracer("github.com/Akshay1705/caption.ai/services/caption/internal/app"),
	}, nil
}

// Persisting reports whether Generate writes history.
func (a *App) Persisting() bool { return a.persist }

// MaxImageBytes is the decoded image size limit.
func (a *App) MaxImageBytes() int { return a.maxImageBytes }

// Generate validates the request, calls the model once, extracts the
// structured result and, when persisting, appends it to the owner's history.
// Every returned error is an *Error.
func (a *App) Generate(ctx context.Context, owner string, req domain.GenerationRequest) (Generation, error) {
	ctx, span := a.tracer.Start(ctx, "caption.generate")
	defer span.End()
	logger := util.LoggerFromContext(ctx)

	gen, err := a.generate(ctx, owner, req)
	if err != nil {
		classified := Classify(err)
		a.metrics.Generation(string(classified.Category))
		span.SetStatus(codes.Error, string(classified.Category))
		span.RecordError(err)
		logger.Warn("generation failed", "category", classified.Category, "err", err)
		return Generation{}, classified
	}
	outcome := "ok"
	if gen.Degraded {
		outcome = "degraded"
	}
	a.metrics.Generation(outcome)
	span.SetAttributes(attribute.Bool("caption.degraded", gen.Degraded))
	logger.Info("generation completed",
		"degraded", gen.Degraded,
		"hashtags", len(gen.Result.Hashtags),
		"songs", len(gen.Result.Songs),
		"persisted", gen.Post != nil,
	)
	return gen, nil
}

func (a *App) generate(ctx context.Context, owner string, req domain.GenerationRequest) (Generation, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Generation{}, ErrUnauthenticated
	}
	if strings.TrimSpace(req.Image) == "" {
		return Generation{}, ErrMissingImage
	}
	img, err := DecodeImage(req.Image, a.maxImageBytes)
	if err != nil {
		return Generation{}, err
	}

	prompt := BuildPrompt(req.Preferences)
	raw, err := a.infer(ctx, prompt, img)
	if err != nil {
		return Generation{}, err
	}

	extraction, err := Extract(raw, a.mode)
	if err != nil {
		return Generation{}, err
	}
	if extraction.Degraded {
		util.LoggerFromContext(ctx).Warn("model output not parseable, using raw text", "cleaned_len", len(extraction.Cleaned))
	}
	gen := Generation{Result: extraction.Result, Degraded: extraction.Degraded}
	if !a.persist {
		return gen, nil
	}

	post, err := a.save(ctx, owner, img, extraction.Result)
	if err != nil {
		return Generation{}, err
	}
	gen.Post = &post
	return gen, nil
}

func (a *App) infer(ctx context.Context, prompt string, img ai.Image) (string, error) {
	ctx, span := a.tracer.Start(ctx, "caption.inference", trace.WithAttributes(
		attribute.String("caption.provider", a.provider),
		attribute.String("caption.image_type", img.MIMEType),
		attribute.Int("caption.image_bytes", len(img.Data)),
	))
	defer span.End()
	start := time.Now()
	raw, err := a.generator.GenerateFromImage(ctx, prompt, img)
	a.metrics.Inference(a.provider, err == nil, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, "inference failed")
		return "", err
	}
	return raw, nil
}

func (a *App) save(ctx context.Context, owner string, img ai.Image, result domain.GenerationResult) (domain.Post, error) {
	post := domain.Post{
		Caption:  result.Caption,
		Hashtags: result.Hashtags,
		Songs:    result.Songs,
	}
	if a.images != nil {
		key := storage.ImageKey(owner, img.MIMEType)
		if err := a.images.PutImage(ctx, key, img.Data, img.MIMEType); err != nil {
			return domain.Post{}, storeError(msgStoreSave, fmt.Errorf("upload image: %w", err))
		}
		post.ImageKey = key
	} else {
		post.Image = img.DataURL()
	}

	stored, trimmed, err := a.store.AppendAndTrim(ctx, owner, post, a.historyLimit)
	if err != nil {
		if post.ImageKey != "" {
			a.removeObjects(ctx, []string{post.ImageKey})
		}
		return domain.Post{}, storeError(msgStoreSave, fmt.Errorf("append post: %w", err))
	}
	a.metrics.Trimmed(len(trimmed))
	a.removeObjects(ctx, imageKeys(trimmed))
	a.resolveImage(ctx, &stored)
	return stored, nil
}

// ListHistory returns the owner's posts, most recent first.
func (a *App) ListHistory(ctx context.Context, owner string) ([]domain.Post, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, Classify(ErrUnauthenticated)
	}
	posts, err := a.store.List(ctx, owner)
	if err != nil {
		util.LoggerFromContext(ctx).Error("list history failed", "err", err)
		return nil, storeError(msgStoreLoad, err)
	}
	for i := range posts {
		a.resolveImage(ctx, &posts[i])
	}
	return posts, nil
}

// DeleteHistory removes one post owned by owner. Unknown or foreign ids
// succeed without effect.
func (a *App) DeleteHistory(ctx context.Context, owner string, id uint64) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Classify(ErrUnauthenticated)
	}
	if id == 0 {
		return Classify(ErrMissingPostID)
	}
	removed, ok, err := a.store.Delete(ctx, owner, id)
	if err != nil {
		util.LoggerFromContext(ctx).Error("delete post failed", "post_id", id, "err", err)
		return storeError(msgStoreDelete, err)
	}
	a.metrics.Deleted(ok)
	if ok && removed.ImageKey != "" {
		a.removeObjects(ctx, []string{removed.ImageKey})
	}
	return nil
}

// resolveImage fills Image with a presigned URL for object-backed posts.
func (a *App) resolveImage(ctx context.Context, post *domain.Post) {
	if post.ImageKey == "" || a.images == nil {
		return
	}
	url, err := a.images.PresignGet(ctx, post.ImageKey, a.presignExpiry)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("presign image failed", "post_id", post.ID, "err", err)
		return
	}
	post.Image = url
}

// removeObjects deletes image objects best-effort; failures are only logged.
func (a *App) removeObjects(ctx context.Context, keys []string) {
	if a.images == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), objectCleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if err := a.images.Delete(ctx, key); err != nil {
			util.LoggerFromContext(ctx).Warn("delete image object failed", "key", key, "err", err)
		}
	}
}

func imageKeys(posts []domain.Post) []string {
	keys := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.ImageKey != "" {
			keys = append(keys, p.ImageKey)
		}
	}
	return keys
}
