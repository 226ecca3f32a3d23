package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working directory.
const ConfigPath = "config.yaml"

const (
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai-compat"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	Environment string `yaml:"environment"`

	DatabaseURL    string `yaml:"databaseURL"`
	PersistHistory bool   `yaml:"persistHistory"`
	HistoryLimit   int    `yaml:"historyLimit"`
	MaxImageBytes  int    `yaml:"maxImageBytes"`
	ExtractionMode string `yaml:"extractionMode"`

	GenerationProvider string `yaml:"generationProvider"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GeminiAPIKey       string `yaml:"geminiAPIKey"`

	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	GenerateRateLimitPerMinute int    `yaml:"generateRateLimitPerMinute"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	ImageURLExpiry string `yaml:"imageURLExpiry"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	AuthSecret  string `yaml:"authSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	AllowedOrigins []string `yaml:"allowedOrigins"`
	OTLPEndpoint   string   `yaml:"otlpEndpoint"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:               "8080",
		LogLevel:           "info",
		PersistHistory:     true,
		HistoryLimit:       5,
		MaxImageBytes:      10 << 20,
		ExtractionMode:     "strict",
		GenerationProvider: ProviderGemini,
		GenerationModel:    "gemini-2.5-pro",
		MinioBucket:        "caption-images",
		ImageURLExpiry:     "15m",
	}
}

// Load reads config from path. An empty path falls back to CAPTION_CONFIG
// and then ConfigPath; a missing default file is not an error so the service
// can run from environment variables alone.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	explicit := path != ""
	if path == "" {
		if v := strings.TrimSpace(os.Getenv("CAPTION_CONFIG")); v != "" {
			path, explicit = v, true
		} else {
			path = ConfigPath
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.GenerationProvider = strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	cfg.ExtractionMode = strings.ToLower(strings.TrimSpace(cfg.ExtractionMode))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	setString := map[string]*string{
		"PORT":                        &cfg.Port,
		"LOG_LEVEL":                   &cfg.LogLevel,
		"DATABASE_URL":                &cfg.DatabaseURL,
		"GEMINI_API_KEY":              &cfg.GeminiAPIKey,
		"CAPTION_GENERATION_PROVIDER": &cfg.GenerationProvider,
		"CAPTION_GENERATION_MODEL":    &cfg.GenerationModel,
		"CAPTION_GENERATION_BASE_URL": &cfg.GenerationBaseURL,
		"CAPTION_GENERATION_API_KEY":  &cfg.GenerationAPIKey,
		"CAPTION_EXTRACTION_MODE":     &cfg.ExtractionMode,
		"REDIS_ADDR":                  &cfg.RedisAddr,
		"REDIS_PASSWORD":              &cfg.RedisPassword,
		"MINIO_ENDPOINT":              &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":            &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY":            &cfg.MinioSecretKey,
		"MINIO_BUCKET":                &cfg.MinioBucket,
		"CAPTION_AUTH_JWKS_URL":       &cfg.AuthJWKSURL,
		"CAPTION_AUTH_SECRET":         &cfg.AuthSecret,
		"JWT_ISSUER":                  &cfg.JWTIssuer,
		"JWT_AUDIENCE":                &cfg.JWTAudience,
		"JWT_LEEWAY":                  &cfg.JWTLeeway,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &cfg.OTLPEndpoint,
	}
	for key, dst := range setString {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setInt := map[string]*int{
		"CAPTION_HISTORY_LIMIT":                  &cfg.HistoryLimit,
		"CAPTION_MAX_IMAGE_BYTES":                &cfg.MaxImageBytes,
		"CAPTION_GENERATE_RATE_LIMIT_PER_MINUTE": &cfg.GenerateRateLimitPerMinute,
	}
	for key, dst := range setInt {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", key, err)
		}
		*dst = n
	}

	setBool := map[string]*bool{
		"CAPTION_PERSIST_HISTORY": &cfg.PersistHistory,
		"MINIO_USE_SSL":           &cfg.MinioUseSSL,
	}
	for key, dst := range setBool {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s must be a boolean: %w", key, err)
		}
		*dst = b
	}

	if v := os.Getenv("CAPTION_ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.GenerationProvider {
	case ProviderGemini:
		if cfg.APIKey() == "" {
			return errors.New("config: geminiAPIKey is required for the gemini provider (set in config.yaml or GEMINI_API_KEY)")
		}
	case ProviderOllama, ProviderOpenAICompat:
		if cfg.GenerationProvider == ProviderOpenAICompat && cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required for the openai-compat provider")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if strings.TrimSpace(cfg.GenerationModel) == "" {
		return errors.New("config: generationModel is required")
	}
	if cfg.ExtractionMode != "strict" && cfg.ExtractionMode != "tolerant" {
		return fmt.Errorf("config: extractionMode must be strict or tolerant, got %q", cfg.ExtractionMode)
	}
	if cfg.HistoryLimit < 1 {
		return errors.New("config: historyLimit must be >= 1")
	}
	if cfg.MaxImageBytes < 1 {
		return errors.New("config: maxImageBytes must be >= 1")
	}
	if cfg.PersistHistory && cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required when persistHistory is true (set in config.yaml or DATABASE_URL)")
	}
	hasJWKS, hasSecret := cfg.AuthJWKSURL != "", cfg.AuthSecret != ""
	if hasJWKS == hasSecret {
		return errors.New("config: exactly one of authJwksURL or authSecret is required")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if cfg.GenerateRateLimitPerMinute < 0 {
		return errors.New("config: generateRateLimitPerMinute must be >= 0")
	}
	if cfg.GenerateRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when generateRateLimitPerMinute is set")
	}
	minioSet := 0
	for _, v := range []string{cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey} {
		if v != "" {
			minioSet++
		}
	}
	if minioSet != 0 && minioSet != 3 {
		return errors.New("config: minioEndpoint, minioAccessKey and minioSecretKey must be set together")
	}
	if minioSet == 3 && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when MinIO is configured")
	}
	if _, err := ParseImageURLExpiry(cfg.ImageURLExpiry); err != nil {
		return err
	}
	return nil
}

// APIKey returns the generation provider key. For gemini, geminiAPIKey is
// used when generationAPIKey is empty.
func (c FileConfig) APIKey() string {
	if c.GenerationAPIKey != "" {
		return c.GenerationAPIKey
	}
	if c.GenerationProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return ""
}

// MinioEnabled reports whether post images go to object storage.
func (c FileConfig) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseImageURLExpiry parses the presigned image URL lifetime. MinIO caps
// presigned URLs at seven days.
func ParseImageURLExpiry(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid imageURLExpiry duration: %w", err)
	}
	if dur <= 0 || dur > 7*24*time.Hour {
		return 0, fmt.Errorf("imageURLExpiry must be between 1s and 168h, got %s", s)
	}
	return dur, nil
}
