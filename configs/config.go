// config.go - Configuration loaded from environment variables

package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Server Configuration
	PORT             string
	UPLOAD_DIR       string
	ALLOWED_ORIGINS  string
	GIN_MODE         string
	MAX_UPLOAD_BYTES int64

	// Gemini AI Configuration (cloud-vision engine)
	GEMINI_API_KEY             string
	OCR_MODEL_NAME             string
	GEMINI_RATE_LIMIT_BURST    int
	GEMINI_RATE_LIMIT_INTERVAL time.Duration

	// Gemini Pricing Configuration (per 1M tokens in USD)
	GEMINI_INPUT_PRICE_PER_MILLION  float64
	GEMINI_OUTPUT_PRICE_PER_MILLION float64

	// Mistral Configuration (cloud-ocr-alt engine, off by default)
	MISTRAL_API_KEY    string
	MISTRAL_MODEL_NAME string
	MISTRAL_ENABLED    bool

	// Local OCR
	TESSERACT_LANGUAGES []string

	// Recognition runs
	ENABLE_ADVANCED_PREPROCESSING bool
	ENABLED_ENGINES               string
	PREFERRED_ENGINE              string
	PREPROCESSING_PIPELINES       string
	ENGINE_TIMEOUT                time.Duration
	MAX_PARALLEL_ATTEMPTS         int
	MAX_SOURCE_DIMENSION          int

	// Background isolation
	SEGMENTATION_MODEL_PATH     string
	SEGMENTATION_MODEL_URL      string
	ALLOW_REMOTE_MODEL_DOWNLOAD bool
	CACHE_INFERENCE_RESULTS     bool
	MASK_CACHE_TTL              time.Duration
	SEGMENTATION_MASK_THRESHOLD float64

	// Storage
	MONGO_URI     string
	MONGO_DB_NAME string
	DATABASE_URL  string
	REDIS_URL     string

	// Worker
	QUEUE_NAME         string
	WORKER_CONCURRENCY int

	// Logging
	LOG_LEVEL  string
	LOG_FORMAT string
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")
	GIN_MODE = getEnv("GIN_MODE", "release")
	MAX_UPLOAD_BYTES = int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20))

	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	OCR_MODEL_NAME = getEnv("OCR_MODEL_NAME", "gemini-2.5-flash")
	// 15 RPM on the free tier; stay a little under it.
	GEMINI_RATE_LIMIT_BURST = getEnvInt("GEMINI_RATE_LIMIT_BURST", 12)
	GEMINI_RATE_LIMIT_INTERVAL = getEnvDuration("GEMINI_RATE_LIMIT_INTERVAL", 5*time.Second)
	GEMINI_INPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_INPUT_PRICE_PER_MILLION", 0.10)
	GEMINI_OUTPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_OUTPUT_PRICE_PER_MILLION", 0.40)

	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "mistral-ocr-latest")
	MISTRAL_ENABLED = getEnvBool("MISTRAL_ENABLED", false)

	TESSERACT_LANGUAGES = getEnvList("TESSERACT_LANGUAGES", []string{"eng"})

	ENABLE_ADVANCED_PREPROCESSING = getEnvBool("ENABLE_ADVANCED_PREPROCESSING", true)
	ENABLED_ENGINES = getEnv("ENABLED_ENGINES", "")
	PREFERRED_ENGINE = getEnv("PREFERRED_ENGINE", "auto")
	PREPROCESSING_PIPELINES = getEnv("PREPROCESSING_PIPELINES", "")
	ENGINE_TIMEOUT = getEnvDuration("ENGINE_TIMEOUT", 30*time.Second)
	MAX_PARALLEL_ATTEMPTS = getEnvInt("MAX_PARALLEL_ATTEMPTS", 8)
	MAX_SOURCE_DIMENSION = getEnvInt("MAX_SOURCE_DIMENSION", 2000)

	SEGMENTATION_MODEL_PATH = getEnv("SEGMENTATION_MODEL_PATH", "models/u2netp.onnx")
	SEGMENTATION_MODEL_URL = getEnv("SEGMENTATION_MODEL_URL", "")
	ALLOW_REMOTE_MODEL_DOWNLOAD = getEnvBool("ALLOW_REMOTE_MODEL_DOWNLOAD", false)
	CACHE_INFERENCE_RESULTS = getEnvBool("CACHE_INFERENCE_RESULTS", false)
	MASK_CACHE_TTL = getEnvDuration("MASK_CACHE_TTL", 30*time.Minute)
	SEGMENTATION_MASK_THRESHOLD = getEnvFloat("SEGMENTATION_MASK_THRESHOLD", 0.3)

	MONGO_URI = getEnv("MONGO_URI", "")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "swing_ocr")
	DATABASE_URL = getEnv("DATABASE_URL", "")
	REDIS_URL = getEnv("REDIS_URL", "")

	QUEUE_NAME = getEnv("QUEUE_NAME", "swing")
	WORKER_CONCURRENCY = getEnvInt("WORKER_CONCURRENCY", 4)

	LOG_LEVEL = getEnv("LOG_LEVEL", "info")
	LOG_FORMAT = getEnv("LOG_FORMAT", "text")
}

// RunnerOptions are the recognition run settings.
type RunnerOptions struct {
	EnableAdvancedPreprocessing bool
	EnabledEngines              string
	PreferredEngine             string
	// Pipelines names the advanced presets to run; empty means all of them.
	Pipelines          string
	EngineTimeout      time.Duration
	MaxConcurrency     int
	MaxSourceDimension int
}

// RunnerSettings returns the loaded recognition run settings.
func RunnerSettings() RunnerOptions {
	return RunnerOptions{
		EnableAdvancedPreprocessing: ENABLE_ADVANCED_PREPROCESSING,
		EnabledEngines:              ENABLED_ENGINES,
		PreferredEngine:             PREFERRED_ENGINE,
		Pipelines:                   PREPROCESSING_PIPELINES,
		EngineTimeout:               ENGINE_TIMEOUT,
		MaxConcurrency:              MAX_PARALLEL_ATTEMPTS,
		MaxSourceDimension:          MAX_SOURCE_DIMENSION,
	}
}

// IsolatorOptions are the background isolation settings.
type IsolatorOptions struct {
	ModelPath                string
	ModelURL                 string
	AllowRemoteModelDownload bool
	CacheInferenceResults    bool
	CacheTTL                 time.Duration
	// MaskThreshold of 0 keeps every pixel.
	MaskThreshold float64
}

// IsolatorSettings returns the loaded background isolation settings.
func IsolatorSettings() IsolatorOptions {
	return IsolatorOptions{
		ModelPath:                SEGMENTATION_MODEL_PATH,
		ModelURL:                 SEGMENTATION_MODEL_URL,
		AllowRemoteModelDownload: ALLOW_REMOTE_MODEL_DOWNLOAD,
		CacheInferenceResults:    CACHE_INFERENCE_RESULTS,
		CacheTTL:                 MASK_CACHE_TTL,
		MaskThreshold:            SEGMENTATION_MASK_THRESHOLD,
	}
}

// Validate reports every out-of-range setting at once.
func Validate() error {
	var errs []error
	if ENGINE_TIMEOUT <= 0 {
		errs = append(errs, fmt.Errorf("ENGINE_TIMEOUT must be positive, got %s", ENGINE_TIMEOUT))
	}
	if MAX_PARALLEL_ATTEMPTS < 1 {
		errs = append(errs, fmt.Errorf("MAX_PARALLEL_ATTEMPTS must be at least 1, got %d", MAX_PARALLEL_ATTEMPTS))
	}
	if MAX_SOURCE_DIMENSION < 64 {
		errs = append(errs, fmt.Errorf("MAX_SOURCE_DIMENSION must be at least 64, got %d", MAX_SOURCE_DIMENSION))
	}
	if MAX_UPLOAD_BYTES <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", MAX_UPLOAD_BYTES))
	}
	if WORKER_CONCURRENCY < 1 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", WORKER_CONCURRENCY))
	}
	if GEMINI_RATE_LIMIT_BURST < 1 || GEMINI_RATE_LIMIT_INTERVAL <= 0 {
		errs = append(errs, errors.New("GEMINI_RATE_LIMIT_BURST and GEMINI_RATE_LIMIT_INTERVAL must be positive"))
	}
	if ALLOW_REMOTE_MODEL_DOWNLOAD && SEGMENTATION_MODEL_URL == "" {
		errs = append(errs, errors.New("ALLOW_REMOTE_MODEL_DOWNLOAD requires SEGMENTATION_MODEL_URL"))
	}
	if SEGMENTATION_MASK_THRESHOLD < 0 || SEGMENTATION_MASK_THRESHOLD > 1 {
		errs = append(errs, fmt.Errorf("SEGMENTATION_MASK_THRESHOLD must be within [0,1], got %v", SEGMENTATION_MASK_THRESHOLD))
	}
	if CACHE_INFERENCE_RESULTS && MASK_CACHE_TTL <= 0 {
		errs = append(errs, errors.New("MASK_CACHE_TTL must be positive when CACHE_INFERENCE_RESULTS is on"))
	}
	switch LOG_FORMAT {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", LOG_FORMAT))
	}
	if _, err := logrus.ParseLevel(LOG_LEVEL); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '+' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
