package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ScratchConfig controls the on-disk job/batch layout and admission limits.
type ScratchConfig struct {
	Root         string
	MaxFileBytes int64
	MaxFiles     int
	JobTTL       time.Duration
}

// RenderConfig controls thumbnail/preview rendering and caching.
type RenderConfig struct {
	ThumbWidth int
	ViewWidth  int
	CacheView  bool
}

// OcrConfig controls the tiered OCR extractor.
type OcrConfig struct {
	Enabled     bool
	Lang        string
	DPI         int
	HeaderDPI   int
	HeaderRatio float64
	PSM         int
	MinTextLen  int
	KeepImages  bool
	Workers     int
}

// BatchConfig controls batch admission and concurrency.
type BatchConfig struct {
	MaxPackages   int
	MaxBytes      int64
	MaxConcurrent int
}

// BlobConfig controls the object-store collaborator.
type BlobConfig struct {
	Bucket        string
	ResultsPrefix string
	UploadsPrefix string
	URLExpiry     time.Duration
	Region        string
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Addr string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Scratch ScratchConfig
	Render  RenderConfig
	Ocr     OcrConfig
	Batch   BatchConfig
	Blob    BlobConfig
	Metrics MetricsConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/tipificador.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_tipificador",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Scratch = ScratchConfig{
		Root:         getEnv("TIPIFICADOR_ROOT", "/tmp/tipificador_jobs"),
		MaxFileBytes: parseInt64(getEnv("TIPIFICADOR_MAX_FILE_BYTES", "104857600"), 104857600),
		MaxFiles:     parseInt(getEnv("TIPIFICADOR_MAX_FILES", "20"), 20),
		JobTTL:       parseDuration(getEnv("TIPIFICADOR_JOB_TTL", "6h"), 6*time.Hour),
	}

	cfg.Render = RenderConfig{
		ThumbWidth: parseInt(getEnv("TIPIFICADOR_THUMB_WIDTH", "240"), 240),
		ViewWidth:  parseInt(getEnv("TIPIFICADOR_VIEW_WIDTH", "1100"), 1100),
		CacheView:  parseBool(getEnv("TIPIFICADOR_CACHE_VIEW", "1")),
	}

	cfg.Ocr = OcrConfig{
		Enabled:     parseBool(getEnv("TIPIFICADOR_OCR_ENABLED", "1")),
		Lang:        getEnv("TIPIFICADOR_OCR_LANG", "spa+eng"),
		DPI:         parseInt(getEnv("TIPIFICADOR_OCR_DPI", "300"), 300),
		HeaderDPI:   parseInt(getEnv("TIPIFICADOR_OCR_HEADER_DPI", "200"), 200),
		HeaderRatio: parseFloat(getEnv("TIPIFICADOR_OCR_HEADER_RATIO", "0.35"), 0.35),
		PSM:         parseInt(getEnv("TIPIFICADOR_OCR_PSM", "4"), 4),
		MinTextLen:  parseInt(getEnv("TIPIFICADOR_OCR_MIN_TEXT_LEN", "40"), 40),
		KeepImages:  parseBool(getEnv("TIPIFICADOR_OCR_KEEP_IMAGES", "0")),
		Workers:     parseInt(getEnv("TIPIFICADOR_OCR_WORKERS", "4"), 4),
	}
	if cfg.Ocr.HeaderDPI > cfg.Ocr.DPI {
		cfg.Ocr.HeaderDPI = cfg.Ocr.DPI
	}

	cfg.Batch = BatchConfig{
		MaxPackages:   parseInt(getEnv("TIPIFICADOR_MAX_BATCH_PACKAGES", "10"), 10),
		MaxBytes:      parseInt64(getEnv("TIPIFICADOR_MAX_BATCH_BYTES", "524288000"), 524288000),
		MaxConcurrent: parseInt(getEnv("TIPIFICADOR_MAX_CONCURRENT_BATCHES", "4"), 4),
	}

	cfg.Blob = BlobConfig{
		Bucket:        getEnv("TIPIFICADOR_BLOB_BUCKET", ""),
		ResultsPrefix: getEnv("TIPIFICADOR_BLOB_RESULTS_PREFIX", "results/"),
		UploadsPrefix: getEnv("TIPIFICADOR_BLOB_UPLOADS_PREFIX", "uploads/"),
		URLExpiry:     parseDuration(getEnv("TIPIFICADOR_BLOB_URL_EXPIRY", "15m"), 15*time.Minute),
		Region:        getEnv("AWS_REGION", "us-east-1"),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnv("TIPIFICADOR_METRICS_ADDR", ":9090"),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
