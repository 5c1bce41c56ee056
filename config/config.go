package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port          string
	PublicBaseURL string
	LogLevel      string

	Neo4jURI                string
	Neo4jUsername           string
	Neo4jPassword           string
	Neo4jDatabase           string
	Neo4jMaxPoolSize        int
	Neo4jAcquisitionTimeout time.Duration

	MongoURI      string
	MongoDatabase string

	RedisURL      string
	RedisPassword string
	CacheBackend  string

	StatusTTL        time.Duration
	CacheCheckPeriod time.Duration

	VerificationServiceURL string
	UploadServiceURL       string
	AnalysisServiceURL     string

	DescribeTimeout    time.Duration
	FingerprintTimeout time.Duration
	ForgeryTimeout     time.Duration
	AnalysisTimeout    time.Duration

	AnnotateMaxAttempts   int
	AnnotateDelay         time.Duration
	GraphWriteMaxAttempts int
	GraphWriteDelay       time.Duration

	JWTSecret string

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
}

// ErrMissing is returned (wrapped) when a required variable is absent.
var ErrMissing = errors.New("missing required configuration")

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	port := e.str("PORT", ":8080")
	if port[0] != ':' {
		port = ":" + port
	}

	cfg := Config{
		Port:          port,
		PublicBaseURL: strings.TrimRight(e.str("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:      e.str("LOG_LEVEL", "info"),

		Neo4jURI:                e.get("NEO4J_URI"),
		Neo4jUsername:           e.get("NEO4J_USERNAME"),
		Neo4jPassword:           e.get("NEO4J_PASSWORD"),
		Neo4jDatabase:           e.str("NEO4J_DATABASE", "neo4j"),
		Neo4jMaxPoolSize:        e.int("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jAcquisitionTimeout: e.duration("NEO4J_ACQUISITION_TIMEOUT", 30*time.Second),

		MongoURI:      e.str("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: e.str("MONGO_DATABASE", "credify"),

		RedisURL:      e.get("REDIS_URL"),
		RedisPassword: e.get("REDIS_PASSWORD"),
		CacheBackend:  strings.ToLower(e.str("CACHE_BACKEND", "memory")),

		StatusTTL:        e.duration("STATUS_TTL", time.Hour),
		CacheCheckPeriod: e.duration("CACHE_CHECK_PERIOD", 10*time.Minute),

		VerificationServiceURL: strings.TrimRight(e.get("VERIFICATION_SERVICE_BASE_URL"), "/"),
		UploadServiceURL:       strings.TrimRight(e.get("UPLOAD_SERVICE_BASE_URL"), "/"),
		AnalysisServiceURL:     strings.TrimRight(e.get("ANALYSIS_SERVICE_URL"), "/"),

		DescribeTimeout:    e.duration("DESCRIBE_TIMEOUT", 30*time.Second),
		FingerprintTimeout: e.duration("FINGERPRINT_TIMEOUT", 10*time.Minute),
		ForgeryTimeout:     e.duration("FORGERY_TIMEOUT", 10*time.Minute),
		AnalysisTimeout:    e.duration("ANALYSIS_TIMEOUT", 2*time.Minute),

		AnnotateMaxAttempts:   e.int("ANNOTATE_MAX_ATTEMPTS", 5),
		AnnotateDelay:         e.duration("ANNOTATE_DELAY", 2*time.Second),
		GraphWriteMaxAttempts: e.int("GRAPH_WRITE_MAX_ATTEMPTS", 3),
		GraphWriteDelay:       e.duration("GRAPH_WRITE_DELAY", 500*time.Millisecond),

		JWTSecret: e.get("JWT_SECRET"),

		RateLimitMaxRequests: e.int("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:      e.duration("RATE_LIMIT_WINDOW", 15*time.Minute),
	}

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing required variable at once.
func (c Config) Validate() error {
	var missing []string
	required := []struct{ name, val string }{
		{"NEO4J_URI", c.Neo4jURI},
		{"NEO4J_USERNAME", c.Neo4jUsername},
		{"NEO4J_PASSWORD", c.Neo4jPassword},
		{"VERIFICATION_SERVICE_BASE_URL", c.VerificationServiceURL},
		{"UPLOAD_SERVICE_BASE_URL", c.UploadServiceURL},
	}
	for _, r := range required {
		if r.val == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL (CACHE_BACKEND=redis)", ErrMissing)
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	return nil
}

type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
