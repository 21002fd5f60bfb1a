package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by MARGINAL_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MARGINAL_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver returns the persistence backend.
// Defaults to "sqlite" if not set.
// Valid values: sqlite, postgres
func StoreDriver() string {
	d := os.Getenv("STORE_DRIVER")
	if d == "" {
		return "sqlite"
	}
	return d
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "marginal.db"
	}
	return p
}

// APIKey returns the bearer key clients must present. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// QueryTimeout bounds a single inference request.
// Defaults to 30s if not set.
func QueryTimeout() time.Duration {
	return duration("QUERY_TIMEOUT", 30*time.Second)
}

// InferenceWorkers caps concurrent queries in a batch marginals request.
// Defaults to GOMAXPROCS.
func InferenceWorkers() int {
	n, err := strconv.Atoi(os.Getenv("INFERENCE_WORKERS"))
	if err != nil || n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// NetworkCacheSize is the number of compiled networks kept in memory.
// Defaults to 64 if not set.
func NetworkCacheSize() int {
	n, err := strconv.Atoi(os.Getenv("NETWORK_CACHE_SIZE"))
	if err != nil || n <= 0 {
		return 64
	}
	return n
}

// QueryRetention is how long query history is kept.
// Defaults to one week.
func QueryRetention() time.Duration {
	return duration("QUERY_RETENTION", 168*time.Hour)
}

func ExpirerInterval() time.Duration {
	return duration("EXPIRER_INTERVAL", time.Hour)
}

// MaxNetworkBytes limits the size of an uploaded network source.
// Defaults to 4 MiB.
func MaxNetworkBytes() int64 {
	n, err := strconv.ParseInt(os.Getenv("MAX_NETWORK_BYTES"), 10, 64)
	if err != nil || n <= 0 {
		return 4 << 20
	}
	return n
}

// DefaultHeuristic names the elimination heuristic used when a request does
// not pick one.
func DefaultHeuristic() string {
	h := os.Getenv("DEFAULT_HEURISTIC")
	if h == "" {
		return "min-fill"
	}
	return h
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
