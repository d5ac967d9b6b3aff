package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	RetryWorker RetryWorkerConfig
	TTS         TTSConfig
	Metrics     MetricsConfig
	Auth        AuthConfig
	LogLevel    string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// QueueConfig carries the store connection string and the reference
// backoff/retry tunables from the environment table.
type QueueConfig struct {
	DatabaseURL            string
	MaxAttempts            int
	VisibilityTimeout      time.Duration
	RetryBaseDelay         time.Duration
	RetryBackoffMultiplier float64
	MaxRetryDelay          time.Duration
	BatchSize              int
}

// WorkerConfig tunes the primary worker's poll loop.
type WorkerConfig struct {
	PollDelay time.Duration
	BatchSize int
}

// RetryWorkerConfig tunes the reaper's poll loop and its own view of
// visibility timeout / max attempts, independent of QueueConfig's
// defaults (a caller may run the reaper more aggressively than the
// queue's baked-in default).
type RetryWorkerConfig struct {
	PollDelay         time.Duration
	BatchSize         int
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// TTSConfig tunes the synthesis pool, independent of queue/worker batch
// sizing.
type TTSConfig struct {
	ThreadPoolMaxWorkers int
	GenerationTimeout    time.Duration
	VoicePreloadTimeout  time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads configuration from the environment, falling back to the
// reference defaults called out in the environment table. Unlike a
// nested-struct/prefix binding, each key below is bound to its exact
// published name so the wire names are stable regardless of how this
// struct is organized internally.
func Load() (*Config, error) {
	setDefaults()
	bindEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         viper.GetString("server.host"),
			Port:         viper.GetInt("server.port"),
			ReadTimeout:  viper.GetDuration("server.readtimeout"),
			WriteTimeout: viper.GetDuration("server.writetimeout"),
			IdleTimeout:  viper.GetDuration("server.idletimeout"),
		},
		Queue: QueueConfig{
			DatabaseURL:            viper.GetString("QUEUE_DATABASE_URL"),
			MaxAttempts:            viper.GetInt("QUEUE_MAX_ATTEMPTS"),
			VisibilityTimeout:      viper.GetDuration("QUEUE_VISIBILITY_TIMEOUT"),
			RetryBaseDelay:         viper.GetDuration("QUEUE_RETRY_BASE_DELAY"),
			RetryBackoffMultiplier: viper.GetFloat64("QUEUE_RETRY_BACKOFF_MULTIPLIER"),
			MaxRetryDelay:          viper.GetDuration("QUEUE_MAX_RETRY_DELAY"),
			BatchSize:              viper.GetInt("QUEUE_BATCH_SIZE"),
		},
		Worker: WorkerConfig{
			PollDelay: viper.GetDuration("WORKER_POLL_DELAY"),
			BatchSize: viper.GetInt("WORKER_BATCH_SIZE"),
		},
		RetryWorker: RetryWorkerConfig{
			PollDelay:         viper.GetDuration("RETRY_WORKER_POLL_DELAY"),
			BatchSize:         viper.GetInt("RETRY_WORKER_BATCH_SIZE"),
			VisibilityTimeout: viper.GetDuration("RETRY_WORKER_VISIBILITY_TIMEOUT"),
			MaxAttempts:       viper.GetInt("RETRY_WORKER_MAX_ATTEMPTS"),
		},
		TTS: TTSConfig{
			ThreadPoolMaxWorkers: viper.GetInt("TTS_THREAD_POOL_MAX_WORKERS"),
			GenerationTimeout:    viper.GetDuration("TTS_GENERATION_TIMEOUT"),
			VoicePreloadTimeout:  viper.GetDuration("VOICE_PRELOAD_TIMEOUT"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("metrics.enabled"),
			Path:    viper.GetString("metrics.path"),
		},
		Auth: AuthConfig{
			Enabled:   viper.GetBool("AUTH_ENABLED"),
			JWTSecret: viper.GetString("AUTH_JWT_SECRET"),
			APIKeys:   viper.GetStringSlice("AUTH_API_KEYS"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	return cfg, nil
}

// bindEnv ties each published option to the literal environment variable
// name from the environment table, so e.g. QUEUE_MAX_ATTEMPTS is read
// verbatim rather than via a TASKQUEUE_ prefix or nested struct path.
func bindEnv() {
	viper.AutomaticEnv()

	names := []string{
		"QUEUE_DATABASE_URL",
		"QUEUE_MAX_ATTEMPTS",
		"QUEUE_VISIBILITY_TIMEOUT",
		"QUEUE_RETRY_BASE_DELAY",
		"QUEUE_RETRY_BACKOFF_MULTIPLIER",
		"QUEUE_MAX_RETRY_DELAY",
		"QUEUE_BATCH_SIZE",
		"WORKER_POLL_DELAY",
		"WORKER_BATCH_SIZE",
		"RETRY_WORKER_POLL_DELAY",
		"RETRY_WORKER_BATCH_SIZE",
		"RETRY_WORKER_VISIBILITY_TIMEOUT",
		"RETRY_WORKER_MAX_ATTEMPTS",
		"TTS_THREAD_POOL_MAX_WORKERS",
		"TTS_GENERATION_TIMEOUT",
		"VOICE_PRELOAD_TIMEOUT",
		"AUTH_ENABLED",
		"AUTH_JWT_SECRET",
		"AUTH_API_KEYS",
		"LOG_LEVEL",
		"EVENTS_REDIS_ADDR",
	}
	for _, n := range names {
		_ = viper.BindEnv(n)
	}
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	viper.SetDefault("QUEUE_DATABASE_URL", "tasks.db")
	viper.SetDefault("QUEUE_MAX_ATTEMPTS", 3)
	viper.SetDefault("QUEUE_VISIBILITY_TIMEOUT", 3600*time.Second)
	viper.SetDefault("QUEUE_RETRY_BASE_DELAY", 60*time.Second)
	viper.SetDefault("QUEUE_RETRY_BACKOFF_MULTIPLIER", 2.0)
	viper.SetDefault("QUEUE_MAX_RETRY_DELAY", 3600*time.Second)
	viper.SetDefault("QUEUE_BATCH_SIZE", 100)

	viper.SetDefault("WORKER_POLL_DELAY", 1*time.Second)
	viper.SetDefault("WORKER_BATCH_SIZE", 10)

	viper.SetDefault("RETRY_WORKER_POLL_DELAY", 5*time.Second)
	viper.SetDefault("RETRY_WORKER_BATCH_SIZE", 10)
	viper.SetDefault("RETRY_WORKER_VISIBILITY_TIMEOUT", 3600*time.Second)
	viper.SetDefault("RETRY_WORKER_MAX_ATTEMPTS", 3)

	viper.SetDefault("TTS_THREAD_POOL_MAX_WORKERS", 4)
	viper.SetDefault("TTS_GENERATION_TIMEOUT", 30*time.Second)
	viper.SetDefault("VOICE_PRELOAD_TIMEOUT", 10*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("AUTH_ENABLED", false)
	viper.SetDefault("AUTH_JWT_SECRET", "")
	viper.SetDefault("AUTH_API_KEYS", []string{})

	viper.SetDefault("LOG_LEVEL", "info")
}
