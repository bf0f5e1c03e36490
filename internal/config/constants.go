package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2480
	defaultEnv        = "development"
	defaultRateLimit  = 20

	defaultDBDriver   = "mysql"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "bookbridge"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultSQLitePath = "bookbridge.db"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultStorageDriver = "local"
	defaultMediaDir      = "media"
	defaultMediaURL      = "/media"

	defaultChunkMinWords     = 150
	defaultChunkMaxWords     = 400
	defaultSimilarityFloor   = 0.75
	defaultIdentityThreshold = 0.97
	defaultMinLengthRatio    = 0.3
	defaultMaxAttempts       = 2
	defaultBackendRetries    = 3
	defaultTextTimeout       = 30 * time.Second
	defaultAudioTimeout      = 120 * time.Second
	defaultLeaseTTL          = 90 * time.Second
	defaultPollInterval      = 250 * time.Millisecond
	defaultCacheTTL          = 24 * time.Hour
	defaultPromptVersion     = "cefr-v1"
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
	defaultPrecompute        = 4

	defaultTTSFailureThreshold = 3
	defaultTTSCooldown         = 60 * time.Second
	defaultVoice               = "nova"
	defaultEmbeddingModel      = "text-embedding-3-small"

	defaultServiceName = "bookbridge"
	defaultSampleRatio = 0.1

	defaultBarkServer    = "https://day.app"
	defaultAlertThrottle = 10 * time.Minute
)
