package config

import "time"

// AppConfig holds runtime configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
	Paths          RuntimePathsConfig
	Database       DatabaseRuntimeConfig
	Redis          RedisRuntimeConfig
	Storage        StorageConfig
	AI             AIConfig
	TTS            TTSConfig
	Pipeline       PipelineConfig
	Tracing        TracingConfig
	Alerts         AlertsConfig
	// RateLimit caps generation requests per client IP per second; 0 disables.
	RateLimit int64

	// DSN and RedisURL are derived from Database and Redis.
	DSN      string
	RedisURL string
}

type RuntimePathsConfig struct {
	Logs  string
	Media string
}

type DatabaseRuntimeConfig struct {
	Driver    string // mysql | sqlite
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Path      string // sqlite file
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

// StorageConfig selects where synthesized audio is written.
type StorageConfig struct {
	Driver        string // local | s3
	LocalDir      string
	PublicBaseURL string
	S3            S3Options
}

type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyleAccess bool
	CustomDomain    string
	Prefix          string
}

type AIConfig struct {
	Providers     []AIProvider
	SimplifyModel *AIModelAssignment
	Embedding     EmbeddingConfig
}

type AIModelAssignment struct {
	ProviderID string
	Model      string
}

type AIProvider struct {
	ID           string
	Name         string
	Type         string // OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey       string
	Endpoint     string
	DefaultModel string
	Enabled      bool
}

// EmbeddingConfig points at an OpenAI-style provider for similarity scoring.
type EmbeddingConfig struct {
	ProviderID string
	Model      string
}

type TTSConfig struct {
	Providers        []TTSProvider
	FailureThreshold int
	Cooldown         time.Duration
	DefaultVoice     string
}

// TTSProvider is one entry of the ordered fallback chain.
type TTSProvider struct {
	ID       string
	Type     string // openai | elevenlabs | webspeech
	APIKey   string
	Endpoint string
	Model    string
	MaxChars int
	Enabled  bool
}

type PipelineConfig struct {
	ChunkMinWords         int
	ChunkMaxWords         int
	SimilarityFloor       float64
	IdentityThreshold     float64
	MinLengthRatio        float64
	MaxAttempts           int
	BackendRetries        int
	TextTimeout           time.Duration
	AudioTimeout          time.Duration
	LeaseTTL              time.Duration
	PollInterval          time.Duration
	CacheTTL              time.Duration
	PromptVersion         string
	RequestsPerSecond     float64
	Burst                 int
	PrecomputeConcurrency int
}

// TracingConfig controls OpenTelemetry export. An empty Endpoint writes spans
// to stdout.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	Headers     map[string]string
}

// AlertsConfig sends error-level log entries to a Bark push server. Alerts
// are off while BarkKey is empty.
type AlertsConfig struct {
	BarkKey    string
	BarkServer string
	Title      string
	Throttle   time.Duration
}
