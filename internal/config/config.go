package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rawAppConfig struct {
	Port               int               `yaml:"port"`
	Env                string            `yaml:"env"`
	DSN                string            `yaml:"dsn"`
	RedisURL           string            `yaml:"redis_url"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	CORSAllowedOrigins []string          `yaml:"cors_allowed_origins"`
	RateLimit          *int64            `yaml:"rate_limit"`
	Paths              rawPathsConfig    `yaml:"paths"`
	Database           rawDatabaseConfig `yaml:"database"`
	Redis              rawRedisConfig    `yaml:"redis"`
	Storage            rawStorageConfig  `yaml:"storage"`
	AI                 rawAIConfig       `yaml:"ai"`
	TTS                rawTTSConfig      `yaml:"tts"`
	Pipeline           rawPipelineConfig `yaml:"pipeline"`
	Tracing            rawTracingConfig  `yaml:"tracing"`
	Alerts             rawAlertsConfig   `yaml:"alerts"`
}

type rawPathsConfig struct {
	Logs  string `yaml:"logs"`
	Media string `yaml:"media"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Path      string            `yaml:"path"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawStorageConfig struct {
	Driver        string       `yaml:"driver"`
	LocalDir      string       `yaml:"local_dir"`
	PublicBaseURL string       `yaml:"public_base_url"`
	S3            rawS3Options `yaml:"s3"`
}

type rawS3Options struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyleAccess bool   `yaml:"path_style_access"`
	CustomDomain    string `yaml:"custom_domain"`
	Prefix          string `yaml:"prefix"`
}

type rawAIConfig struct {
	Providers     []rawAIProvider   `yaml:"providers"`
	SimplifyModel *rawModelSelector `yaml:"simplify_model"`
	Embedding     rawModelSelector  `yaml:"embedding"`
}

type rawModelSelector struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type rawAIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      *bool  `yaml:"enabled"`
}

type rawTTSConfig struct {
	Providers        []rawTTSProvider `yaml:"providers"`
	FailureThreshold int              `yaml:"failure_threshold"`
	Cooldown         string           `yaml:"cooldown"`
	DefaultVoice     string           `yaml:"default_voice"`
}

type rawTTSProvider struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	MaxChars int    `yaml:"max_chars"`
	Enabled  *bool  `yaml:"enabled"`
}

type rawPipelineConfig struct {
	ChunkMinWords         int      `yaml:"chunk_min_words"`
	ChunkMaxWords         int      `yaml:"chunk_max_words"`
	SimilarityFloor       *float64 `yaml:"similarity_floor"`
	IdentityThreshold     *float64 `yaml:"identity_threshold"`
	MinLengthRatio        *float64 `yaml:"min_length_ratio"`
	MaxAttempts           int      `yaml:"max_attempts"`
	BackendRetries        *int     `yaml:"backend_retries"`
	TextTimeout           string   `yaml:"text_timeout"`
	AudioTimeout          string   `yaml:"audio_timeout"`
	LeaseTTL              string   `yaml:"lease_ttl"`
	PollInterval          string   `yaml:"poll_interval"`
	CacheTTL              string   `yaml:"cache_ttl"`
	PromptVersion         string   `yaml:"prompt_version"`
	RequestsPerSecond     *float64 `yaml:"requests_per_second"`
	Burst                 int      `yaml:"burst"`
	PrecomputeConcurrency int      `yaml:"precompute_concurrency"`
}

type rawTracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"service_name"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio *float64          `yaml:"sample_ratio"`
	Headers     map[string]string `yaml:"headers"`
}

type rawAlertsConfig struct {
	BarkKey    string `yaml:"bark_key"`
	BarkServer string `yaml:"bark_server"`
	Title      string `yaml:"title"`
	Throttle   string `yaml:"throttle"`
}

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults and validates the result.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:      defaultPort,
		Env:       defaultEnv,
		RateLimit: defaultRateLimit,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
			Path:      defaultSQLitePath,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Storage: StorageConfig{
			Driver:        defaultStorageDriver,
			PublicBaseURL: defaultMediaURL,
		},
		AI: AIConfig{
			Embedding: EmbeddingConfig{Model: defaultEmbeddingModel},
		},
		TTS: TTSConfig{
			FailureThreshold: defaultTTSFailureThreshold,
			Cooldown:         defaultTTSCooldown,
			DefaultVoice:     defaultVoice,
		},
		Pipeline: PipelineConfig{
			ChunkMinWords:         defaultChunkMinWords,
			ChunkMaxWords:         defaultChunkMaxWords,
			SimilarityFloor:       defaultSimilarityFloor,
			IdentityThreshold:     defaultIdentityThreshold,
			MinLengthRatio:        defaultMinLengthRatio,
			MaxAttempts:           defaultMaxAttempts,
			BackendRetries:        defaultBackendRetries,
			TextTimeout:           defaultTextTimeout,
			AudioTimeout:          defaultAudioTimeout,
			LeaseTTL:              defaultLeaseTTL,
			PollInterval:          defaultPollInterval,
			CacheTTL:              defaultCacheTTL,
			PromptVersion:         defaultPromptVersion,
			RequestsPerSecond:     defaultRequestsPerSecond,
			Burst:                 defaultBurst,
			PrecomputeConcurrency: defaultPrecompute,
		},
		Tracing: TracingConfig{
			ServiceName: defaultServiceName,
			SampleRatio: defaultSampleRatio,
		},
		Alerts: AlertsConfig{
			BarkServer: defaultBarkServer,
			Title:      defaultServiceName,
			Throttle:   defaultAlertThrottle,
		},
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Storage.LocalDir = cfg.Paths.Media
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}
	if raw.RateLimit != nil {
		cfg.RateLimit = *raw.RateLimit
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Media); v != "" {
		cfg.Paths.Media = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.Storage = applyRawStorageConfig(cfg.Storage, raw.Storage, cfg.Paths.Media)
	cfg.AI = applyRawAIConfig(cfg.AI, raw.AI)

	tts, err := applyRawTTSConfig(cfg.TTS, raw.TTS)
	if err != nil {
		return err
	}
	cfg.TTS = tts

	pipeline, err := applyRawPipelineConfig(cfg.Pipeline, raw.Pipeline)
	if err != nil {
		return err
	}
	cfg.Pipeline = pipeline
	cfg.Tracing = applyRawTracingConfig(cfg.Tracing, raw.Tracing)

	alerts, err := applyRawAlertsConfig(cfg.Alerts, raw.Alerts)
	if err != nil {
		return err
	}
	cfg.Alerts = alerts

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	db := raw.Database
	if v := strings.ToLower(strings.TrimSpace(db.Driver)); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(db.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		cfg.Host = v
	}
	if db.Port != 0 {
		cfg.Port = db.Port
	}
	if v := strings.TrimSpace(db.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(db.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(db.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(db.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		cfg.Charset = v
	}
	if db.ParseTime != nil {
		cfg.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		cfg.Loc = v
	}
	if v := strings.TrimSpace(db.Path); v != "" {
		cfg.Path = v
	}
	if len(db.Params) > 0 {
		cfg.Params = copyStringMap(db.Params)
	}
	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	r := raw.Redis
	if v := strings.TrimSpace(r.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		cfg.Host = v
	}
	if r.Port != 0 {
		cfg.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		cfg.Password = v
	}
	if r.DB != nil {
		cfg.DB = *r.DB
	}
	if r.TLS != nil {
		cfg.TLS = *r.TLS
	}
	return normalizeRedisConfig(cfg)
}

func applyRawStorageConfig(current StorageConfig, raw rawStorageConfig, mediaDir string) StorageConfig {
	cfg := current
	if v := strings.ToLower(strings.TrimSpace(raw.Driver)); v != "" {
		cfg.Driver = v
	}
	cfg.LocalDir = mediaDir
	if v := strings.TrimSpace(raw.LocalDir); v != "" {
		cfg.LocalDir = v
	}
	if v := strings.TrimSpace(raw.PublicBaseURL); v != "" {
		cfg.PublicBaseURL = strings.TrimRight(v, "/")
	}
	cfg.S3 = S3Options{
		Bucket:          strings.TrimSpace(raw.S3.Bucket),
		Region:          strings.TrimSpace(raw.S3.Region),
		Endpoint:        strings.TrimSpace(raw.S3.Endpoint),
		AccessKeyID:     strings.TrimSpace(raw.S3.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(raw.S3.SecretAccessKey),
		PathStyleAccess: raw.S3.PathStyleAccess,
		CustomDomain:    strings.TrimRight(strings.TrimSpace(raw.S3.CustomDomain), "/"),
		Prefix:          strings.Trim(strings.TrimSpace(raw.S3.Prefix), "/"),
	}
	return cfg
}

func applyRawAIConfig(current AIConfig, raw rawAIConfig) AIConfig {
	cfg := current
	for _, p := range raw.Providers {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		cfg.Providers = append(cfg.Providers, AIProvider{
			ID:           strings.TrimSpace(p.ID),
			Name:         strings.TrimSpace(p.Name),
			Type:         normalizeAIProviderType(p.Type),
			APIKey:       strings.TrimSpace(p.APIKey),
			Endpoint:     strings.TrimSpace(p.Endpoint),
			DefaultModel: strings.TrimSpace(p.DefaultModel),
			Enabled:      enabled,
		})
	}
	if raw.SimplifyModel != nil && strings.TrimSpace(raw.SimplifyModel.ProviderID) != "" {
		cfg.SimplifyModel = &AIModelAssignment{
			ProviderID: strings.TrimSpace(raw.SimplifyModel.ProviderID),
			Model:      strings.TrimSpace(raw.SimplifyModel.Model),
		}
	}
	if v := strings.TrimSpace(raw.Embedding.ProviderID); v != "" {
		cfg.Embedding.ProviderID = v
	}
	if v := strings.TrimSpace(raw.Embedding.Model); v != "" {
		cfg.Embedding.Model = v
	}
	return cfg
}

func applyRawTTSConfig(current TTSConfig, raw rawTTSConfig) (TTSConfig, error) {
	cfg := current
	for _, p := range raw.Providers {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		cfg.Providers = append(cfg.Providers, TTSProvider{
			ID:       strings.TrimSpace(p.ID),
			Type:     strings.ToLower(strings.TrimSpace(p.Type)),
			APIKey:   strings.TrimSpace(p.APIKey),
			Endpoint: strings.TrimSpace(p.Endpoint),
			Model:    strings.TrimSpace(p.Model),
			MaxChars: p.MaxChars,
			Enabled:  enabled,
		})
	}
	if raw.FailureThreshold != 0 {
		cfg.FailureThreshold = raw.FailureThreshold
	}
	if err := applyDuration(&cfg.Cooldown, raw.Cooldown, "tts.cooldown"); err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(raw.DefaultVoice); v != "" {
		cfg.DefaultVoice = v
	}
	return cfg, nil
}

func applyRawPipelineConfig(current PipelineConfig, raw rawPipelineConfig) (PipelineConfig, error) {
	cfg := current
	if raw.ChunkMinWords != 0 {
		cfg.ChunkMinWords = raw.ChunkMinWords
	}
	if raw.ChunkMaxWords != 0 {
		cfg.ChunkMaxWords = raw.ChunkMaxWords
	}
	if raw.SimilarityFloor != nil {
		cfg.SimilarityFloor = *raw.SimilarityFloor
	}
	if raw.IdentityThreshold != nil {
		cfg.IdentityThreshold = *raw.IdentityThreshold
	}
	if raw.MinLengthRatio != nil {
		cfg.MinLengthRatio = *raw.MinLengthRatio
	}
	if raw.MaxAttempts != 0 {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if raw.BackendRetries != nil {
		cfg.BackendRetries = *raw.BackendRetries
	}
	if raw.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *raw.RequestsPerSecond
	}
	if raw.Burst != 0 {
		cfg.Burst = raw.Burst
	}
	if raw.PrecomputeConcurrency != 0 {
		cfg.PrecomputeConcurrency = raw.PrecomputeConcurrency
	}
	if v := strings.TrimSpace(raw.PromptVersion); v != "" {
		cfg.PromptVersion = v
	}

	durations := []struct {
		dst  *time.Duration
		raw  string
		name string
	}{
		{&cfg.TextTimeout, raw.TextTimeout, "pipeline.text_timeout"},
		{&cfg.AudioTimeout, raw.AudioTimeout, "pipeline.audio_timeout"},
		{&cfg.LeaseTTL, raw.LeaseTTL, "pipeline.lease_ttl"},
		{&cfg.PollInterval, raw.PollInterval, "pipeline.poll_interval"},
		{&cfg.CacheTTL, raw.CacheTTL, "pipeline.cache_ttl"},
	}
	for _, d := range durations {
		if err := applyDuration(d.dst, d.raw, d.name); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func applyRawTracingConfig(current TracingConfig, raw rawTracingConfig) TracingConfig {
	cfg := current
	cfg.Enabled = raw.Enabled
	cfg.Insecure = raw.Insecure
	if v := strings.TrimSpace(raw.ServiceName); v != "" {
		cfg.ServiceName = v
	}
	cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	if raw.SampleRatio != nil {
		cfg.SampleRatio = *raw.SampleRatio
	}
	if len(raw.Headers) > 0 {
		cfg.Headers = copyStringMap(raw.Headers)
	}
	return cfg
}

func applyRawAlertsConfig(current AlertsConfig, raw rawAlertsConfig) (AlertsConfig, error) {
	cfg := current
	cfg.BarkKey = strings.TrimSpace(raw.BarkKey)
	if v := strings.TrimSpace(raw.BarkServer); v != "" {
		cfg.BarkServer = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.Title); v != "" {
		cfg.Title = v
	}
	if err := applyDuration(&cfg.Throttle, raw.Throttle, "alerts.throttle"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDuration(dst *time.Duration, raw, name string) error {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = d
	return nil
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	switch cfg.Database.Driver {
	case "mysql":
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
		}
	case "sqlite":
	default:
		return fmt.Errorf("invalid database.driver %q, expected mysql or sqlite", cfg.Database.Driver)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	switch cfg.Storage.Driver {
	case "local":
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when storage.driver is s3")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q, expected local or s3", cfg.Storage.Driver)
	}

	p := cfg.Pipeline
	if p.ChunkMinWords < 1 || p.ChunkMaxWords < p.ChunkMinWords {
		return fmt.Errorf("invalid chunk band %d-%d", p.ChunkMinWords, p.ChunkMaxWords)
	}
	for name, v := range map[string]float64{
		"pipeline.similarity_floor":   p.SimilarityFloor,
		"pipeline.identity_threshold": p.IdentityThreshold,
		"pipeline.min_length_ratio":   p.MinLengthRatio,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid %s %v, expected 0-1", name, v)
		}
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("invalid pipeline.max_attempts %d, expected >= 1", p.MaxAttempts)
	}
	if p.BackendRetries < 0 {
		return fmt.Errorf("invalid pipeline.backend_retries %d, expected >= 0", p.BackendRetries)
	}
	if p.LeaseTTL <= p.TextTimeout {
		return fmt.Errorf("pipeline.lease_ttl (%s) must exceed pipeline.text_timeout (%s)", p.LeaseTTL, p.TextTimeout)
	}
	if p.PollInterval <= 0 || p.CacheTTL <= 0 {
		return fmt.Errorf("pipeline.poll_interval and pipeline.cache_ttl must be positive")
	}
	if p.PrecomputeConcurrency < 1 {
		return fmt.Errorf("invalid pipeline.precompute_concurrency %d, expected >= 1", p.PrecomputeConcurrency)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("invalid tracing.sample_ratio %v, expected 0-1", cfg.Tracing.SampleRatio)
	}
	if cfg.TTS.FailureThreshold < 1 {
		return fmt.Errorf("invalid tts.failure_threshold %d, expected >= 1", cfg.TTS.FailureThreshold)
	}
	for _, tp := range cfg.TTS.Providers {
		switch tp.Type {
		case "openai", "elevenlabs", "webspeech":
		default:
			return fmt.Errorf("unknown tts provider type %q (id %q)", tp.Type, tp.ID)
		}
	}
	return nil
}

// IsDev reports whether the server runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env != "production"
}

// FindAIProvider returns the enabled provider with the given id.
func (c *AppConfig) FindAIProvider(id string) (AIProvider, bool) {
	for _, p := range c.AI.Providers {
		if p.ID == id && p.Enabled {
			return p, true
		}
	}
	return AIProvider{}, false
}
