package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/database"
	"github.com/bookbridge/core/internal/modules/library/book"
	"github.com/bookbridge/core/internal/modules/reading/audio"
	"github.com/bookbridge/core/internal/modules/reading/audio/providers"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/chunker"
	"github.com/bookbridge/core/internal/modules/reading/delivery"
	"github.com/bookbridge/core/internal/modules/reading/precompute"
	"github.com/bookbridge/core/internal/modules/reading/quality"
	"github.com/bookbridge/core/internal/modules/reading/simplification"
	"github.com/bookbridge/core/internal/modules/reading/simplifier"
	"github.com/bookbridge/core/internal/pkg/embedding"
	"github.com/bookbridge/core/internal/pkg/lease"
	"github.com/bookbridge/core/internal/pkg/llm"
	"github.com/bookbridge/core/internal/pkg/objectstore"
	pkgredis "github.com/bookbridge/core/internal/pkg/redis"
	"github.com/bookbridge/core/internal/pkg/taskqueue"
)

const leasePrefix = "bb:lease:"

// Pipeline is the wired component graph shared by the server and the CLI.
type Pipeline struct {
	DB         *gorm.DB
	Redis      *pkgredis.Client
	Objects    objectstore.Store
	Cache      *simplification.Cache
	Paths      *audiopath.Registry
	Assets     *audiopath.Assets
	Books      *book.Service
	Delivery   *delivery.Service
	Tasks      *taskqueue.Service
	Precompute *precompute.Service
}

// NewPipeline connects the stores and builds every service: config → DB →
// Redis → object storage → generators → cache → delivery.
func NewPipeline(cfg *config.AppConfig, log *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	p := cfg.Pipeline

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	objects, err := objectstore.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	model, err := llm.New(cfg.AI, cfg.AI.SimplifyModel)
	if err != nil {
		return nil, fmt.Errorf("simplify model: %w", err)
	}
	simp := simplifier.New(model, simplifier.Options{
		Timeout:           p.TextTimeout,
		PromptVersion:     p.PromptVersion,
		Retries:           p.BackendRetries,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
	}, log)

	embedProvider, ok := embeddingProvider(cfg)
	if !ok {
		return nil, errors.New("embedding: no enabled AI provider")
	}
	engine, err := embedding.NewOpenAI(embedProvider, cfg.AI.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	gate := quality.NewGate(embedding.NewSimilarity(engine), quality.Thresholds{
		SimilarityFloor:   p.SimilarityFloor,
		IdentityThreshold: p.IdentityThreshold,
		MinLengthRatio:    p.MinLengthRatio,
	})

	ttsProviders, err := providers.FromConfig(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	voices, err := audio.New(ttsProviders, audio.Options{
		Timeout:           p.AudioTimeout,
		Retries:           p.BackendRetries,
		FailureThreshold:  cfg.TTS.FailureThreshold,
		Cooldown:          cfg.TTS.Cooldown,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}

	leases := lease.NewRedis(rc, leasePrefix)
	cache := simplification.New(simplification.NewGormStore(db), simplification.NewRedisFast(rc), leases, simplification.Options{
		Version:      simp.Version(),
		LeaseTTL:     p.LeaseTTL,
		PollInterval: p.PollInterval,
		CacheTTL:     p.CacheTTL,
	}, log)

	paths := audiopath.NewRegistry(db, log)
	assets := audiopath.NewAssets(db)
	books := book.NewService(db, chunker.Options{MinWords: p.ChunkMinWords, MaxWords: p.ChunkMaxWords}, cache, assets, objects, log)

	audioLease := p.AudioTimeout + p.AudioTimeout/4
	if audioLease < p.LeaseTTL {
		audioLease = p.LeaseTTL
	}
	reader := delivery.NewService(delivery.Deps{
		Chunks:     books,
		Cache:      cache,
		Simplifier: simp,
		Gate:       gate,
		Audio:      voices,
		Assets:     assets,
		Paths:      paths,
		Objects:    objects,
		Leases:     leases,
		Log:        log,
	}, delivery.Options{
		DefaultVoice:  cfg.TTS.DefaultVoice,
		LevelAttempts: p.MaxAttempts,
		AudioLeaseTTL: audioLease,
		PollInterval:  p.PollInterval,
	})

	tasks := taskqueue.NewService(rc)
	return &Pipeline{
		DB:         db,
		Redis:      rc,
		Objects:    objects,
		Cache:      cache,
		Paths:      paths,
		Assets:     assets,
		Books:      books,
		Delivery:   reader,
		Tasks:      tasks,
		Precompute: precompute.New(books, reader, tasks, p.PrecomputeConcurrency, log),
	}, nil
}

// Close stops background precompute runs and releases connections.
func (p *Pipeline) Close() {
	p.Precompute.Shutdown()
	if sqlDB, err := p.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = p.Redis.Close()
}

// embeddingProvider picks ai.embedding.provider_id, then the simplify
// provider, then the first enabled provider.
func embeddingProvider(cfg *config.AppConfig) (config.AIProvider, bool) {
	if p, ok := cfg.FindAIProvider(cfg.AI.Embedding.ProviderID); ok {
		return p, true
	}
	if cfg.AI.SimplifyModel != nil {
		if p, ok := cfg.FindAIProvider(cfg.AI.SimplifyModel.ProviderID); ok {
			return p, true
		}
	}
	for _, p := range cfg.AI.Providers {
		if p.Enabled {
			return p, true
		}
	}
	return config.AIProvider{}, false
}
