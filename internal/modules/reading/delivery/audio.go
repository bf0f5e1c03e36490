package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/pkg/lease"
)

var errAudioLeaseExpired = errors.New("audio lease expired")

// attachAudio fills the audio fields of b. Failures leave the text intact and
// add a notice.
func (s *Service) attachAudio(ctx context.Context, b *Bundle, voiceID string) {
	if s.deps.Audio == nil {
		return
	}
	level := b.Level
	if !b.Simplified {
		level = cefr.Original
	}
	key := audiopath.Key{BookID: b.BookID, ChunkIndex: b.ChunkIndex, Level: level, VoiceID: voiceID}
	hash := TextHash(b.Text)

	asset, err := s.deps.Assets.Find(ctx, key)
	if err == nil && !reusable(asset, hash, b.GeneratorVersion) {
		asset, err = s.synthesizeShared(ctx, key, b.Text, hash, b.GeneratorVersion)
	}
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("audio unavailable", zap.String("key", key.String()), zap.Error(err))
		}
		b.Notices = append(b.Notices, NoticeAudioUnavailable)
		return
	}

	info := &AudioInfo{
		DurationMs:   asset.DurationMs,
		Provider:     asset.Provider,
		ContentType:  asset.ContentType,
		ClientSpeech: asset.ClientSpeech,
	}
	if !asset.ClientSpeech {
		info.URL = s.deps.Objects.URL(asset.Path)
	}
	b.Audio = info
	b.AudioAvailable = true
	b.Timings = EstimateTimings(b.Text, asset.DurationMs)
}

func reusable(asset *models.AudioAssetModel, hash, version string) bool {
	return asset != nil && asset.TextHash == hash && asset.GeneratorVersion == version
}

func (s *Service) synthesizeShared(ctx context.Context, key audiopath.Key, text, hash, version string) (*models.AudioAssetModel, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.audioGroup.DoChan(key.String()+"#"+hash, func() (any, error) {
		return s.synthesizeLeased(shared, key, text, hash, version)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.AudioAssetModel), nil
	}
}

// synthesizeLeased keeps one synthesis per asset key across processes. A
// waiter whose holder disappears without writing takes the lease over.
func (s *Service) synthesizeLeased(ctx context.Context, key audiopath.Key, text, hash, version string) (*models.AudioAssetModel, error) {
	leaseKey := "audio:" + key.String()
	for {
		token, ok, err := s.deps.Leases.Acquire(ctx, leaseKey, s.opts.AudioLeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire audio lease: %w", err)
		}
		if ok {
			stop := lease.Keep(ctx, s.deps.Leases, leaseKey, token, s.opts.AudioLeaseTTL, func(err error) {
				s.log.Warn("audio lease renewal failed", zap.String("key", key.String()), zap.Error(err))
			})
			asset, err := s.synthesize(ctx, key, text, hash, version)
			stop()
			if rerr := s.deps.Leases.Release(ctx, leaseKey, token); rerr != nil && !errors.Is(rerr, lease.ErrNotHeld) {
				s.log.Warn("release audio lease failed", zap.String("key", key.String()), zap.Error(rerr))
			}
			return asset, err
		}

		asset, err := s.waitForAudio(ctx, leaseKey, key, hash, version)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, errAudioLeaseExpired) {
			return nil, err
		}
		s.log.Warn("audio lease expired, retrying", zap.String("key", key.String()))
	}
}

func (s *Service) waitForAudio(ctx context.Context, leaseKey string, key audiopath.Key, hash, version string) (*models.AudioAssetModel, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		asset, err := s.deps.Assets.Find(ctx, key)
		if err != nil {
			return nil, err
		}
		if reusable(asset, hash, version) {
			return asset, nil
		}
		held, err := s.deps.Leases.Held(ctx, leaseKey)
		if err != nil {
			return nil, err
		}
		if !held {
			return nil, errAudioLeaseExpired
		}
	}
}

func (s *Service) synthesize(ctx context.Context, key audiopath.Key, text, hash, version string) (*models.AudioAssetModel, error) {
	// a holder that finished just before we acquired
	if asset, err := s.deps.Assets.Find(ctx, key); err == nil && reusable(asset, hash, version) {
		return asset, nil
	}

	out, err := s.deps.Audio.Synthesize(ctx, text, key.VoiceID)
	if err != nil {
		return nil, err
	}
	row := &models.AudioAssetModel{
		BookID:           key.BookID,
		ChunkIndex:       key.ChunkIndex,
		Level:            string(key.Level),
		VoiceID:          key.VoiceID,
		DurationMs:       out.DurationMs,
		Provider:         out.Provider,
		ContentType:      out.ContentType,
		ClientSpeech:     out.ClientSpeech,
		TextHash:         hash,
		GeneratorVersion: version,
	}
	if out.ClientSpeech {
		// nothing to store; the reader speaks the text itself
		return row, nil
	}

	path := audiopath.PathFor(key)
	if err := s.deps.Paths.Claim(ctx, key, path); err != nil {
		return nil, err
	}
	if err := s.deps.Objects.Put(ctx, path, out.Data, out.ContentType); err != nil {
		return nil, fmt.Errorf("store audio %s: %w", path, err)
	}
	row.Path = path
	row.ByteSize = int64(len(out.Data))
	if err := s.deps.Assets.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("record audio asset: %w", err)
	}
	return row, nil
}
