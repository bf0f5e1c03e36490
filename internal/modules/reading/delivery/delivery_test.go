package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/database"
	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/audio"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/quality"
	"github.com/bookbridge/core/internal/modules/reading/simplification"
	"github.com/bookbridge/core/internal/modules/reading/simplifier"
	"github.com/bookbridge/core/internal/pkg/lease"
	"github.com/bookbridge/core/internal/pkg/objectstore"
)

const (
	original   = "It was the best of times, it was the worst of times, it was the age of wisdom, it was the age of foolishness."
	simplified = "Times were good and times were bad. People were wise and people were silly."
	version    = "fake:model+cefr-v1"
)

type chunkMap map[string]*models.ChunkModel

func (m chunkMap) Chunk(_ context.Context, bookID string, index int) (*models.ChunkModel, error) {
	c := m[bookID]
	if c == nil || c.Index != index {
		return nil, nil
	}
	return c, nil
}

// scriptedSimplifier answers per "level/strength".
type scriptedSimplifier struct {
	mu      sync.Mutex
	replies map[string]string
	failAll bool
	calls   []string
}

func (s *scriptedSimplifier) Simplify(_ context.Context, _ string, req simplifier.Request) (simplifier.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(req.Level) + "/" + string(req.Strength)
	s.calls = append(s.calls, key)
	if s.failAll {
		return simplifier.Candidate{}, simplifier.ErrGenerationBackend
	}
	text, ok := s.replies[key]
	if !ok {
		text = original
	}
	return simplifier.Candidate{Text: text, Level: req.Level, Strength: req.Strength, GeneratorVersion: version}, nil
}

func (s *scriptedSimplifier) callList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type constSimilarity float64

func (c constSimilarity) Similarity(context.Context, string, string) (float64, error) {
	return float64(c), nil
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	fail  bool
	delay time.Duration
}

func (p *countingProvider) Name() string  { return "fake-tts" }
func (p *countingProvider) MaxChars() int { return 0 }

func (p *countingProvider) Synthesize(_ context.Context, text, _ string) (*audio.Clip, error) {
	time.Sleep(p.delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, &audio.ProviderError{Provider: "fake-tts", Status: 400, Err: errors.New("bad voice")}
	}
	return &audio.Clip{Data: []byte("mp3:" + text), ContentType: "audio/mpeg", DurationMs: 4000}, nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	simp     *scriptedSimplifier
	tts      *countingProvider
	mediaDir string
}

func newFixture(t *testing.T, simp *scriptedSimplifier) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	leases := lease.NewMemory()
	cache := simplification.New(simplification.NewGormStore(db), nil, leases, simplification.Options{
		Version:      version,
		LeaseTTL:     time.Second,
		PollInterval: 5 * time.Millisecond,
	}, nil)

	tts := &countingProvider{}
	gen, err := audio.New([]audio.Provider{tts}, audio.Options{RetryInitial: time.Millisecond}, nil)
	require.NoError(t, err)

	mediaDir := t.TempDir()
	store, err := objectstore.NewLocal(mediaDir, "/media")
	require.NoError(t, err)

	chunks := chunkMap{
		"X":        {BookID: "X", Index: 0, Text: original},
		"Y":        {BookID: "Y", Index: 0, Text: original},
		"book/odd": {BookID: "book/odd", Index: 0, Text: original},
	}
	svc := NewService(Deps{
		Chunks:     chunks,
		Cache:      cache,
		Simplifier: simp,
		Gate:       quality.NewGate(constSimilarity(0.9), quality.DefaultThresholds),
		Audio:      gen,
		Assets:     audiopath.NewAssets(db),
		Paths:      audiopath.NewRegistry(db, nil),
		Objects:    store,
		Leases:     leases,
	}, Options{PollInterval: 5 * time.Millisecond})
	return &fixture{svc: svc, db: db, simp: simp, tts: tts, mediaDir: mediaDir}
}

func TestHappyPathBookX(t *testing.T) {
	simp := &scriptedSimplifier{replies: map[string]string{"A1/normal": simplified}}
	f := newFixture(t, simp)
	ctx := context.Background()

	b, err := f.svc.GetReadableChunk(ctx, Request{BookID: "X", ChunkIndex: 0, Level: cefr.A1})
	require.NoError(t, err)

	assert.True(t, b.Simplified)
	assert.Equal(t, simplified, b.Text)
	assert.Equal(t, "A1/normal", b.Strategy)
	assert.Equal(t, version, b.GeneratorVersion)
	assert.Empty(t, b.Notices)
	require.True(t, b.AudioAvailable)
	assert.Equal(t, "/media/audio/X/A1/nova/chunk_00000.mp3", b.Audio.URL)
	assert.Equal(t, int64(4000), b.Audio.DurationMs)
	require.Len(t, b.Timings, len(strings.Fields(simplified)))
	assert.Equal(t, int64(4000), b.Timings[len(b.Timings)-1].EndMs)

	var asset models.AudioAssetModel
	require.NoError(t, f.db.First(&asset).Error)
	assert.Contains(t, asset.Path, "X")
	assert.Equal(t, TextHash(simplified), asset.TextHash)
	data, err := os.ReadFile(filepath.Join(f.mediaDir, filepath.FromSlash(asset.Path)))
	require.NoError(t, err)
	assert.Equal(t, "mp3:"+simplified, string(data))

	// second read hits both caches
	_, err = f.svc.GetReadableChunk(ctx, Request{BookID: "X", ChunkIndex: 0, Level: cefr.A1})
	require.NoError(t, err)
	assert.Len(t, simp.callList(), 1)
	assert.Equal(t, 1, f.tts.calls)
}

func TestRejectedCandidatesFallBackToLessAggressiveLevel(t *testing.T) {
	// A1 attempts echo the source and are rejected; A2 passes.
	simp := &scriptedSimplifier{replies: map[string]string{"A2/normal": simplified}}
	f := newFixture(t, simp)

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.A1})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1/normal", "A1/strong", "A2/normal"}, simp.callList())
	assert.True(t, b.Simplified)
	assert.Equal(t, "A2/normal", b.Strategy)
	assert.Equal(t, cefr.A1, b.Level)
}

func TestAllStrategiesRejectedServesOriginal(t *testing.T) {
	simp := &scriptedSimplifier{}
	f := newFixture(t, simp)

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.B1})
	require.NoError(t, err)
	assert.False(t, b.Simplified)
	assert.Equal(t, original, b.Text)
	assert.Contains(t, b.Notices, NoticeSimplificationUnavailable)
	require.True(t, b.AudioAvailable)
	assert.Contains(t, b.Audio.URL, "/original/")

	// rejections are not cached
	_, err = f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.B1})
	require.NoError(t, err)
	assert.Len(t, simp.callList(), 6)
}

func TestEchoedSourceIsNeverServedBelowC2(t *testing.T) {
	for _, level := range []cefr.Level{cefr.A1, cefr.A2, cefr.B1, cefr.B2, cefr.C1} {
		t.Run(string(level), func(t *testing.T) {
			simp := &scriptedSimplifier{}
			f := newFixture(t, simp)

			b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: level})
			require.NoError(t, err)
			assert.False(t, b.Simplified)
			assert.Equal(t, original, b.Text)
			assert.Contains(t, b.Notices, NoticeSimplificationUnavailable)
			assert.Len(t, simp.callList(), 3)

			_, err = f.svc.deps.Cache.(*simplification.Cache).Get(context.Background(),
				simplification.Key{BookID: "X", ChunkIndex: 0, Level: level})
			assert.ErrorIs(t, err, simplification.ErrMiss)
		})
	}
}

func TestC1FallbackToC2EchoIsRejected(t *testing.T) {
	simp := &scriptedSimplifier{}
	f := newFixture(t, simp)
	chunk := &models.ChunkModel{BookID: "X", Index: 0, Text: original}

	_, err := f.svc.generator(chunk, cefr.C1)(context.Background())
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, []string{"C1/normal", "C1/strong", "C2/normal"}, simp.callList())
	require.Len(t, rej.Rejections, 3)
	assert.Equal(t, "C2/normal", rej.Rejections[2].Strategy)
	assert.Equal(t, quality.ReasonIdenticalToSource, rej.Rejections[2].Reason)
}

func TestC2AcceptsNearIdenticalRewrite(t *testing.T) {
	simp := &scriptedSimplifier{}
	f := newFixture(t, simp)

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.C2})
	require.NoError(t, err)
	assert.True(t, b.Simplified)
	assert.Equal(t, "C2/normal", b.Strategy)
}

func TestGeneratorReportsRejectionReason(t *testing.T) {
	simp := &scriptedSimplifier{}
	f := newFixture(t, simp)
	chunk := &models.ChunkModel{BookID: "X", Index: 0, Text: original}

	_, err := f.svc.generator(chunk, cefr.B1)(context.Background())
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, ErrSimplificationRejected)
	assert.Equal(t, quality.ReasonIdenticalToSource, rej.Reason())
	assert.Len(t, rej.Rejections, 3)
}

func TestBackendFailureDegrades(t *testing.T) {
	simp := &scriptedSimplifier{failAll: true}
	f := newFixture(t, simp)

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.C2})
	require.NoError(t, err)
	assert.False(t, b.Simplified)
	assert.Equal(t, []string{NoticeSimplificationUnavailable}, b.Notices)
	// C2 has no less aggressive level
	assert.Len(t, simp.callList(), 2)
}

func TestAudioFailureKeepsText(t *testing.T) {
	simp := &scriptedSimplifier{replies: map[string]string{"B2/normal": simplified}}
	f := newFixture(t, simp)
	f.tts.fail = true

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.B2})
	require.NoError(t, err)
	assert.True(t, b.Simplified)
	assert.False(t, b.AudioAvailable)
	assert.Nil(t, b.Audio)
	assert.Contains(t, b.Notices, NoticeAudioUnavailable)
}

func TestAudioRegeneratedWhenTextChanges(t *testing.T) {
	simp := &scriptedSimplifier{replies: map[string]string{"A1/normal": simplified}}
	f := newFixture(t, simp)
	ctx := context.Background()
	req := Request{BookID: "X", ChunkIndex: 0, Level: cefr.A1}

	_, err := f.svc.GetReadableChunk(ctx, req)
	require.NoError(t, err)

	simp.mu.Lock()
	simp.replies["A1/normal"] = "Times were good. Times were bad. People were wise and silly too."
	simp.mu.Unlock()
	deleted, err := f.svc.InvalidateSimplification(ctx, "X", 0, cefr.A1)
	require.NoError(t, err)
	assert.True(t, deleted)

	b, err := f.svc.GetReadableChunk(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.tts.calls)

	var assets []models.AudioAssetModel
	require.NoError(t, f.db.Find(&assets).Error)
	require.Len(t, assets, 1)
	assert.Equal(t, TextHash(b.Text), assets[0].TextHash)
}

func TestSlowSynthesisKeepsAudioLease(t *testing.T) {
	f := newFixture(t, &scriptedSimplifier{})
	f.tts.delay = 200 * time.Millisecond
	opts := Options{AudioLeaseTTL: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	// two processes: shared stores and leases, separate in-process dedup
	nodes := []*Service{NewService(f.svc.deps, opts), NewService(f.svc.deps, opts)}

	var wg sync.WaitGroup
	for _, svc := range nodes {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			b, err := svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.Original})
			assert.NoError(t, err)
			if b != nil {
				assert.True(t, b.AudioAvailable)
			}
		}(svc)
	}
	wg.Wait()
	f.tts.mu.Lock()
	defer f.tts.mu.Unlock()
	assert.Equal(t, 1, f.tts.calls)
}

func TestSameChunkDifferentBooksGetDistinctAudio(t *testing.T) {
	simp := &scriptedSimplifier{replies: map[string]string{"A1/normal": simplified}}
	f := newFixture(t, simp)
	ctx := context.Background()

	for _, id := range []string{"X", "Y", "book/odd"} {
		b, err := f.svc.GetReadableChunk(ctx, Request{BookID: id, ChunkIndex: 0, Level: cefr.A1, VoiceID: "nova"})
		require.NoError(t, err)
		require.True(t, b.AudioAvailable)
	}
	var paths []string
	require.NoError(t, f.db.Model(&models.AudioAssetModel{}).Pluck("path", &paths).Error)
	assert.Len(t, paths, 3)
	assert.ElementsMatch(t, []string{
		"audio/X/A1/nova/chunk_00000.mp3",
		"audio/Y/A1/nova/chunk_00000.mp3",
		"audio/book%2Fodd/A1/nova/chunk_00000.mp3",
	}, paths)
}

func TestNotFoundAndInvalid(t *testing.T) {
	f := newFixture(t, &scriptedSimplifier{})
	ctx := context.Background()

	_, err := f.svc.GetReadableChunk(ctx, Request{BookID: "nope", ChunkIndex: 0, Level: cefr.A1})
	assert.ErrorIs(t, err, ErrChunkNotFound)

	_, err = f.svc.GetReadableChunk(ctx, Request{BookID: "X", ChunkIndex: 0, Level: "Z1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOriginalLevelSkipsSimplifier(t *testing.T) {
	simp := &scriptedSimplifier{}
	f := newFixture(t, simp)

	b, err := f.svc.GetReadableChunk(context.Background(), Request{BookID: "X", ChunkIndex: 0, Level: cefr.Original})
	require.NoError(t, err)
	assert.Empty(t, simp.callList())
	assert.Equal(t, original, b.Text)
	assert.Empty(t, b.Notices)
}

func TestEstimateTimings(t *testing.T) {
	ts := EstimateTimings("a bbb", 400)
	require.Len(t, ts, 2)
	assert.Equal(t, WordTiming{Word: "a", StartMs: 0, EndMs: 100}, ts[0])
	assert.Equal(t, WordTiming{Word: "bbb", StartMs: 100, EndMs: 400}, ts[1])
	assert.Nil(t, EstimateTimings("", 400))
	assert.Nil(t, EstimateTimings("a", 0))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	simp := &scriptedSimplifier{replies: map[string]string{"B1/normal": simplified}}
	f := newFixture(t, simp)
	r := gin.New()
	NewHandler(f.svc).RegisterRoutes(r.Group("/api/v1"))

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := do(http.MethodGet, "/api/v1/books/X/chunks/0?level=b1&voice=nova")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"simplified":true`)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/api/v1/books/X/chunks/-1").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/api/v1/books/X/chunks/0?level=Q9").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/v1/books/nope/chunks/0").Code)

	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/api/v1/books/X/chunks/0/simplifications/B1").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/api/v1/books/X/chunks/0/simplifications/B1").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodDelete, "/api/v1/books/X/chunks/0/simplifications/original").Code)
}

func TestSimplifyCachesWithoutAudio(t *testing.T) {
	simp := &scriptedSimplifier{replies: map[string]string{"C1/normal": simplified}}
	f := newFixture(t, simp)

	row, err := f.svc.Simplify(context.Background(), "X", 0, cefr.C1)
	require.NoError(t, err)
	assert.Equal(t, simplified, row.Text)
	assert.Equal(t, 0, f.tts.calls)

	_, err = f.svc.Simplify(context.Background(), "X", 5, cefr.C1)
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestStrategiesForAttempts(t *testing.T) {
	names := func(sts []strategy) []string {
		out := make([]string, len(sts))
		for i, st := range sts {
			out[i] = st.String()
		}
		return out
	}
	assert.Equal(t, []string{"A2/normal", "A2/strong", "B1/normal"}, names(strategiesFor(cefr.A2, 2)))
	assert.Equal(t, []string{"B1/normal", "B2/normal"}, names(strategiesFor(cefr.B1, 0)))
	assert.Equal(t, []string{"C2/normal", "C2/strong", "C2/strong"}, names(strategiesFor(cefr.C2, 3)))
}
