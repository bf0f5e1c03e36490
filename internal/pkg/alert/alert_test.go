package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appcfg "github.com/bookbridge/core/internal/config"
)

type barkServer struct {
	mu       sync.Mutex
	payloads []pushPayload
}

func (b *barkServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/push", r.URL.Path)
		var p pushPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		b.mu.Lock()
		b.payloads = append(b.payloads, p)
		b.mu.Unlock()
	}
}

func (b *barkServer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func TestErrorEntriesArePushedAndThrottled(t *testing.T) {
	bark := &barkServer{}
	srv := httptest.NewServer(bark.handler(t))
	defer srv.Close()

	n := New(appcfg.AlertsConfig{BarkKey: "dev-key", BarkServer: srv.URL, Title: "bookbridge", Throttle: time.Hour})
	core, _ := observer.New(zap.DebugLevel)
	log := Attach(zap.New(core), n).Named("audiopath")

	log.Info("fine")
	log.Warn("meh")
	log.Error("refusing audio write")
	log.Error("refusing audio write")
	log.Error("another fault")
	n.Wait()

	require.Equal(t, 2, bark.count())
	assert.Equal(t, "dev-key", bark.payloads[0].DeviceKey)
	assert.Contains(t, []string{bark.payloads[0].Title, bark.payloads[1].Title}, "[bookbridge] audiopath")
}

func TestThrottleWindowReopens(t *testing.T) {
	n := New(appcfg.AlertsConfig{BarkKey: "k", Throttle: time.Minute})
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }

	assert.True(t, n.allow("x"))
	assert.False(t, n.allow("x"))
	assert.True(t, n.allow("y"))
	now = now.Add(2 * time.Minute)
	assert.True(t, n.allow("x"))
}

func TestAttachWithoutKeyIsNoop(t *testing.T) {
	log := zap.NewNop()
	assert.Same(t, log, Attach(log, New(appcfg.AlertsConfig{})))
	assert.Same(t, log, Attach(log, nil))
}
