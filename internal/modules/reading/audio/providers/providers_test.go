package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/modules/reading/audio"
)

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/rachel", r.URL.Path)
		assert.Equal(t, elevenLabsOutputFormat, r.URL.Query().Get("output_format"))
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello there.", body["text"])
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	p, err := NewElevenLabs(appcfg.TTSProvider{ID: "el", APIKey: "key", Endpoint: srv.URL}, srv.Client())
	require.NoError(t, err)
	clip, err := p.Synthesize(context.Background(), "Hello there.", "rachel")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), clip.Data)
	assert.Equal(t, "audio/mpeg", clip.ContentType)
}

func TestElevenLabsStatusErrors(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", status)
	}))
	defer srv.Close()

	p, err := NewElevenLabs(appcfg.TTSProvider{APIKey: "key", Endpoint: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "hi", "v")
	var perr *audio.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.False(t, perr.Temporary())

	status = http.StatusBadGateway
	_, err = p.Synthesize(context.Background(), "hi", "v")
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Temporary())
}

func TestOpenAISpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nova", body["voice"])
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "mp3", body["response_format"])
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("frames"))
	}))
	defer srv.Close()

	p, err := NewOpenAI(appcfg.TTSProvider{ID: "oa", APIKey: "sk", Endpoint: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, openAIDefaultMaxChars, p.MaxChars())

	clip, err := p.Synthesize(context.Background(), "Hello.", "nova")
	require.NoError(t, err)
	assert.Equal(t, []byte("frames"), clip.Data)
}

func TestFromConfigAppendsBaseline(t *testing.T) {
	chain, err := FromConfig(appcfg.TTSConfig{Providers: []appcfg.TTSProvider{
		{ID: "oa", Type: "openai", APIKey: "sk", Enabled: true},
		{ID: "off", Type: "elevenlabs", APIKey: "k", Enabled: false},
	}})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "oa", chain[0].Name())
	assert.Equal(t, "webspeech", chain[1].Name())

	_, err = FromConfig(appcfg.TTSConfig{Providers: []appcfg.TTSProvider{
		{ID: "oa", Type: "openai", Enabled: true},
	}})
	assert.Error(t, err, "missing api key")
}

func TestFromConfigMovesBaselineLast(t *testing.T) {
	chain, err := FromConfig(appcfg.TTSConfig{Providers: []appcfg.TTSProvider{
		{ID: "browser", Type: "webspeech", Enabled: true},
		{ID: "oa", Type: "openai", APIKey: "sk", Enabled: true},
		{ID: "spare", Type: "webspeech", Enabled: true},
		{ID: "el", Type: "elevenlabs", APIKey: "k", Enabled: true},
	}})
	require.NoError(t, err)
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name()
	}
	assert.Equal(t, []string{"oa", "el", "browser"}, names)
}

func TestWebSpeechNeverFails(t *testing.T) {
	clip, err := NewWebSpeech("").Synthesize(context.Background(), "one two three", "nova")
	require.NoError(t, err)
	assert.True(t, clip.ClientSpeech)
	assert.Empty(t, clip.Data)
	assert.Positive(t, clip.DurationMs)
}
