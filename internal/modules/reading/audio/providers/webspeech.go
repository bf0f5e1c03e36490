package providers

import (
	"context"

	"github.com/bookbridge/core/internal/modules/reading/audio"
)

// WebSpeech never produces bytes. It tells the reader to speak the text with
// the browser's speech engine, and it never fails.
type WebSpeech struct {
	name string
}

func NewWebSpeech(id string) *WebSpeech {
	return &WebSpeech{name: nameOr(id, "webspeech")}
}

func (w *WebSpeech) Name() string  { return w.name }
func (w *WebSpeech) MaxChars() int { return 0 }

func (w *WebSpeech) Synthesize(_ context.Context, text, _ string) (*audio.Clip, error) {
	return &audio.Clip{
		ContentType:  "text/plain",
		DurationMs:   audio.EstimateDurationMs(text),
		ClientSpeech: true,
	}, nil
}
