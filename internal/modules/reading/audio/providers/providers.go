// Package providers implements the text-to-speech backends of the audio
// chain.
package providers

import (
	"fmt"

	appcfg "github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/modules/reading/audio"
)

// FromConfig builds the enabled providers in configured order. The webspeech
// baseline never fails, so it always closes the chain: a configured one is
// moved to the end and a default one is appended when none is enabled.
func FromConfig(cfg appcfg.TTSConfig) ([]audio.Provider, error) {
	var (
		out      []audio.Provider
		baseline audio.Provider
	)
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch pc.Type {
		case "openai":
			p, err := NewOpenAI(pc)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "elevenlabs":
			p, err := NewElevenLabs(pc, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "webspeech":
			if baseline == nil {
				baseline = NewWebSpeech(pc.ID)
			}
		default:
			return nil, fmt.Errorf("unknown tts provider type %q", pc.Type)
		}
	}
	if baseline == nil {
		baseline = NewWebSpeech("")
	}
	return append(out, baseline), nil
}

func nameOr(id, fallback string) string {
	if id != "" {
		return id
	}
	return fallback
}
