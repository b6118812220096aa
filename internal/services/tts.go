package services

import "context"

// SpeechService is the common interface for voice-over providers. Gemini
// TTS and ElevenLabs both implement it so the pipeline can use whichever
// is configured without knowing the provider. Returns raw audio bytes and
// their MIME type.
type SpeechService interface {
	GenerateSpeech(ctx context.Context, text string) ([]byte, string, error)
}

var (
	_ SpeechService = (*GeminiService)(nil)
	_ SpeechService = (*ElevenLabsService)(nil)
)
