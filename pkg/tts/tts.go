// Package tts turns announcement text into audio the rover can play.
//
// Providers implement Provider so the announcer can swap backends, or chain
// them for fallback, without changing caller code:
//
//	p, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer p.Close()
//
//	clip, _ := p.Synthesize(ctx, "Kibo will now turn left onto Main St")
package tts

import (
	"context"
	"time"
)

// Provider converts text to a playable clip.
type Provider interface {
	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string) (*Clip, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Clip is synthesized audio.
type Clip struct {
	Audio  []byte
	Format Format
	// Duration is the playback length, estimated when the provider does not
	// report it.
	Duration time.Duration
	Text     string
}

// Format describes the audio encoding.
type Format struct {
	MIMEType   string
	SampleRate int
	Channels   int
}

// Common formats.
var (
	FormatMP3 = Format{MIMEType: "audio/mpeg", SampleRate: 44100, Channels: 1}
	FormatWAV = Format{MIMEType: "audio/wav", SampleRate: 24000, Channels: 1}
)

// charsPerSecond approximates conversational speech at rate 1.0.
const charsPerSecond = 14.0

// EstimateDuration guesses how long text takes to speak.
func EstimateDuration(text string) time.Duration {
	return time.Duration(float64(len(text)) / charsPerSecond * float64(time.Second))
}
