package synth

import (
	"context"
	"fmt"

	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/tone"
)

// ChunkFunc receives one chunk of float32 mono samples as it is produced.
// Returning false tells the engine to stop generating further audio; the
// engine must honor it promptly.
type ChunkFunc func(samples []float32) bool

// Engine is the contract for producing audio from text.
type Engine interface {
	// SampleRate reports the output sample rate in Hz.
	SampleRate() int
	// SynthesizeStreaming produces audio for text, delivering chunks to
	// onChunk in order as they become available.
	SynthesizeStreaming(ctx context.Context, text string, params tone.Params, onChunk ChunkFunc) error
	// Synthesize produces the full audio for text in one buffer, returning
	// the samples and their sample rate.
	Synthesize(ctx context.Context, text string, params tone.Params) ([]float32, int, error)
}

// New builds an engine from config.
func New(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(cfg.SampleRate, cfg.ChunkSamples), nil
	case "exec":
		return NewExecEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
