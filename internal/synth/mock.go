package synth

import (
	"context"
	"time"

	"github.com/speakuplabs/speakup-core/internal/tone"
)

// MockEngine produces silence at a fixed rate, pacing chunk delivery so that
// queue and playback behavior can be exercised without a model.
type MockEngine struct {
	sampleRate   int
	chunkSamples int

	// ChunkDelay paces delivery of each chunk; tests shorten it.
	ChunkDelay time.Duration
	// SamplesPerChar sizes the utterance from the text length.
	SamplesPerChar int
}

func NewMockEngine(sampleRate, chunkSamples int) *MockEngine {
	return &MockEngine{
		sampleRate:     sampleRate,
		chunkSamples:   chunkSamples,
		ChunkDelay:     10 * time.Millisecond,
		SamplesPerChar: sampleRate / 20,
	}
}

func (m *MockEngine) SampleRate() int { return m.sampleRate }

func (m *MockEngine) SynthesizeStreaming(ctx context.Context, text string, params tone.Params, onChunk ChunkFunc) error {
	total := m.totalSamples(text, params)
	for total > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.ChunkDelay):
		}
		n := m.chunkSamples
		if n > total {
			n = total
		}
		if !onChunk(make([]float32, n)) {
			return nil
		}
		total -= n
	}
	return nil
}

func (m *MockEngine) Synthesize(ctx context.Context, text string, params tone.Params) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, m.sampleRate, err
	}
	return make([]float32, m.totalSamples(text, params)), m.sampleRate, nil
}

func (m *MockEngine) totalSamples(text string, params tone.Params) int {
	n := len(text) * m.SamplesPerChar
	if n <= 0 {
		n = m.SamplesPerChar
	}
	// Length scale stretches or compresses the utterance like a real model.
	return int(float64(n) * params.LengthScale)
}
