package synth

import (
	"context"
	"testing"

	"github.com/go-audio/audio"

	"github.com/speakuplabs/speakup-core/internal/tone"
)

func TestMockEngineStreamsInChunks(t *testing.T) {
	eng := NewMockEngine(22050, 1000)
	eng.ChunkDelay = 0
	eng.SamplesPerChar = 500

	var total int
	var sizes []int
	err := eng.SynthesizeStreaming(context.Background(), "hello", tone.Resolve("neutral", 1.0), func(samples []float32) bool {
		total += len(samples)
		sizes = append(sizes, len(samples))
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2500 {
		t.Fatalf("expected 2500 samples, got %d", total)
	}
	for _, n := range sizes[:len(sizes)-1] {
		if n != 1000 {
			t.Fatalf("expected full chunks before the last, got %v", sizes)
		}
	}
}

func TestMockEngineHonorsStopSignal(t *testing.T) {
	eng := NewMockEngine(22050, 100)
	eng.ChunkDelay = 0
	eng.SamplesPerChar = 1000

	calls := 0
	err := eng.SynthesizeStreaming(context.Background(), "long text here", tone.Resolve("neutral", 1.0), func(samples []float32) bool {
		calls++
		return calls < 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected generation to stop after callback returned false, got %d calls", calls)
	}
}

func TestPCMToFloat32Scales16Bit(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 22050},
		SourceBitDepth: 16,
		Data:           []int{0, 16384, -32768},
	}
	samples := pcmToFloat32(buf)
	if samples[0] != 0 || samples[1] != 0.5 || samples[2] != -1 {
		t.Fatalf("unexpected scaling: %v", samples)
	}
}
