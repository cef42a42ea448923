package synth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/tone"
)

// fakeEngineCommand writes a shell script that stands in for the TTS CLI: it
// copies a prepared WAV to whatever --output-filename it is handed.
func fakeEngineCommand(t *testing.T, wavPath string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a unix shell")
	}
	script := filepath.Join(t.TempDir(), "fake-tts.sh")
	body := `#!/bin/sh
out=""
for arg in "$@"; do
  case "$arg" in
    --output-filename=*) out="${arg#--output-filename=}" ;;
  esac
done
cp "$SPEAKUP_TEST_WAV" "$out"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	t.Setenv("SPEAKUP_TEST_WAV", wavPath)
	return script
}

func writeWav(t *testing.T, rate, samples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, samples),
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func TestExecEngineDecodesCommandOutput(t *testing.T) {
	script := fakeEngineCommand(t, writeWav(t, 22050, 4410))

	eng, err := NewExecEngine(config.EngineConfig{
		Mode:         "exec",
		Command:      script,
		SampleRate:   22050,
		ChunkSamples: 2000,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	var total int
	var sizes []int
	err = eng.SynthesizeStreaming(context.Background(), "hello", tone.Resolve("neutral", 1.0), func(samples []float32) bool {
		total += len(samples)
		sizes = append(sizes, len(samples))
		return true
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if total != 4410 {
		t.Fatalf("expected 4410 samples, got %d", total)
	}
	if len(sizes) != 3 || sizes[0] != 2000 || sizes[2] != 410 {
		t.Fatalf("unexpected chunking: %v", sizes)
	}
}

func TestExecEngineRejectsRateMismatch(t *testing.T) {
	// The playback stream is opened at the configured rate, so a model
	// rendering at another rate must fail loudly, not play at the wrong
	// pitch.
	script := fakeEngineCommand(t, writeWav(t, 8000, 800))

	eng, err := NewExecEngine(config.EngineConfig{
		Mode:         "exec",
		Command:      script,
		SampleRate:   22050,
		ChunkSamples: 2000,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, _, err = eng.Synthesize(context.Background(), "hello", tone.Resolve("neutral", 1.0))
	if err == nil {
		t.Fatal("expected rate mismatch error")
	}
	if !strings.Contains(err.Error(), "8000") || !strings.Contains(err.Error(), "22050") {
		t.Fatalf("error should name both rates, got %v", err)
	}
	if eng.SampleRate() != 22050 {
		t.Fatalf("configured rate must not change, got %d", eng.SampleRate())
	}
}
