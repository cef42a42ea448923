package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/tone"
)

// execEngine shells out to an offline TTS command (sherpa-onnx style) per
// utterance. The command writes a WAV file which is decoded and delivered
// as float32 chunks. One synthesis at a time; the worker is the only caller.
type execEngine struct {
	cmd          []string
	voice        string
	sampleRate   int
	chunkSamples int
	mu           sync.Mutex
}

func NewExecEngine(cfg config.EngineConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execEngine{
		cmd:          args,
		voice:        cfg.Voice,
		sampleRate:   cfg.SampleRate,
		chunkSamples: cfg.ChunkSamples,
	}, nil
}

func (e *execEngine) SampleRate() int { return e.sampleRate }

func (e *execEngine) SynthesizeStreaming(ctx context.Context, text string, params tone.Params, onChunk ChunkFunc) error {
	samples, _, err := e.Synthesize(ctx, text, params)
	if err != nil {
		return err
	}
	for start := 0; start < len(samples); start += e.chunkSamples {
		end := start + e.chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		if !onChunk(samples[start:end]) {
			return nil
		}
	}
	return nil
}

func (e *execEngine) Synthesize(ctx context.Context, text string, params tone.Params) ([]float32, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := os.CreateTemp("", "speakup_tts_*.wav")
	if err != nil {
		return nil, e.sampleRate, fmt.Errorf("temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args,
		fmt.Sprintf("--vits-noise-scale=%g", params.Variation),
		fmt.Sprintf("--vits-noise-scale-w=%g", params.VariationWeight),
		fmt.Sprintf("--vits-length-scale=%g", params.LengthScale),
		"--output-filename="+outPath,
	)
	if e.voice != "" {
		args = append(args, "--voice="+e.voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, base, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, e.sampleRate, fmt.Errorf("engine command failed: %w: %s", err, out)
	}

	samples, rate, err := decodeWav(outPath)
	if err != nil {
		return nil, e.sampleRate, err
	}
	// The playback stream was opened at the configured rate before any
	// synthesis ran, so audio at another rate would render at the wrong
	// pitch. Refuse it instead of retuning mid-service.
	if rate > 0 && rate != e.sampleRate {
		return nil, e.sampleRate, fmt.Errorf(
			"engine produced %d Hz audio but is configured for %d Hz; fix engine.sample_rate", rate, e.sampleRate)
	}
	return samples, e.sampleRate, nil
}

func decodeWav(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("engine produced invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	return pcmToFloat32(buf), int(dec.SampleRate), nil
}

func pcmToFloat32(buf *audio.IntBuffer) []float32 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples
}
