package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// otoOpener backs the Opener seam with ebitengine/oto. The oto context is
// process-wide and created lazily at the first Open; its backends follow the
// operating system's default output device, so Reinit only has to invalidate
// our cached identity, not tear the context down (oto cannot).
type otoOpener struct {
	log  *slog.Logger
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func NewOtoOpener(log *slog.Logger) Opener {
	return &otoOpener{log: log.With(slog.String("component", "audio-output"))}
}

func (o *otoOpener) Open(sampleRate int) (Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, fmt.Errorf("init audio context: %w", err)
		}
		<-ready
		o.ctx = ctx
		o.rate = sampleRate
	}
	if sampleRate != o.rate {
		// The context is fixed at its first sample rate; engines report one
		// model rate for their lifetime so this only trips on misconfig.
		o.log.Warn("sample rate differs from audio context",
			slog.Int("requested", sampleRate), slog.Int("context", o.rate))
	}

	pr, pw := io.Pipe()
	player := o.ctx.NewPlayer(pr)
	player.Play()
	return &otoStream{pw: pw, player: player}, nil
}

func (o *otoOpener) Reinit() error {
	// oto rebinds the system default device on its own at the platform
	// layer; there is no registry to rebuild here.
	return nil
}

type otoStream struct {
	pw     *io.PipeWriter
	player *oto.Player
}

func (s *otoStream) Write(samples []float32) error {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(math.Round(float64(v)*32767))))
	}
	_, err := s.pw.Write(buf)
	return err
}

func (s *otoStream) Close() error {
	_ = s.pw.Close()
	return s.player.Close()
}
