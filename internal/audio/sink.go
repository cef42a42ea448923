package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speakuplabs/speakup-core/internal/fifo"
)

// Sink renders an open-ended sequence of sample chunks to the output device
// as they arrive. One session at a time: Start opens a stream and launches
// the playback goroutine, Feed enqueues chunks, and the session ends either
// by Finish (drain everything, report duration) or Stop (interrupt, discard).
type Sink struct {
	opener    Opener
	monitor   *Monitor
	log       *slog.Logger
	tailDrain time.Duration

	interrupted atomic.Bool
	rendered    atomic.Int64

	mu         sync.Mutex
	stream     Stream
	queue      *fifo.Queue[[]float32]
	playing    bool
	sampleRate int
	done       chan struct{}
}

// NewSink builds a sink over the given opener. monitor may be nil (no device
// tracking); tailDrain is the fixed wait for the device buffer to flush
// after the last chunk.
func NewSink(opener Opener, monitor *Monitor, tailDrain time.Duration, log *slog.Logger) *Sink {
	return &Sink{
		opener:    opener,
		monitor:   monitor,
		tailDrain: tailDrain,
		log:       log.With(slog.String("component", "playback-sink")),
	}
}

// Start opens a new playback session at sampleRate. An already-active
// session is interrupted first, so back-to-back calls never leak streams.
func (s *Sink) Start(sampleRate int) error {
	if s.IsPlaying() {
		s.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	if s.monitor != nil {
		// Device refresh is only ever applied here, between sessions.
		_, name = s.monitor.Resolve()
	}

	stream, err := s.opener.Open(sampleRate)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}

	s.sampleRate = sampleRate
	s.queue = fifo.New[[]float32]()
	s.interrupted.Store(false)
	s.rendered.Store(0)
	s.stream = stream
	s.playing = true
	s.done = make(chan struct{})

	s.log.Debug("playback session opened",
		slog.Int("sample_rate", sampleRate), slog.String("device", name))

	go s.playbackLoop(stream, s.queue, s.done)
	return nil
}

// Feed enqueues one chunk for rendering. Returns false once interruption has
// been requested, telling the producer to stop generating audio.
func (s *Sink) Feed(samples []float32) bool {
	if s.interrupted.Load() {
		return false
	}

	s.mu.Lock()
	queue, playing := s.queue, s.playing
	s.mu.Unlock()
	if !playing {
		return false
	}

	if len(samples) > 0 {
		queue.Push(samples)
	}
	return !s.interrupted.Load()
}

// Finish signals that no more chunks will arrive, waits for the playback
// goroutine to drain the queue and the device buffer, then releases the
// stream and returns the total rendered duration in milliseconds.
func (s *Sink) Finish() float64 {
	s.mu.Lock()
	queue, done, playing := s.queue, s.done, s.playing
	s.mu.Unlock()
	if !playing {
		return 0
	}

	queue.Push(nil) // end-of-stream sentinel
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	durationMS := float64(s.rendered.Load()) / float64(s.sampleRate) * 1000
	s.cleanupLocked()
	return durationMS
}

// Stop interrupts the session: unplayed chunks are discarded, the playback
// goroutine is unblocked, and the stream is released.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	queue, done := s.queue, s.done
	s.interrupted.Store(true)
	s.mu.Unlock()

	queue.Drain()
	queue.Push(nil)
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		s.log.Warn("playback goroutine did not exit promptly")
	}

	s.mu.Lock()
	s.cleanupLocked()
	s.mu.Unlock()
}

// IsPlaying reports whether a session is currently open.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Sink) playbackLoop(stream Stream, queue *fifo.Queue[[]float32], done chan struct{}) {
	defer close(done)

	for {
		samples, ok := queue.PopWait(100 * time.Millisecond)
		if !ok {
			if s.interrupted.Load() {
				return
			}
			continue
		}
		if samples == nil { // sentinel
			break
		}
		if s.interrupted.Load() {
			return
		}
		if err := stream.Write(samples); err != nil {
			// Device-level failure ends the session early; the shortfall
			// shows up as a shorter rendered duration.
			s.log.Warn("output stream write failed", slog.String("error", err.Error()))
			s.interrupted.Store(true)
			return
		}
		s.rendered.Add(int64(len(samples)))
	}

	// Let the device buffer flush so the utterance tail is not clipped by
	// the stream teardown or the next session.
	if !s.interrupted.Load() && s.tailDrain > 0 {
		time.Sleep(s.tailDrain)
	}
}

// cleanupLocked releases the stream. Callers hold s.mu.
func (s *Sink) cleanupLocked() {
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.log.Warn("close output stream", slog.String("error", err.Error()))
		}
		s.stream = nil
	}
	s.playing = false
	s.done = nil
}
