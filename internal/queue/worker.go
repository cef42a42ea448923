// Package queue serializes announcement requests through a single playback
// worker: one utterance audible at a time, FIFO submission order, with an
// interrupt-and-clear protocol.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/speakuplabs/speakup-core/internal/fifo"
	"github.com/speakuplabs/speakup-core/internal/ledger"
	"github.com/speakuplabs/speakup-core/internal/synth"
	"github.com/speakuplabs/speakup-core/internal/tone"
)

// Request is one announcement to speak. Owned exclusively by the worker once
// dequeued.
type Request struct {
	MessageID int64
	Project   string
	Text      string
	Tone      string
	Speed     float64
	Announce  string // prefix, full, none
}

// Sink is the playback surface the worker drives; implemented by
// audio.Sink.
type Sink interface {
	Start(sampleRate int) error
	Feed(samples []float32) bool
	Finish() float64
	Stop()
	IsPlaying() bool
}

// Status is a read-only snapshot assembled from the ledger's authoritative
// state (the in-memory FIFO cannot be inspected non-destructively).
type Status struct {
	Playing *ledger.Entry
	Queued  []ledger.Entry
}

// Worker owns the FIFO of pending requests and the single consumer
// goroutine that drives synthesis and playback for one request at a time.
type Worker struct {
	engine synth.Engine
	store  *ledger.Store
	sink   Sink
	log    *slog.Logger

	queue *fifo.Queue[*Request]

	// mu guards the current-request slot and the running flag. Both the
	// consumer and StopAndClear hold it when reading or clearing current,
	// so a request can never be marked played after being cleared.
	mu      sync.Mutex
	current *Request
	running bool
	done    chan struct{}

	enqueued metric.Int64Counter
	played   metric.Int64Counter
	skipped  metric.Int64Counter
	duration metric.Float64Histogram
}

func NewWorker(engine synth.Engine, store *ledger.Store, sink Sink, log *slog.Logger) *Worker {
	w := &Worker{
		engine: engine,
		store:  store,
		sink:   sink,
		log:    log.With(slog.String("component", "queue-worker")),
		queue:  fifo.New[*Request](),
	}
	if err := w.initMetrics(); err != nil {
		w.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return w
}

func (w *Worker) initMetrics() error {
	meter := otel.Meter("github.com/speakuplabs/speakup-core/queue")
	var err error
	if w.enqueued, err = meter.Int64Counter("speakup.requests.enqueued"); err != nil {
		return err
	}
	if w.played, err = meter.Int64Counter("speakup.requests.played"); err != nil {
		return err
	}
	if w.skipped, err = meter.Int64Counter("speakup.requests.skipped"); err != nil {
		return err
	}
	if w.duration, err = meter.Float64Histogram("speakup.playback.duration_ms"); err != nil {
		return err
	}
	depth, err := meter.Int64ObservableGauge("speakup.queue.depth")
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(w.queue.Len()))
		return nil
	}, depth)
	return err
}

// Start launches the consumer goroutine. Idempotent.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.done = make(chan struct{})
	go w.run(w.done)
}

// Stop shuts the consumer down, unblocking it via the queue sentinel even
// when it is waiting on an empty queue. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	done := w.done
	w.mu.Unlock()

	w.queue.Push(nil) // shutdown sentinel
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		w.log.Warn("worker did not stop promptly")
	}
}

// Enqueue appends a request to the FIFO. Never blocks, always accepted.
func (w *Worker) Enqueue(ctx context.Context, req *Request) {
	w.queue.Push(req)
	if w.enqueued != nil {
		w.enqueued.Add(ctx, 1)
	}
}

// StopAndClear interrupts the currently playing request (if any), drains the
// FIFO without playing the remaining requests, marks everything skipped, and
// returns the total count transitioned.
func (w *Worker) StopAndClear(ctx context.Context) int {
	w.sink.Stop()

	cleared := 0
	w.mu.Lock()
	if w.current != nil {
		w.markSkipped(ctx, w.current.MessageID)
		w.current = nil
		cleared++
	}
	w.mu.Unlock()

	for _, req := range w.queue.Drain() {
		if req == nil {
			// Shutdown sentinel caught in the drain; put it back for the
			// consumer.
			w.queue.Push(nil)
			continue
		}
		w.markSkipped(ctx, req.MessageID)
		cleared++
	}
	return cleared
}

// Snapshot assembles the queue status from the ledger.
func (w *Worker) Snapshot(ctx context.Context) (Status, error) {
	playing, err := w.store.Playing(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("query playing: %w", err)
	}
	queued, err := w.store.Queued(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("query queued: %w", err)
	}
	return Status{Playing: playing, Queued: queued}, nil
}

func (w *Worker) run(done chan struct{}) {
	defer close(done)
	for {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}

		req, ok := w.queue.PopWait(500 * time.Millisecond)
		if !ok {
			continue
		}
		if req == nil {
			// Shutdown sentinel. One left over from an earlier Stop is
			// only honored while the worker is actually shutting down;
			// a restarted consumer skips it and keeps serving.
			w.mu.Lock()
			running := w.running
			w.mu.Unlock()
			if running {
				continue
			}
			return
		}
		w.play(req)
	}
}

func (w *Worker) play(req *Request) {
	ctx := context.Background()

	w.mu.Lock()
	w.current = req
	w.mu.Unlock()

	if err := w.store.MarkPlaying(ctx, req.MessageID); err != nil {
		w.log.Warn("mark playing failed", slog.Int64("id", req.MessageID), slog.String("error", err.Error()))
	}

	text := ComposeText(req)
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	params := tone.Resolve(req.Tone, speed)

	if err := w.sink.Start(w.engine.SampleRate()); err != nil {
		// Device failure degrades to a zero-length render; the request is
		// still accounted for so the queue keeps moving.
		w.log.Warn("playback start failed", slog.Int64("id", req.MessageID), slog.String("error", err.Error()))
		w.finish(ctx, req, 0)
		return
	}

	if err := w.engine.SynthesizeStreaming(ctx, text, params, w.sink.Feed); err != nil {
		w.log.Warn("synthesis failed", slog.Int64("id", req.MessageID), slog.String("error", err.Error()))
	}

	durationMS := w.sink.Finish()
	w.finish(ctx, req, durationMS)
}

// finish records the terminal status for req. If the current slot no longer
// holds this request it was interrupted mid-flight and already marked
// skipped; the compare-and-clear leaves that status untouched.
func (w *Worker) finish(ctx context.Context, req *Request, durationMS float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil || w.current.MessageID != req.MessageID {
		return
	}
	if err := w.store.MarkPlayed(ctx, req.MessageID, durationMS); err != nil {
		w.log.Warn("mark played failed", slog.Int64("id", req.MessageID), slog.String("error", err.Error()))
	}
	w.current = nil
	if w.played != nil {
		w.played.Add(ctx, 1)
	}
	if w.duration != nil {
		w.duration.Record(ctx, durationMS)
	}
}

func (w *Worker) markSkipped(ctx context.Context, id int64) {
	if err := w.store.MarkSkipped(ctx, id); err != nil {
		w.log.Warn("mark skipped failed", slog.Int64("id", id), slog.String("error", err.Error()))
	}
	if w.skipped != nil {
		w.skipped.Add(ctx, 1)
	}
}

// ComposeText weaves the project label into the spoken text according to the
// announce style. An empty project suppresses prefixing regardless of style.
func ComposeText(req *Request) string {
	if req.Announce == "none" || req.Project == "" {
		return req.Text
	}
	if req.Announce == "full" {
		return fmt.Sprintf("New message from %s: %s", req.Project, req.Text)
	}
	return fmt.Sprintf("%s: %s", req.Project, req.Text)
}
