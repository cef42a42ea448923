// Package runtime assembles the daemon: ledger, synthesis engine, playback
// sink, queue worker, device monitor, and the HTTP control surface, with an
// ordered shutdown. All components are constructed here and handed their
// dependencies explicitly.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/speakuplabs/speakup-core/internal/api"
	"github.com/speakuplabs/speakup-core/internal/audio"
	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/ledger"
	"github.com/speakuplabs/speakup-core/internal/pidfile"
	"github.com/speakuplabs/speakup-core/internal/queue"
	"github.com/speakuplabs/speakup-core/internal/service"
	"github.com/speakuplabs/speakup-core/internal/synth"
)

const retentionSweepInterval = 24 * time.Hour

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.refuseDuplicate(ctx); err != nil {
		return err
	}
	if err := pidfile.Write(r.cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Remove(r.cfg.PIDFile); err != nil {
			r.logger.Warn("pidfile cleanup failed", slog.String("error", err.Error()))
		}
	}()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	store, err := ledger.Open(ctx, r.cfg.Ledger, r.logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	r.recoverLedger(ctx, store)

	engine, err := synth.New(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("init synthesis engine: %w", err)
	}

	opener := audio.NewOtoOpener(r.logger)
	monitor := audio.NewMonitor(opener, audio.PlatformQuery(),
		time.Duration(r.cfg.Audio.MonitorIntervalMS)*time.Millisecond, r.logger)
	monitor.Start(ctx)
	defer monitor.Close()

	sink := audio.NewSink(opener, monitor,
		time.Duration(r.cfg.Audio.TailDrainMS)*time.Millisecond, r.logger)

	worker := queue.NewWorker(engine, store, sink, r.logger)
	worker.Start()

	server := service.New(r.cfg, store, worker, metricHandler, r.logger)
	if err := server.Start(); err != nil {
		worker.Stop()
		return err
	}

	sweepDone := make(chan struct{})
	go r.retentionLoop(ctx, store, sweepDone)

	r.logger.Info("daemon started",
		slog.String("engine", r.cfg.Engine.Mode),
		slog.Int("port", r.cfg.HTTP.Port))

	<-ctx.Done()
	r.logger.Info("daemon stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Stop accepting requests first, interrupt whatever is still audible,
	// then let the worker wind down.
	if err := server.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	sink.Stop()
	worker.Stop()
	<-sweepDone

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
	return nil
}

// refuseDuplicate rejects startup while a previous instance is both recorded
// in the pidfile and answering on the control port. A live pid that does not
// answer is treated as stale so a wedged instance cannot block restarts
// forever, but it is logged loudly.
func (r *Runtime) refuseDuplicate(ctx context.Context) error {
	pid, alive := pidfile.Alive(r.cfg.PIDFile)
	if !alive {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := api.NewClient(r.cfg.HTTP.Port, 2*time.Second).Health(probeCtx); err == nil {
		return fmt.Errorf("another instance is already running (pid %d)", pid)
	}
	r.logger.Warn("pidfile names a live process that is not answering, assuming stale",
		slog.Int("pid", pid))
	return nil
}

// recoverLedger resolves rows a crashed instance left mid-flight: anything
// still queued or playing can no longer be honored, so it is marked skipped.
func (r *Runtime) recoverLedger(ctx context.Context, store *ledger.Store) {
	if playing, err := store.Playing(ctx); err == nil && playing != nil {
		if err := store.MarkSkipped(ctx, playing.ID); err != nil {
			r.logger.Warn("failed to resolve stale playing row", slog.String("error", err.Error()))
		}
	}
	if n, err := store.MarkAllQueuedSkipped(ctx); err != nil {
		r.logger.Warn("failed to resolve stale queued rows", slog.String("error", err.Error()))
	} else if n > 0 {
		r.logger.Info("resolved stale requests from previous run", slog.Int64("count", n))
	}
}

// retentionLoop prunes old ledger rows on startup and once a day after.
func (r *Runtime) retentionLoop(ctx context.Context, store *ledger.Store, done chan<- struct{}) {
	defer close(done)
	sweep := func() {
		removed, err := store.CleanupOlderThan(ctx, r.cfg.Ledger.RetentionDays)
		if err != nil {
			r.logger.Warn("retention sweep failed", slog.String("error", err.Error()))
			return
		}
		if removed > 0 {
			r.logger.Info("retention sweep removed old entries", slog.Int64("removed", removed))
		}
	}

	sweep()
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
