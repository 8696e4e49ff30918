package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/signalwatch/internal/cli"
	"horse.fit/signalwatch/internal/config"
	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/globaltime"
	"horse.fit/signalwatch/internal/logging"
	"horse.fit/signalwatch/internal/pipeline"
	"horse.fit/signalwatch/internal/telemetry"
)

type commandRuntime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

// openRuntime loads env, config and logger, then connects to the database.
// Failures are printed; the returned code is non-zero when rt is nil.
func openRuntime(ctx context.Context, envLoader *cli.EnvLoader, command string) (*commandRuntime, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, 1
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg(command + " command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, 1
	}

	return &commandRuntime{cfg: cfg, logger: logger, pool: pool}, 0
}

func (r *commandRuntime) Close() {
	if r != nil && r.pool != nil {
		_ = r.pool.Close()
	}
}

// watchStopSignals flips the returned flag on the first SIGINT or SIGTERM.
// The context is left alone so in-flight writes complete; callers stop at
// the next candidate or scope. The release func detaches the handler.
func watchStopSignals(logger zerolog.Logger) (*pipeline.StopFlag, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop, detach := stopOnSignal(sigCh, logger)
	return stop, func() {
		signal.Stop(sigCh)
		detach()
	}
}

func stopOnSignal(sigCh <-chan os.Signal, logger zerolog.Logger) (*pipeline.StopFlag, func()) {
	stop := &pipeline.StopFlag{}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("stop requested")
			stop.Stop()
		case <-done:
		}
	}()

	return stop, func() {
		close(done)
		<-exited
	}
}

// finishRun records the job duration and writes METRICS_TEXTFILE when set.
func finishRun(rt *commandRuntime, metrics *telemetry.Metrics, job string, started time.Time) {
	metrics.ObserveRun(job, started, globaltime.UTC())
	if rt == nil || rt.cfg == nil {
		return
	}
	if err := metrics.WriteTextfile(rt.cfg.MetricsTextfile); err != nil {
		rt.logger.Warn().Err(err).Str("job", job).Msg("failed to write metrics textfile")
	}
}
