package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/swervectl/internal/config"
	"codeberg.org/mutker/swervectl/internal/device"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/metrics"
	"codeberg.org/mutker/swervectl/internal/module"
	"codeberg.org/mutker/swervectl/internal/odometry"
	"codeberg.org/mutker/swervectl/internal/pid"
	"codeberg.org/mutker/swervectl/internal/telemetry"
	"codeberg.org/mutker/swervectl/internal/workpool"
	"github.com/spf13/pflag"
)

const (
	shutdownTimeout = 2 * time.Second
	statusInterval  = 5 * time.Second
)

var (
	cfg           *config.Config
	thread        *odometry.Thread
	pool          *workpool.Pool
	recorder      telemetry.Recorder
	metricsServer *http.Server
	modules       []*module.Module
	threadStarted bool
)

func init() {
	var err error
	cfg, err = config.Load(config.WithArgs(os.Args[1:]))
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LoggerOptions(logger.IsService()))
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(cfg.PIDFile); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := start(ctx); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("failed to start")
		} else {
			logger.Error().Err(err).Msg("failed to start")
		}
		cancel()
		cleanup()
		os.Exit(1)
	}

	loop(ctx)
	cleanup()
}

func start(ctx context.Context) error {
	errFactory := errors.New()
	var err error

	metrics.Register()
	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr)
	}

	recorder, err = telemetry.NewRecorder(cfg.TelemetryConfig(), logger.With("component", "telemetry"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	thread, err = odometry.NewThread(cfg.ThreadConfig(), odometry.WithLogger(logger.With("component", "odometry")))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	pool = workpool.New(cfg.BrakeWorkers, cfg.BrakeQueue, logger.With("component", "workpool"))

	logger.Info().Int("modules", len(cfg.Modules)).Msg("Configuring modules against loopback devices")
	for i, moduleCfg := range cfg.ModuleConfigs() {
		m, err := module.New(ctx, moduleCfg, loopbackHardware(cfg.Modules[i]), thread,
			module.WithPool(pool),
			module.WithLogger(logger.With("component", "module")),
		)
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		if !m.SetBrakeMode(ctx, true) {
			logger.Warn().Str("module", m.Name()).Msg("Brake mode write was not queued")
		}
		modules = append(modules, m)
	}

	if err := thread.Start(ctx); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	threadStarted = true

	return nil
}

func loopbackHardware(m config.ModuleConfig) module.Hardware {
	return module.Hardware{
		Drive:   device.NewLoopbackMotor(fmt.Sprintf("%s/drive-%d", m.Name, m.DriveID)),
		Turn:    device.NewLoopbackMotor(fmt.Sprintf("%s/turn-%d", m.Name, m.TurnID)),
		Encoder: device.NewLoopbackEncoder(fmt.Sprintf("%s/encoder-%d", m.Name, m.EncoderID)),
	}
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func loop(ctx context.Context) {
	period := time.Duration(float64(time.Second) / cfg.ControlFrequency)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.Info().
		Float64("control_frequency_hz", cfg.ControlFrequency).
		Float64("odometry_frequency_hz", cfg.OdometryFrequency).
		Msg("Control loop started")

	lastStatus := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snapshots := cycle(ctx, now)
			if now.Sub(lastStatus) >= statusInterval {
				logStatus(snapshots)
				lastStatus = now
			}
		}
	}
}

// cycle reads every module, records its inputs and holds it in place.
func cycle(ctx context.Context, now time.Time) []module.Snapshot {
	snapshots := make([]module.Snapshot, len(modules))

	for i, m := range modules {
		s := m.UpdateInputs(ctx)
		snapshots[i] = s

		if err := recorder.Record(ctx, telemetry.NewModuleRecord(m.Name(), now, s)); err != nil {
			logger.Warn().Err(err).Str("module", m.Name()).Msg("Failed to record telemetry")
		}

		if err := m.RunDriveVelocity(0, 0); err != nil {
			logger.Warn().Err(err).Str("module", m.Name()).Msg("Drive command failed")
		}
		if err := m.RunTurnPosition(s.TurnAbsolutePosition); err != nil {
			logger.Warn().Err(err).Str("module", m.Name()).Msg("Turn command failed")
		}
	}

	return snapshots
}

func logStatus(snapshots []module.Snapshot) {
	for i, s := range snapshots {
		logger.Info().
			Str("module", modules[i].Name()).
			Bool("drive_connected", s.DriveConnected).
			Bool("turn_connected", s.TurnConnected).
			Bool("encoder_connected", s.TurnEncoderConnected).
			Float64("turn_absolute_rad", s.TurnAbsolutePosition.Radians()).
			Int("odometry_samples", s.Samples()).
			Uint64("dropped_samples", s.DroppedSamples).
			Msg("")
	}
	logger.Debug().Uint64("passes", thread.Passes()).Msg("Odometry status")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	for _, m := range modules {
		if err := m.RunDriveOpenLoop(0); err != nil {
			logger.Error().Err(err).Str("module", m.Name()).Msg("failed to stop drive")
		}
		if err := m.Close(); err != nil {
			logger.Error().Err(err).Str("module", m.Name()).Msg("failed to close module")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if threadStarted {
		thread.Wait()
	}
	if pool != nil {
		if err := pool.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to drain worker pool")
		}
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry recorder")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to stop metrics server")
		}
	}
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}

	logger.Info().Msg("Exiting...")
}
