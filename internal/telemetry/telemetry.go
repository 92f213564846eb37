package telemetry

import (
	"context"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopRecorder struct{}

// NewRecorder returns a sqlite-backed Recorder, or a no-op one when
// recording is disabled.
func NewRecorder(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Telemetry recording disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, record *ModuleRecord) error {
	errFactory := errors.New()

	if record == nil || record.Module == "" {
		return errFactory.New(ErrInvalidRecord)
	}

	snap := record.Snapshot
	if len(snap.OdometryDrivePositionsRad) != len(snap.OdometryTimestamps) ||
		len(snap.OdometryTurnPositions) != len(snap.OdometryTimestamps) {
		return errFactory.WithData(ErrInvalidRecord, "odometry slices differ in length")
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Store(record); err != nil {
		return errFactory.Wrap(ErrRecordingFailed, err)
	}

	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopRecorder) Record(_ context.Context, _ *ModuleRecord) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
