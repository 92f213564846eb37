package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/metrics"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*ModuleRecord
	dropped       int
	closed        bool
	flushTicker   *time.Ticker
	flushNow      chan struct{}
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Int("max_buffered", cfg.MaxBuffered).
		Msg("Telemetry repository initialized")

	repo := &sqliteRepository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*ModuleRecord, 0, cfg.BatchSize),
		flushNow:      make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		repo.flushTicker = time.NewTicker(cfg.FlushInterval)
	}
	go repo.flusher()

	return repo, nil
}

// Store buffers record and never touches the database. A full batch wakes
// the flusher; a full buffer drops its oldest record.
func (r *sqliteRepository) Store(record *ModuleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrRecorderClosed)
	}

	r.trim(r.cfg.MaxBuffered - 1)
	r.buffer = append(r.buffer, record)

	if len(r.buffer) >= r.cfg.BatchSize {
		select {
		case r.flushNow <- struct{}{}:
		default:
		}
	}

	return nil
}

// trim drops the oldest records until at most n remain. Callers hold r.mu.
func (r *sqliteRepository) trim(n int) {
	excess := len(r.buffer) - n
	if excess <= 0 {
		return
	}

	clear(r.buffer[:excess])
	r.buffer = r.buffer[:copy(r.buffer, r.buffer[excess:])]
	r.dropped += excess
	metrics.RecordDroppedRecords(excess)

	r.logger.Debug().
		Int("dropped", excess).
		Int("dropped_total", r.dropped).
		Msg("Telemetry buffer full, dropping oldest records")
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	flushErr := r.flush()
	if flushErr != nil {
		r.logger.Error().Err(flushErr).Msg("Failed to flush telemetry on close")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Telemetry repository closed gracefully")

	return flushErr
}

// flusher is the only writer while the repository is open.
func (r *sqliteRepository) flusher() {
	defer close(r.flushDoneChan)

	var tick <-chan time.Time
	if r.flushTicker != nil {
		tick = r.flushTicker.C
	}

	for {
		select {
		case <-tick:
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic telemetry flush failed")
			}
		case <-r.flushNow:
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Batch telemetry flush failed")
			}
		case <-r.shutdownChan:
			return
		}
	}
}

// flush takes the buffer and writes it outside the lock. A failed batch goes
// back in front of anything stored meanwhile, subject to MaxBuffered.
func (r *sqliteRepository) flush() error {
	r.mu.Lock()
	batch := r.buffer
	r.buffer = make([]*ModuleRecord, 0, r.cfg.BatchSize)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.write(batch); err != nil {
		r.mu.Lock()
		r.buffer = append(batch, r.buffer...)
		r.trim(r.cfg.MaxBuffered)
		r.mu.Unlock()
		return err
	}

	return nil
}

// write stores batch in one transaction.
func (r *sqliteRepository) write(batch []*ModuleRecord) error {
	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(cause error) error {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, cause)
	}

	inputsStmt, err := tx.Prepare(insertModuleInputsSQL)
	if err != nil {
		return rollback(err)
	}
	defer inputsStmt.Close()

	samplesStmt, err := tx.Prepare(insertOdometrySampleSQL)
	if err != nil {
		return rollback(err)
	}
	defer samplesStmt.Close()

	samples := 0
	for _, record := range batch {
		s := record.Snapshot
		if _, err := inputsStmt.Exec(
			record.RecordedAt.UnixNano(),
			record.Module,
			boolToInt(s.DriveConnected),
			s.DrivePositionRad,
			s.DriveVelocityRadPerSec,
			s.DriveAppliedVolts,
			s.DriveCurrentAmps,
			boolToInt(s.TurnConnected),
			boolToInt(s.TurnEncoderConnected),
			s.TurnAbsolutePosition.Radians(),
			s.TurnPosition.Radians(),
			s.TurnVelocityRadPerSec,
			s.TurnAppliedVolts,
			s.TurnCurrentAmps,
			len(s.OdometryTimestamps),
			int64(s.DroppedSamples),
		); err != nil {
			return rollback(err)
		}

		for i, ts := range s.OdometryTimestamps {
			if _, err := samplesStmt.Exec(
				record.Module,
				ts,
				s.OdometryDrivePositionsRad[i],
				s.OdometryTurnPositions[i].Radians(),
			); err != nil {
				return rollback(err)
			}
			samples++
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().
		Int("records", len(batch)).
		Int("samples", samples).
		Msg("Flushed telemetry to database")

	return nil
}
