package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/locking"
)

// SignalGenerator is the narrow slice of *core.Core this job depends on,
// so the scheduler package never imports core directly (core already
// imports orders/portfolio/marketdata; importing it back from scheduler
// would cycle if core ever grows a scheduler dependency).
type SignalGenerator interface {
	GenerateSignal(ctx context.Context, ticker string, asOf time.Time) (domain.SignalRecord, error)
}

// SignalGenerationJob runs the signal pipeline for every configured
// symbol on a cron schedule and appends each result to the signals log,
// skipping runs outside NSE trading hours (spec §4.5's live pipeline is
// only meaningful while the cash market is open).
type SignalGenerationJob struct {
	log       zerolog.Logger
	generator SignalGenerator
	db        *database.DB
	hours     *MarketHoursService
	symbols   []string
}

// SignalGenerationConfig configures a SignalGenerationJob.
type SignalGenerationConfig struct {
	Log       zerolog.Logger
	Generator SignalGenerator
	DB        *database.DB
	Hours      *MarketHoursService
	Symbols   []string
}

// NewSignalGenerationJob constructs a SignalGenerationJob.
func NewSignalGenerationJob(cfg SignalGenerationConfig) *SignalGenerationJob {
	return &SignalGenerationJob{
		log:       cfg.Log.With().Str("job", "signal_generation").Logger(),
		generator: cfg.Generator,
		db:        cfg.DB,
		hours:     cfg.Hours,
		symbols:   cfg.Symbols,
	}
}

// Name identifies this job to the scheduler.
func (j *SignalGenerationJob) Name() string { return "signal_generation" }

// Run generates and persists one signal per configured symbol. A single
// symbol's failure is logged and skipped, not fatal to the run — the same
// "exclude the offending unit" policy GenerateSignal itself applies to
// models and timeframes.
func (j *SignalGenerationJob) Run() error {
	if j.hours != nil && !j.hours.IsMarketOpen() {
		j.log.Debug().Msg("market closed, skipping signal generation")
		return nil
	}

	asOf := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, symbol := range j.symbols {
		signal, err := j.generator.GenerateSignal(ctx, symbol, asOf)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("signal generation failed")
			continue
		}
		if err := j.persist(signal); err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("failed to persist signal")
		}
	}
	return nil
}

func (j *SignalGenerationJob) persist(s domain.SignalRecord) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding signal payload: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT OR REPLACE INTO signals
			(ticker, as_of_ts, label, probability, confidence, entry, stop_loss, target_1, target_2, status, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Ticker, s.AsOf.Unix(), string(s.Label), s.Probability, s.Confidence,
		s.Entry, s.StopLoss, s.Target1, s.Target2, string(domain.SignalPending), string(payload),
	)
	return err
}

// HealthCheckJob runs SQLite integrity checks across the system's
// databases and clears any scheduler lock left stuck by a crashed run,
// adapted from the teacher's internal/scheduler/health_check.go onto this
// system's four databases (predictions/signals, snapshots, OHLCV cache,
// orders) instead of the teacher's five portfolio databases.
type HealthCheckJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	databases   map[string]*database.DB
	stuckLockAge time.Duration
}

// HealthCheckConfig configures a HealthCheckJob.
type HealthCheckConfig struct {
	Log          zerolog.Logger
	LockManager  *locking.Manager
	PredictionsDB *database.DB
	SnapshotsDB  *database.DB
	OHLCVCacheDB *database.DB
	OrdersDB     *database.DB
	StuckLockAge time.Duration
}

// NewHealthCheckJob constructs a HealthCheckJob.
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	age := cfg.StuckLockAge
	if age <= 0 {
		age = time.Hour
	}
	return &HealthCheckJob{
		log:         cfg.Log.With().Str("job", "health_check").Logger(),
		lockManager: cfg.LockManager,
		databases: map[string]*database.DB{
			"predictions": cfg.PredictionsDB,
			"snapshots":   cfg.SnapshotsDB,
			"ohlcv_cache": cfg.OHLCVCacheDB,
			"orders":      cfg.OrdersDB,
		},
		stuckLockAge: age,
	}
}

// Name identifies this job to the scheduler.
func (j *HealthCheckJob) Name() string { return "health_check" }

// Run performs one integrity sweep: PRAGMA integrity_check against every
// database, a WAL-size warning, and clearing any lock stuck past
// stuckLockAge. Corruption is surfaced, never auto-repaired — the spec's
// RegistryCorruption kind is a consistency error, fail loudly rather than
// guess at a fix.
func (j *HealthCheckJob) Run() error {
	if err := j.lockManager.Acquire("health_check"); err != nil {
		j.log.Warn().Err(err).Msg("health check already running, skipping")
		return nil
	}
	defer j.lockManager.Release("health_check")

	start := time.Now()
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.IntegrityCheck(); err != nil {
			return fmt.Errorf("database %s failed integrity check: %w", name, err)
		}
		if frames, err := db.WALCheckpointFrames(); err == nil && frames > 1000 {
			j.log.Warn().Str("database", name).Int("wal_frames", frames).Msg("WAL file growing large")
		}
	}

	cleared, err := j.lockManager.ClearStuckLocks(j.stuckLockAge)
	if err != nil {
		j.log.Error().Err(err).Msg("failed to clear stuck locks")
	} else if len(cleared) > 0 {
		j.log.Warn().Strs("locks", cleared).Msg("cleared stuck locks")
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("health check completed")
	return nil
}
