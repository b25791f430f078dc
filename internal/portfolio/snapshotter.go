// Package portfolio implements the periodic and forced portfolio
// snapshots (spec §4.5, component C5: "Snapshotter") that back the
// GET /portfolio/snapshots endpoint and the order router's audit trail.
package portfolio

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/domain"
)

// HoldingsSource is the narrow slice of internal/orders.Router the
// snapshotter depends on, so it can be tested without a full Router.
type HoldingsSource interface {
	Cash() float64
	Holdings() []domain.Holding
}

// Snapshotter periodically records portfolio composition into
// snapshots.db and prunes entries past the configured retention window
// (spec §6 `snapshot_interval`, `session_end_time`, `snapshot_retention`).
type Snapshotter struct {
	db        *database.DB
	source    HoldingsSource
	retention time.Duration
	log       zerolog.Logger
}

// New constructs a Snapshotter writing into db, reading holdings from
// source.
func New(db *database.DB, source HoldingsSource, retention time.Duration, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		db:        db,
		source:    source,
		retention: retention,
		log:       log.With().Str("component", "snapshotter").Logger(),
	}
}

// Name identifies this job to the scheduler.
func (s *Snapshotter) Name() string { return "portfolio_snapshot" }

// Run takes one snapshot and prunes entries older than the retention
// window, satisfying the scheduler.Job interface so it can be registered
// on a cron schedule directly (spec §4.5 "Periodic (spec `snapshot_interval`)
// and forced (end of session, `session_end_time`) snapshot").
func (s *Snapshotter) Run() error {
	if _, err := s.Take(time.Now().UTC()); err != nil {
		return err
	}
	return s.Prune(time.Now().UTC())
}

// Take records a single snapshot of the current cash and holdings at the
// given instant, inside one transaction so a reader never observes a
// partial snapshot (spec §5 atomic-write discipline extended to the
// snapshot table pair).
func (s *Snapshotter) Take(at time.Time) (domain.PortfolioSnapshot, error) {
	cash := s.source.Cash()
	holdings := s.source.Holdings()

	snapshot := domain.PortfolioSnapshot{
		SnapshotAt: at,
		Cash:       cash,
		Holdings:   holdings,
	}
	snapshot.TotalValue = cash
	for _, h := range holdings {
		snapshot.TotalValue += h.Quantity * h.LastPrice
	}

	tx, err := s.db.Begin()
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	defer tx.Rollback()

	ts := at.UnixMilli()
	if _, err := tx.Exec(
		`INSERT INTO portfolio_snapshots (snapshot_ts, cash, total_value) VALUES (?, ?, ?)`,
		ts, cash, snapshot.TotalValue,
	); err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	for _, h := range holdings {
		if _, err := tx.Exec(
			`INSERT INTO snapshot_holdings (snapshot_ts, symbol, quantity, avg_price, last_price, unrealised_pnl)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ts, h.Symbol, h.Quantity, h.AvgPrice, h.LastPrice, h.UnrealisedPnL,
		); err != nil {
			return domain.PortfolioSnapshot{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	s.log.Debug().Time("snapshot_ts", at).Float64("total_value", snapshot.TotalValue).Msg("portfolio snapshot taken")
	return snapshot, nil
}

// Prune deletes snapshots older than now minus the retention window (spec
// §6 `snapshot_retention`). snapshot_holdings rows cascade via the
// foreign key ON DELETE CASCADE declared in the schema.
func (s *Snapshotter) Prune(now time.Time) error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	_, err := s.db.Exec(`DELETE FROM portfolio_snapshots WHERE snapshot_ts < ?`, cutoff)
	return err
}

// List returns snapshots in [since, until], ordered oldest-first, for the
// GET /portfolio/snapshots endpoint.
func (s *Snapshotter) List(since, until time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_ts, cash, total_value FROM portfolio_snapshots
		 WHERE snapshot_ts >= ? AND snapshot_ts <= ? ORDER BY snapshot_ts ASC`,
		since.UnixMilli(), until.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.PortfolioSnapshot
	var timestamps []int64
	for rows.Next() {
		var ts int64
		var snap domain.PortfolioSnapshot
		if err := rows.Scan(&ts, &snap.Cash, &snap.TotalValue); err != nil {
			return nil, err
		}
		snap.SnapshotAt = time.UnixMilli(ts).UTC()
		snapshots = append(snapshots, snap)
		timestamps = append(timestamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snapshots {
		holdings, err := s.holdingsAt(timestamps[i])
		if err != nil {
			return nil, err
		}
		snapshots[i].Holdings = holdings
	}
	return snapshots, nil
}

func (s *Snapshotter) holdingsAt(ts int64) ([]domain.Holding, error) {
	rows, err := s.db.Query(
		`SELECT symbol, quantity, avg_price, last_price, unrealised_pnl
		 FROM snapshot_holdings WHERE snapshot_ts = ? ORDER BY symbol ASC`,
		ts,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AvgPrice, &h.LastPrice, &h.UnrealisedPnL); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
