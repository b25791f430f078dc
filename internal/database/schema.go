package database

import "fmt"

// predictionsSchema creates the append-only prediction log (spec §6
// predictions.log, §8 idempotency on (model_id, prediction_ts)).
const predictionsSchema = `
CREATE TABLE IF NOT EXISTS predictions (
	model_id        TEXT NOT NULL,
	ticker          TEXT NOT NULL,
	as_of_ts        INTEGER NOT NULL,
	probability_up  REAL NOT NULL,
	model_version   TEXT NOT NULL,
	feature_version TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (model_id, as_of_ts)
);

CREATE TABLE IF NOT EXISTS performance_observations (
	model_id           TEXT NOT NULL,
	prediction_ts      INTEGER NOT NULL,
	realised_ts        INTEGER NOT NULL,
	predicted_prob     REAL NOT NULL,
	realised_direction TEXT NOT NULL,
	realised_return    REAL NOT NULL,
	PRIMARY KEY (model_id, prediction_ts)
);

CREATE TABLE IF NOT EXISTS signals (
	ticker       TEXT NOT NULL,
	as_of_ts     INTEGER NOT NULL,
	label        TEXT NOT NULL,
	probability  REAL NOT NULL,
	confidence   REAL NOT NULL,
	entry        REAL NOT NULL,
	stop_loss    REAL NOT NULL,
	target_1     REAL NOT NULL,
	target_2     REAL NOT NULL,
	status       TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	PRIMARY KEY (ticker, as_of_ts)
);
`

// snapshotsSchema creates the append-only portfolio snapshot time series
// (spec §6 snapshots.db).
const snapshotsSchema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	snapshot_ts INTEGER PRIMARY KEY,
	cash        REAL NOT NULL,
	total_value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_holdings (
	snapshot_ts    INTEGER NOT NULL,
	symbol         TEXT NOT NULL,
	quantity       REAL NOT NULL,
	avg_price      REAL NOT NULL,
	last_price     REAL NOT NULL,
	unrealised_pnl REAL NOT NULL,
	PRIMARY KEY (snapshot_ts, symbol),
	FOREIGN KEY (snapshot_ts) REFERENCES portfolio_snapshots(snapshot_ts) ON DELETE CASCADE
);
`

// ohlcvCacheSchema creates the on-disk historical OHLCV fallback keyed by
// (symbol, start, end, bar_size), per spec §6 cache/.
const ohlcvCacheSchema = `
CREATE TABLE IF NOT EXISTS ohlcv_cache (
	symbol      TEXT NOT NULL,
	start_ts    INTEGER NOT NULL,
	end_ts      INTEGER NOT NULL,
	bar_size    TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	bars_json   TEXT NOT NULL,
	cached_at   INTEGER NOT NULL,
	PRIMARY KEY (symbol, start_ts, end_ts, bar_size)
);
`

// ordersSchema creates the order ledger.
const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id        TEXT PRIMARY KEY,
	idempotency_key TEXT,
	mode            TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	order_type      TEXT NOT NULL,
	quantity        REAL NOT NULL,
	state           TEXT NOT NULL,
	payload_json    TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_idempotency
	ON orders(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != '';
`

// MigratePredictions applies the predictions-log schema.
func MigratePredictions(db *DB) error { return exec(db, predictionsSchema) }

// MigrateSnapshots applies the portfolio-snapshot schema.
func MigrateSnapshots(db *DB) error { return exec(db, snapshotsSchema) }

// MigrateOHLCVCache applies the historical-OHLCV on-disk fallback schema.
func MigrateOHLCVCache(db *DB) error { return exec(db, ohlcvCacheSchema) }

// MigrateOrders applies the order-ledger schema.
func MigrateOrders(db *DB) error { return exec(db, ordersSchema) }

func exec(db *DB, schema string) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
