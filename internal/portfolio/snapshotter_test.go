package portfolio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/domain"
)

type fakeHoldings struct {
	cash     float64
	holdings []domain.Holding
}

func (f fakeHoldings) Cash() float64             { return f.cash }
func (f fakeHoldings) Holdings() []domain.Holding { return f.holdings }

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "snapshots.db"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateSnapshots(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotterTakeAndList(t *testing.T) {
	db := newTestDB(t)
	source := fakeHoldings{
		cash: 50000,
		holdings: []domain.Holding{
			{Symbol: "RELIANCE", Quantity: 10, AvgPrice: 2500, LastPrice: 2550, UnrealisedPnL: 500},
		},
	}
	snap := New(db, source, 24*time.Hour, zerolog.Nop())

	at := time.Now().UTC().Truncate(time.Second)
	got, err := snap.Take(at)
	require.NoError(t, err)
	require.Equal(t, 50000+10*2550.0, got.TotalValue)

	listed, err := snap.List(at.Add(-time.Minute), at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Len(t, listed[0].Holdings, 1)
	require.Equal(t, "RELIANCE", listed[0].Holdings[0].Symbol)
}

func TestSnapshotterPruneDropsOldSnapshots(t *testing.T) {
	db := newTestDB(t)
	source := fakeHoldings{cash: 1000}
	snap := New(db, source, time.Hour, zerolog.Nop())

	old := time.Now().UTC().Add(-3 * time.Hour)
	_, err := snap.Take(old)
	require.NoError(t, err)

	recent := time.Now().UTC()
	_, err = snap.Take(recent)
	require.NoError(t, err)

	require.NoError(t, snap.Prune(time.Now().UTC()))

	listed, err := snap.List(old.Add(-time.Minute), recent.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
