package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reorder-service/internal/model"
)

func newTestStore(t *testing.T) *SingleWriterStore {
	t.Helper()
	s, err := NewSingleWriterStore(filepath.Join(t.TempDir(), "state", "reorder.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLedgerEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resolved := time.Now().UTC().Truncate(time.Second)
	entry := model.LedgerEntry{
		OrderID:     "B08N5WRWNW",
		ProductName: "Coffee Beans",
		Quantity:    2,
		Status:      model.StatusPlaced,
		CreatedAt:   resolved,
		ResolvedAt:  &resolved,
	}
	require.NoError(t, s.AppendLedgerEntry(ctx, entry))
	require.NoError(t, s.AppendLedgerEntry(ctx, model.LedgerEntry{
		OrderID: "B000000002", Status: model.StatusSkipped, Error: "daily limit", CreatedAt: resolved,
	}))

	entries, err := s.RecentLedgerEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Chronological order, oldest first.
	assert.Equal(t, "B08N5WRWNW", entries[0].OrderID)
	assert.Equal(t, model.StatusPlaced, entries[0].Status)
	require.NotNil(t, entries[0].ResolvedAt)
	assert.True(t, entries[0].ResolvedAt.Equal(resolved))
	assert.Equal(t, "daily limit", entries[1].Error)
	assert.Nil(t, entries[1].ResolvedAt)
}

func TestRecentLedgerEntries_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendLedgerEntry(ctx, model.LedgerEntry{
			OrderID: "B001", Status: model.StatusSkipped, CreatedAt: time.Now(),
		}))
	}

	entries, err := s.RecentLedgerEntries(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCountPlacedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	dayStart := now.Truncate(24 * time.Hour)
	require.NoError(t, s.AppendLedgerEntry(ctx, model.LedgerEntry{
		OrderID: "B001", Status: model.StatusPlaced, CreatedAt: dayStart.Add(-time.Hour),
	}))
	require.NoError(t, s.AppendLedgerEntry(ctx, model.LedgerEntry{
		OrderID: "B002", Status: model.StatusPlaced, CreatedAt: now,
	}))
	require.NoError(t, s.AppendLedgerEntry(ctx, model.LedgerEntry{
		OrderID: "B003", Status: model.StatusSkipped, CreatedAt: now,
	}))

	count, err := s.CountPlacedSince(ctx, dayStart)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "yesterday's order and today's skip must not count")

	count, err = s.CountPlacedSince(ctx, dayStart.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPendingMarkers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePendingMarker(ctx, "B001", 5))
	// Overwrite keeps a single marker per identifier.
	require.NoError(t, s.SavePendingMarker(ctx, "B001", 7))
	require.NoError(t, s.SavePendingMarker(ctx, "B002", 2))

	markers, err := s.PendingMarkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"B001": 7, "B002": 2}, markers)

	require.NoError(t, s.DeletePendingMarker(ctx, "B001"))
	markers, err = s.PendingMarkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"B002": 2}, markers)
}

func TestLifecycleEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	entry := model.LifecycleEntry{
		OrderID:      "B08N5WRWNW",
		MessageID:    77,
		ProductName:  "Coffee Beans",
		Quantity:     2,
		Unit:         "Pack",
		CartURL:      "https://www.amazon.de/gp/aws/cart/add.html?ASIN.1=B08N5WRWNW&Quantity.1=2",
		CurrentStock: 5,
		MinStock:     10,
		State:        model.LifecycleCreated,
		CreatedAt:    created,
	}
	require.NoError(t, s.SaveLifecycleEntry(ctx, entry))

	// Upsert transitions the same row.
	ordered := created.Add(time.Minute)
	entry.State = model.LifecycleOrdered
	entry.OrderedAt = &ordered
	require.NoError(t, s.SaveLifecycleEntry(ctx, entry))

	entries, err := s.LifecycleEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LifecycleOrdered, entries[0].State)
	assert.Equal(t, int64(77), entries[0].MessageID)
	require.NotNil(t, entries[0].OrderedAt)
	assert.True(t, entries[0].OrderedAt.Equal(ordered))

	require.NoError(t, s.DeleteLifecycleEntry(ctx, "B08N5WRWNW"))
	entries, err = s.LifecycleEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
