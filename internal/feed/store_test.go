package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
	"github.com/qodeinvest/qode-engine/internal/market"
)

// testLiveStore opens an in-memory DuckDB with the market_data schema and
// an empty live table.
func testLiveStore(t *testing.T) *LiveStore {
	t.Helper()

	db, err := duckdb.Open(duckdb.Config{Path: duckdb.InMemory})
	if err != nil {
		t.Fatalf("opening duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(t.Context(), "CREATE SCHEMA IF NOT EXISTS "+market.Schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	store, err := NewLiveStore(db, "")
	if err != nil {
		t.Fatalf("NewLiveStore() error = %v", err)
	}
	if err := store.EnsureTable(t.Context()); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	return store
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewLiveStore_Defaults(t *testing.T) {
	db, err := duckdb.Open(duckdb.Config{Path: duckdb.InMemory})
	if err != nil {
		t.Fatalf("opening duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewLiveStore(db, "")
	if err != nil {
		t.Fatalf("NewLiveStore() error = %v", err)
	}
	if store.Table() != DefaultLiveTable {
		t.Errorf("Table() = %q, want %q", store.Table(), DefaultLiveTable)
	}
}

func TestNewLiveStore_InvalidTable(t *testing.T) {
	db, err := duckdb.Open(duckdb.Config{Path: duckdb.InMemory})
	if err != nil {
		t.Fatalf("opening duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = NewLiveStore(db, `ticks"; DROP TABLE x; --`)
	if !errors.Is(err, ErrInvalidTable) {
		t.Errorf("NewLiveStore() error = %v, want ErrInvalidTable", err)
	}
}

func TestLiveStore_OnTickAndRecent(t *testing.T) {
	store := testLiveStore(t)
	ctx := t.Context()
	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	ticks := []Tick{
		{Symbol: "NSE_Index_NIFTY", Timestamp: base, LTP: 22450.75},
		{Symbol: "NSE_Index_NIFTY", Timestamp: base.Add(time.Second), LTP: 22451.10},
		{
			Symbol:       "NSE_Futures_NIFTY",
			Timestamp:    base,
			LTP:          22480.00,
			Volume:       int64Ptr(1500),
			OpenInterest: int64Ptr(320000),
		},
	}
	for _, tick := range ticks {
		if err := store.OnTick(ctx, tick); err != nil {
			t.Fatalf("OnTick(%s) error = %v", tick.Symbol, err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := store.Recent(ctx, "NSE_Index_NIFTY", 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Recent() returned %d ticks, want 2", len(got))
		}
		if got[0].LTP != 22451.10 {
			t.Errorf("Recent()[0].LTP = %v, want 22451.10", got[0].LTP)
		}
		if got[0].Volume != nil || got[0].OpenInterest != nil {
			t.Error("index tick should have nil volume and open interest")
		}
	})

	t.Run("derivative fields survive", func(t *testing.T) {
		got, err := store.Recent(ctx, "NSE_Futures_NIFTY", 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Recent() returned %d ticks, want 1", len(got))
		}
		if got[0].Volume == nil || *got[0].Volume != 1500 {
			t.Errorf("Volume = %v, want 1500", got[0].Volume)
		}
		if got[0].OpenInterest == nil || *got[0].OpenInterest != 320000 {
			t.Errorf("OpenInterest = %v, want 320000", got[0].OpenInterest)
		}
	})

	t.Run("unknown symbol", func(t *testing.T) {
		got, err := store.Recent(ctx, "NSE_Index_UNKNOWN", 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Recent() returned %d ticks, want 0", len(got))
		}
	})
}

func TestLiveStore_Prune(t *testing.T) {
	store := testLiveStore(t)
	ctx := t.Context()
	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	for i := range 5 {
		tick := Tick{
			Symbol:    "NSE_Index_NIFTY",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			LTP:       22450 + float64(i),
		}
		if err := store.OnTick(ctx, tick); err != nil {
			t.Fatalf("OnTick() error = %v", err)
		}
	}

	removed, err := store.Prune(ctx, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d rows, want 3", removed)
	}

	remaining, err := store.Recent(ctx, "NSE_Index_NIFTY", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("Recent() returned %d ticks after prune, want 2", len(remaining))
	}
}
