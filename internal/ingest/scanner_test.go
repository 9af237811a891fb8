package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeColdStorage lays out a minimal cold-storage tree and returns its root.
func writeColdStorage(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := []string{
		"NSE/Index/NIFTY/NIFTY_1min.parquet",
		"NSE/Options/NIFTY/20240627/22500/NIFTY_20240627_22500_CE.parquet",
		"NSE/Options/NIFTY/20240627/22500/NIFTY_20240627_22500_PE.parquet",
		"NSE/Futures/NIFTY/NIFTY_fut.parquet",
		"BSE/Index/SENSEX/SENSEX_1min.parquet",
		"MCX/Futures/CRUDEOIL/CRUDEOIL_fut.csv",
		"NSE/Index/NIFTY/notes.txt",      // ignored: not a data file
		"NSE/Unknown/whatever/x.parquet", // ignored: unknown instrument
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("stub"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestScan(t *testing.T) {
	root := writeColdStorage(t)

	sources, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := map[string]Kind{
		"NSE_Index_NIFTY":                       KindIndex,
		"NSE_Options_NIFTY_20240627_22500_call": KindOptions,
		"NSE_Options_NIFTY_20240627_22500_put":  KindOptions,
		"NSE_Futures_NIFTY":                     KindFutures,
		"BSE_Index_SENSEX":                      KindIndex,
		"MCX_Futures_CRUDEOIL":                  KindFutures,
	}

	if len(sources) != len(want) {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = s.Table
		}
		t.Fatalf("got %d sources %v, want %d", len(sources), names, len(want))
	}

	for _, s := range sources {
		kind, ok := want[s.Table]
		if !ok {
			t.Errorf("unexpected source %q", s.Table)
			continue
		}
		if s.Kind != kind {
			t.Errorf("%s Kind = %q, want %q", s.Table, s.Kind, kind)
		}
		if s.Path == "" {
			t.Errorf("%s has empty path", s.Table)
		}
	}

	// Sorted by table name
	for i := 1; i < len(sources); i++ {
		if sources[i-1].Table > sources[i].Table {
			t.Errorf("sources not sorted: %q before %q", sources[i-1].Table, sources[i].Table)
		}
	}
}

func TestScan_MissingDir(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrDataDirMissing) {
		t.Errorf("error = %v, want ErrDataDirMissing", err)
	}
}

func TestOptionTypeOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"NIFTY_20240627_22500_CE.parquet", "call"},
		{"NIFTY_20240627_22500_PE.parquet", "put"},
		{"NIFTY_20240627_22500_call.parquet", "call"},
		{"NIFTY_20240627_22500_put.csv", "put"},
	}
	for _, tt := range tests {
		if got := optionTypeOf(tt.path); got != tt.want {
			t.Errorf("optionTypeOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestReadRelation(t *testing.T) {
	rel, err := readRelation("/data/x.parquet")
	if err != nil {
		t.Fatalf("readRelation() error = %v", err)
	}
	if rel != "read_parquet('/data/x.parquet')" {
		t.Errorf("readRelation() = %q", rel)
	}

	rel, err = readRelation("/data/x.csv")
	if err != nil {
		t.Fatalf("readRelation() error = %v", err)
	}
	if rel != "read_csv_auto('/data/x.csv')" {
		t.Errorf("readRelation() = %q", rel)
	}

	if _, err := readRelation("/data/x'; DROP TABLE y; --.csv"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("error = %v, want ErrUnsafePath", err)
	}
}
