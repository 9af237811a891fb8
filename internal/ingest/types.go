package ingest

import (
	"errors"
	"time"
)

// Kind classifies a source by its instrument directory.
type Kind string

const (
	KindIndex   Kind = "index"
	KindOptions Kind = "options"
	KindFutures Kind = "futures"
)

// Source is one loadable market-data file found in cold storage.
type Source struct {
	// Table is the target table name (without schema or _std suffix).
	Table string

	// Path is the absolute path to the parquet or CSV file.
	Path string

	Exchange string
	Kind     Kind
}

// Report summarises one ingestion run.
type Report struct {
	SourcesFound   int           `json:"sources_found"`
	TablesCreated  int           `json:"tables_created"`
	TablesAppended int           `json:"tables_appended"`
	ViewsCreated   int           `json:"views_created"`
	StdCreated     int           `json:"std_created"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
}

// Sentinel errors for ingestion.
var (
	ErrDataDirMissing = errors.New("data directory does not exist")
	ErrUnsafePath     = errors.New("source path contains unsafe characters")
)
