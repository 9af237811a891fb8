// Package scheduler runs the daily maintenance jobs: cold-storage refresh,
// options master rebuild, store optimisation and metadata cleanup.
//
// Jobs fire once a day at the configured wall-clock time in the engine's
// timezone, and can also be triggered manually through the API. Every run
// is recorded in the metadata store's job_runs table.
package scheduler
