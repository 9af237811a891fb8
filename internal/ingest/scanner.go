package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// instrument directory names recognised by the scanner.
const (
	dirIndex   = "Index"
	dirOptions = "Options"
	dirFutures = "Futures"
)

// Scan walks a cold-storage directory and returns every loadable source,
// sorted by table name. Unknown instrument directories and non-data files
// are ignored.
func Scan(dataDir string) ([]Source, error) {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDataDirMissing, dataDir)
		}
		return nil, fmt.Errorf("checking data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDataDirMissing, dataDir)
	}

	var sources []Source

	exchanges, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	for _, ex := range exchanges {
		if !ex.IsDir() {
			continue
		}
		exchange := ex.Name()
		exchangePath := filepath.Join(dataDir, exchange)

		instruments, err := os.ReadDir(exchangePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", exchangePath, err)
		}

		for _, inst := range instruments {
			if !inst.IsDir() {
				continue
			}
			instrumentPath := filepath.Join(exchangePath, inst.Name())

			var found []Source
			switch inst.Name() {
			case dirIndex:
				found, err = scanIndex(exchange, instrumentPath)
			case dirOptions:
				found, err = scanOptions(exchange, instrumentPath)
			case dirFutures:
				found, err = scanFutures(exchange, instrumentPath)
			default:
				continue
			}
			if err != nil {
				return nil, err
			}
			sources = append(sources, found...)
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Table < sources[j].Table })
	return sources, nil
}

// scanIndex handles Index/<name>/<file>.
func scanIndex(exchange, instrumentPath string) ([]Source, error) {
	var sources []Source

	names, err := os.ReadDir(instrumentPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", instrumentPath, err)
	}

	for _, name := range names {
		if !name.IsDir() {
			continue
		}
		indexDir := filepath.Join(instrumentPath, name.Name())

		files, err := dataFiles(indexDir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			sources = append(sources, Source{
				Table:    fmt.Sprintf("%s_%s_%s", exchange, dirIndex, name.Name()),
				Path:     f,
				Exchange: exchange,
				Kind:     KindIndex,
			})
		}
	}

	return sources, nil
}

// scanOptions handles Options/<underlying>/<expiry>/<strike>/<file>.
// The option type is the last underscore token of the filename;
// CE and PE map to call and put.
func scanOptions(exchange, instrumentPath string) ([]Source, error) {
	var sources []Source

	underlyings, err := os.ReadDir(instrumentPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", instrumentPath, err)
	}

	for _, underlying := range underlyings {
		if !underlying.IsDir() {
			continue
		}
		underlyingDir := filepath.Join(instrumentPath, underlying.Name())

		expiries, err := os.ReadDir(underlyingDir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", underlyingDir, err)
		}

		for _, expiry := range expiries {
			if !expiry.IsDir() {
				continue
			}
			expiryDir := filepath.Join(underlyingDir, expiry.Name())

			strikes, err := os.ReadDir(expiryDir)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", expiryDir, err)
			}

			for _, strike := range strikes {
				if !strike.IsDir() {
					continue
				}
				strikeDir := filepath.Join(expiryDir, strike.Name())

				files, err := dataFiles(strikeDir)
				if err != nil {
					return nil, err
				}
				for _, f := range files {
					sources = append(sources, Source{
						Table: fmt.Sprintf("%s_%s_%s_%s_%s_%s",
							exchange, dirOptions, underlying.Name(),
							expiry.Name(), strike.Name(), optionTypeOf(f)),
						Path:     f,
						Exchange: exchange,
						Kind:     KindOptions,
					})
				}
			}
		}
	}

	return sources, nil
}

// scanFutures handles Futures/<underlying>/<file>.
func scanFutures(exchange, instrumentPath string) ([]Source, error) {
	var sources []Source

	underlyings, err := os.ReadDir(instrumentPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", instrumentPath, err)
	}

	for _, underlying := range underlyings {
		if !underlying.IsDir() {
			continue
		}
		underlyingDir := filepath.Join(instrumentPath, underlying.Name())

		files, err := dataFiles(underlyingDir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			sources = append(sources, Source{
				Table:    fmt.Sprintf("%s_%s_%s", exchange, dirFutures, underlying.Name()),
				Path:     f,
				Exchange: exchange,
				Kind:     KindFutures,
			})
		}
	}

	return sources, nil
}

// dataFiles returns the absolute paths of parquet and CSV files in a directory.
func dataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isDataFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// isDataFile reports whether a filename is a loadable data file.
func isDataFile(name string) bool {
	return strings.HasSuffix(name, ".parquet") || strings.HasSuffix(name, ".csv")
}

// optionTypeOf extracts the option type from a filename: the last
// underscore-separated token with the extension stripped. The broker
// codes CE and PE normalise to call and put.
func optionTypeOf(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(base, "_")
	typ := parts[len(parts)-1]

	switch typ {
	case "CE":
		return "call"
	case "PE":
		return "put"
	default:
		return typ
	}
}
