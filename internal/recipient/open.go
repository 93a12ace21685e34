package recipient

import "fmt"

type Config struct {
	Driver        string
	Path          string
	AddressColumn string
	StatusColumn  string
	SQLDriver     string
	DSN           string
	Table         string
}

// Open builds the configured source. SQL sources own a connection pool the
// caller closes through the returned close function.
func Open(cfg Config) (Source, func() error, error) {
	switch cfg.Driver {
	case "", "csv":
		source, err := NewCSVSource(cfg.Path, cfg.AddressColumn, cfg.StatusColumn)
		if err != nil {
			return nil, nil, err
		}
		return source, func() error { return nil }, nil
	case "sql":
		source, err := OpenSQLSource(cfg.SQLDriver, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown recipients driver: %s", cfg.Driver)
	}
}
