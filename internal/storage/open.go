package storage

import (
	"fmt"
	"strings"

	"wafa/pkg/logx"
)

// Open builds the configured backend.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("driver", driver))

	var (
		b   Backend
		err error
	)
	switch driver {
	case "memory":
		b = NewMemory()
	case "", "file":
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg, log)
	case "redis":
		b, err = openRedis(cfg, log)
	default:
		return nil, &Error{Op: "open", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
	}
	if err != nil {
		return nil, wrap("open "+driver, err)
	}
	log.Debug("credential store opened", logx.String("path", cfg.Path))
	return b, nil
}
