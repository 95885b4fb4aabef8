package storage

import (
	"context"
	"errors"
	"time"
)

// ErrStorage matches every error returned by this package.
var ErrStorage = errors.New("storage error")

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("storage closed")

// Error wraps a backend failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrStorage }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Config selects and configures a backend.
//
// Driver values:
//   - "memory": process-local map, lost on exit
//   - "file":   snapshot + journal inside the Path directory
//   - "sqlite": SQLite database file at Path
//   - "redis":  keys under Redis.Prefix on Redis.Addr
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KeyRecord is an opaque serialized key. A nil KeyRecord in Updates deletes
// the entry.
type KeyRecord []byte

// Updates is category -> id -> record.
type Updates map[string]map[string]KeyRecord

// Op is one backend write. A nil Value deletes Key.
type Op struct {
	Key   string
	Value []byte
}

// Backend is a flat, byte-valued key space.
//
// GetMany must read all keys in one round trip and omit absent keys. Batch
// must apply every op or none.
type Backend interface {
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Batch(ctx context.Context, ops []Op) error
	Clear(ctx context.Context) error
	Close() error
}
