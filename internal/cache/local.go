package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/buildgridgo/internal/fingerprint"
)

var keyPrefix = []byte("artifact/")

// LocalConfig configures the badger-backed local cache.
type LocalConfig struct {
	// Path is the directory for the database files. Ignored when
	// InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Intended for tests.
	InMemory bool

	// SyncWrites forces every write to disk before returning.
	SyncWrites bool

	// Logger receives badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Local is a Cache backed by an embedded badger database.
type Local struct {
	db *badger.DB
}

// OpenLocal opens (or creates) a local cache with the given config.
func OpenLocal(cfg LocalConfig) (*Local, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache: local path is required unless in-memory")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger: %w", err)
	}
	return &Local{db: db}, nil
}

// OpenInMemory opens a local cache that lives entirely in RAM.
func OpenInMemory() (*Local, error) {
	return OpenLocal(LocalConfig{InMemory: true})
}

func (l *Local) Get(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var data []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fp))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", fp.Short(), err)
	}
	return data, true, nil
}

func (l *Local) Put(ctx context.Context, fp fingerprint.Fingerprint, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(fp), data)
	})
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", fp.Short(), err)
	}
	return nil
}

func (l *Local) Close() error {
	return l.db.Close()
}

func key(fp fingerprint.Fingerprint) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(fp))
	k = append(k, keyPrefix...)
	k = append(k, fp[:]...)
	return k
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
