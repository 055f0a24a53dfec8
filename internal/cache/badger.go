// Package cache persists the channel-segment to waveform-file memo in an
// embedded BadgerDB.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

const keyPrefix = "wfid:"

// #region config
// Config selects a persistent or in-memory database.
type Config struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// #endregion config

// #region logger
// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// #endregion logger

// #region open
// WaveformIDs is a waveform.IDCache backed by BadgerDB.
type WaveformIDs struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens the cache described by cfg.
func Open(cfg Config) (*WaveformIDs, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required for a persistent cache")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &WaveformIDs{db: db, log: logger}, nil
}

// OpenInMemory opens a throwaway cache.
func OpenInMemory() (*WaveformIDs, error) {
	return Open(Config{InMemory: true})
}

// Close closes the database.
func (c *WaveformIDs) Close() error {
	return c.db.Close()
}

// #endregion open

// #region put-get
// Put stores wfids under the descriptor key. Failures are logged, never
// returned: resolution does not depend on the memo.
func (c *WaveformIDs) Put(ctx context.Context, d waveform.Descriptor, wfids []int64) {
	if err := ctx.Err(); err != nil {
		return
	}
	val, err := json.Marshal(wfids)
	if err != nil {
		c.log.Warn("encode cache value", "key", d.Key(), "error", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+d.Key()), val)
	})
	if err != nil {
		c.log.Warn("cache put failed", "key", d.Key(), "error", err)
	}
}

// Get returns the wfids memoized for d.
func (c *WaveformIDs) Get(d waveform.Descriptor) ([]int64, bool, error) {
	var wfids []int64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + d.Key()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &wfids)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", d.Key(), err)
	}
	return wfids, true, nil
}

// #endregion put-get

var _ waveform.IDCache = (*WaveformIDs)(nil)
