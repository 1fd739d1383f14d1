// Package badger stores settings in an embedded Badger key-value database.
package badger

import (
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/yegors/co-hud/pkg/logger"
)

const keyPrefix = "settings/"

// SettingsStorage implements the settings backend on Badger
type SettingsStorage struct {
	db     *badgerdb.DB
	logger *logger.Logger
}

// Open opens or creates a database under dir
func Open(dir string, log *logger.Logger) (*SettingsStorage, error) {
	storageLogger := log.Named("badger")
	storageLogger.Info("Initializing Badger storage", logger.String("dir", dir))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	opts := badgerdb.DefaultOptions(dir).
		WithLogger(badgerLogger{storageLogger.Sugar()}).
		WithLoggingLevel(badgerdb.WARNING)
	return open(opts, storageLogger)
}

// OpenInMemory opens a database that lives only as long as the process
func OpenInMemory(log *logger.Logger) (*SettingsStorage, error) {
	storageLogger := log.Named("badger")

	opts := badgerdb.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{storageLogger.Sugar()}).
		WithLoggingLevel(badgerdb.WARNING)
	return open(opts, storageLogger)
}

func open(opts badgerdb.Options, log *logger.Logger) (*SettingsStorage, error) {
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &SettingsStorage{db: db, logger: log}, nil
}

// Get returns the value stored under key
func (s *SettingsStorage) Get(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return string(value), true, nil
}

// Put stores value under key
func (s *SettingsStorage) Put(key, value string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// All returns every stored setting
func (s *SettingsStorage) All() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key()[len(keyPrefix):])] = string(value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database
func (s *SettingsStorage) Close() error {
	return s.db.Close()
}

// badgerLogger routes Badger's printf logging into zap
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
