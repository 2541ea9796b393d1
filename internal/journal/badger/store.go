// Package badger provides an embedded [journal.Store] backed by BadgerDB.
//
// Entries are msgpack-encoded and keyed by "utt:" followed by the capture
// time in big-endian nanoseconds and the entry ID, so a reverse prefix scan
// yields the newest entries first.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrWong99/voxshift/internal/journal"
)

var keyPrefix = []byte("utt:")

// Options configures [Open].
type Options struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool
}

// Store is a [journal.Store] on top of a BadgerDB instance.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger journal: Dir is required for on-disk mode")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(slogLogger{})
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger journal: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Record implements [journal.Store].
func (s *Store) Record(_ context.Context, e journal.Entry) error {
	if e.CapturedAt.IsZero() {
		e.CapturedAt = time.Now()
	}
	val, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("badger journal: encode: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(entryKey(e), val)
	})
	if err != nil {
		return fmt.Errorf("badger journal: record: %w", err)
	}
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	var out []journal.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		iterOpts := badgerdb.DefaultIteratorOptions
		iterOpts.Prefix = keyPrefix
		iterOpts.Reverse = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key.
		seek := append(slices.Clone(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e journal.Entry
			if err := msgpack.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode %x: %w", it.Item().Key(), err)
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger journal: recent: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Close implements [journal.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(e journal.Entry) []byte {
	k := make([]byte, 0, len(keyPrefix)+8+16)
	k = append(k, keyPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(e.CapturedAt.UnixNano()))
	return append(k, e.ID[:]...)
}

// slogLogger routes badger's warnings and errors to slog and drops the rest.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any) {
	slog.Error("badger journal: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Warningf(f string, v ...any) {
	slog.Warn("badger journal: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Infof(string, ...any)  {}
func (slogLogger) Debugf(string, ...any) {}

var _ journal.Store = (*Store)(nil)
