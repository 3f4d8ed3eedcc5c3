// Package journal persists a record of every completed materialization.
//
// The journal is an optional, append-only log backed by BadgerDB. It exists
// for operators: when a downstream consumer claims a segment never arrived,
// the journal answers whether the receiver materialized it, when, and how
// many bytes it carried. The intake path works identically with the journal
// disabled.
//
// Key Design
// ==========
//
// Records are stored under "r:" followed by the big-endian nanosecond
// timestamp and the connection id:
//
//	r:<unix-nanos BE 8 bytes><connection id BE 8 bytes>  ->  Entry (JSON)
//
// Big-endian timestamps make the natural Badger key order the arrival
// order, so Recent is a single reverse range scan. The connection id suffix
// keeps keys unique when two finalizations land in the same nanosecond.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const recordPrefix = "r:"

// Entry is one completed materialization.
type Entry struct {
	// ConnID is the receiver's connection id for the transfer.
	ConnID uint64 `json:"conn_id"`

	// DstPath is the destination the file was renamed onto.
	DstPath string `json:"dst_path"`

	// Bytes is the payload size written.
	Bytes int64 `json:"bytes"`

	// ReceivedAt is when the materialization completed.
	ReceivedAt time.Time `json:"received_at"`
}

// Journal is a BadgerDB-backed receive log.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for a side channel

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal at %q: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Append records one completed materialization.
func (j *Journal) Append(entry Entry) error {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}

	value, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	key := makeKey(entry.ReceivedAt, entry.ConnID)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("append journal entry for %q: %w", entry.DstPath, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the end of the prefix range:
		// the prefix followed by 0xff for all 16 key-suffix bytes, so even
		// a maximal timestamp and connection id sort at or before it.
		seek := append([]byte(recordPrefix), bytes.Repeat([]byte{0xff}, 16)...)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			var entry Entry
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode journal entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close flushes and closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func makeKey(at time.Time, connID uint64) []byte {
	key := make([]byte, len(recordPrefix)+16)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(key[len(recordPrefix)+8:], connID)
	return key
}
