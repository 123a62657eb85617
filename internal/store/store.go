// Package store provides the persistence collaborators a ledger loads its
// entry sequence from and writes it back to after every append.
//
// Implementations:
//   - Memory: in-process, for tests and demos.
//   - File: a JSON document on local disk.
//   - Postgres: one row per entry, written under an advisory lock.
//   - SQLite: the same schema through database/sql.
//
// The row stores only ever append on Save and refuse a sequence that does
// not extend what is stored. Replacing the stored sequence goes through
// Replace.
//   - Redis, S3, GCS: the whole sequence as one JSON document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// ErrDiverged is returned by the row stores when a save would drop or rewrite
// entries that are already committed. It means another writer extended the
// ledger after this one loaded it.
var ErrDiverged = errors.New("stored ledger diverged")

// documentVersion is bumped whenever the document layout changes incompatibly.
const documentVersion = 1

type document struct {
	Version int            `json:"version"`
	Entries []ledger.Entry `json:"entries"`
}

// Marshal encodes a ledger sequence as a versioned JSON document.
func Marshal(entries []ledger.Entry) ([]byte, error) {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	b, err := json.Marshal(document{Version: documentVersion, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("marshal ledger document: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a document produced by Marshal. Empty input yields an
// empty sequence.
func Unmarshal(b []byte) ([]ledger.Entry, error) {
	if len(b) == 0 {
		return []ledger.Entry{}, nil
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal ledger document: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported ledger document version %d", doc.Version)
	}
	if doc.Entries == nil {
		doc.Entries = []ledger.Entry{}
	}
	return doc.Entries, nil
}
