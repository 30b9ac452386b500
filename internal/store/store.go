// Package store persists the fingerprint of every document seen by the previous sync run.
//
// The persisted form is a single JSON object. The key "counter" holds the number of record
// writes performed, every other key is a document id:
//
//	{
//	    "counter": 2,
//	    "guide.pdf": {
//	        "checksum": "ba7816bf...",
//	        "timestamp": "2025-01-02T03:04:05.000Z"
//	    }
//	}
package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// CounterKey shares the key namespace with document ids.
const CounterKey = "counter"

// TimestampFormat is the ISO-8601 form used for observedAt.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrStoreCorrupt = errors.New("store: corrupt")
	ErrPersist      = errors.New("store: persist failed")
	ErrReservedID   = errors.New("store: document id is reserved")
	ErrEmptyID      = errors.New("store: empty document id")
)

// FingerprintRecord is the last observation of one document.
type FingerprintRecord struct {
	DocumentID  string
	Fingerprint string
	ObservedAt  time.Time
}

// FingerprintStore maps document ids to their last fingerprint.
//
// A store is not safe for concurrent use. During a run the sync engine is its only
// owner and mutates it in place through Upsert.
type FingerprintStore struct {
	records map[string]*FingerprintRecord
	counter int

	// hasCounter tracks whether the counter key was present in the persisted form.
	// The cold start check depends on the exact key set, not only on the values.
	hasCounter bool
}

// New returns the canonical empty store, serialized as {"counter": 0}.
func New() *FingerprintStore {
	return &FingerprintStore{
		records:    make(map[string]*FingerprintRecord),
		hasCounter: true,
	}
}

// IsColdStart reports whether the store's only key is the counter and its value is 0.
func (s *FingerprintStore) IsColdStart() bool {
	return s.hasCounter && len(s.records) == 0 && s.counter == 0
}

// IsEmpty reports whether no document records exist, whatever the counter says.
func (s *FingerprintStore) IsEmpty() bool {
	return len(s.records) == 0
}

// Counter is the number of record writes, not the number of records.
func (s *FingerprintStore) Counter() int {
	return s.counter
}

func (s *FingerprintStore) Len() int {
	return len(s.records)
}

// Get returns a copy of the record for id.
func (s *FingerprintStore) Get(id string) (FingerprintRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return FingerprintRecord{}, false
	}
	return *rec, true
}

// IDs returns the document ids in lexical order.
func (s *FingerprintStore) IDs() []string {
	return slices.Sorted(maps.Keys(s.records))
}

// Records returns copies of all records ordered by document id.
func (s *FingerprintStore) Records() []FingerprintRecord {
	out := make([]FingerprintRecord, 0, len(s.records))
	for _, id := range s.IDs() {
		out = append(out, *s.records[id])
	}
	return out
}

// Upsert inserts or overwrites the record for id and increments the write counter.
// Writing the same id twice increments the counter twice.
func (s *FingerprintStore) Upsert(id, fingerprint string, observedAt time.Time) error {
	if id == "" {
		return ErrEmptyID
	}
	if id == CounterKey {
		return fmt.Errorf("%w: %q", ErrReservedID, id)
	}

	s.records[id] = &FingerprintRecord{
		DocumentID:  id,
		Fingerprint: fingerprint,
		ObservedAt:  observedAt.UTC(),
	}
	s.counter++
	s.hasCounter = true
	return nil
}

// Clone returns a deep copy.
func (s *FingerprintStore) Clone() *FingerprintStore {
	c := &FingerprintStore{
		records:    make(map[string]*FingerprintRecord, len(s.records)),
		counter:    s.counter,
		hasCounter: s.hasCounter,
	}
	for id, rec := range s.records {
		r := *rec
		c.records[id] = &r
	}
	return c
}
