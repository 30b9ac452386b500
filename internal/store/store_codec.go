package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const indent = "    "

type persistedRecord struct {
	Checksum  string `json:"checksum"`
	Timestamp string `json:"timestamp"`
}

// MarshalJSON writes the counter first, then documents ordered by id.
func (s *FingerprintStore) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	counter, err := json.Marshal(s.counter)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"` + CounterKey + `":`)
	buf.Write(counter)

	for _, id := range s.IDs() {
		rec := s.records[id]
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(persistedRecord{
			Checksum:  rec.Fingerprint,
			Timestamp: rec.ObservedAt.UTC().Format(TimestampFormat),
		})
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the persisted form. Any deviation from it is ErrStoreCorrupt.
func (s *FingerprintStore) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: not an object", ErrStoreCorrupt)
	}

	decoded := &FingerprintStore{
		records: make(map[string]*FingerprintRecord, len(raw)),
	}

	for key, value := range raw {
		if key == CounterKey {
			if err := json.Unmarshal(value, &decoded.counter); err != nil {
				return fmt.Errorf("%w: counter: %v", ErrStoreCorrupt, err)
			}
			decoded.hasCounter = true
			continue
		}

		var rec persistedRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrStoreCorrupt, key, err)
		}
		if rec.Checksum == "" {
			return fmt.Errorf("%w: entry %q: missing checksum", ErrStoreCorrupt, key)
		}
		observedAt, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return fmt.Errorf("%w: entry %q: timestamp: %v", ErrStoreCorrupt, key, err)
		}

		decoded.records[key] = &FingerprintRecord{
			DocumentID:  key,
			Fingerprint: rec.Checksum,
			ObservedAt:  observedAt.UTC(),
		}
	}

	*s = *decoded
	return nil
}

// Encode returns the indented persisted form.
func Encode(s *FingerprintStore) ([]byte, error) {
	compact, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode parses the persisted form.
func Decode(data []byte) (*FingerprintStore, error) {
	s := &FingerprintStore{}
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}
