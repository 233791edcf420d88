// Package writelog keeps a bounded, ordered trace of the mutations accepted by the
// storage engine. The log is diagnostic only: it is persisted together with the
// snapshot but never replayed, the snapshot itself is the durable state.
package writelog

import (
	"fmt"
	"time"
)

// DefaultCapacity is the number of records kept when no capacity is configured
const DefaultCapacity = 1000

// --------------------------------------------------------------------------
// Record Types
// --------------------------------------------------------------------------

type Op uint8

const (
	OpPut Op = iota + 1
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the op by name
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an op name
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PUT":
		*o = OpPut
	case "DELETE":
		*o = OpDelete
	default:
		return fmt.Errorf("unknown write log op %q", b)
	}
	return nil
}

// Options are the put options a record was accepted with
type Options struct {
	TTL        time.Duration `json:"ttl,omitempty"`
	Encrypted  bool          `json:"encrypted,omitempty"`
	Compressed bool          `json:"compressed,omitempty"`
}

// Record is one accepted mutation
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Op        Op        `json:"op"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"` // logical value, only set for OpPut
	Options   Options   `json:"options"`
}

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

// Log is a bounded append-only list of records.
// When the capacity is exceeded the oldest records are dropped.
//
// Thread-safety: Log is not thread-safe, the storage engine serializes access.
type Log struct {
	capacity int
	records  []Record
}

// New creates an empty log that keeps at most capacity records
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		records:  make([]Record, 0, min(capacity, 64)),
	}
}

// Append adds a record at the tail and trims the head if necessary
func (l *Log) Append(r Record) {
	l.records = append(l.records, r)
	if over := len(l.records) - l.capacity; over > 0 {
		// help the go gc: do not keep dropped values reachable
		clear(l.records[:over])
		l.records = l.records[over:]
	}
}

// Records returns a copy of all records, oldest first
func (l *Log) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records
func (l *Log) Len() int { return len(l.records) }

// Cap returns the maximum number of records
func (l *Log) Cap() int { return l.capacity }

// Clear drops all records
func (l *Log) Clear() {
	l.records = l.records[:0:0]
}

// Restore replaces the content of the log, keeping only the newest capacity records
func (l *Log) Restore(records []Record) {
	l.Clear()
	if over := len(records) - l.capacity; over > 0 {
		records = records[over:]
	}
	l.records = append(l.records, records...)
}
