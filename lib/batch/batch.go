package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("batch")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// OpKind is the type of a batch operation
type OpKind string

const (
	OpPut    OpKind = "PUT"
	OpGet    OpKind = "GET"
	OpDelete OpKind = "DELETE"
	OpExists OpKind = "EXISTS"
)

// Operation is one step of a batch.
// Value, TTL, Encrypted and Compressed are only used by PUT.
// A nil Value (no "value" in JSON) is absent, a PUT without value fails.
type Operation struct {
	Op         OpKind  `json:"op"`
	Key        string  `json:"key"`
	Value      *string `json:"value,omitempty"`
	TTL        int64   `json:"ttl,omitempty"` // seconds, 0 = no expiry
	Encrypted  bool    `json:"encrypted,omitempty"`
	Compressed bool    `json:"compressed,omitempty"`
}

// ValueOf returns a pointer to value for use in Operation.Value
func ValueOf(value string) *string {
	return &value
}

// Result is the outcome of one applied operation.
// Found reports the value presence for GET and EXISTS and whether the key existed for DELETE.
type Result struct {
	Op      OpKind        `json:"op"`
	Key     string        `json:"key"`
	Success bool          `json:"success"`
	Found   bool          `json:"found,omitempty"`
	Value   string        `json:"value,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Response is the outcome of a whole batch.
// On failure Results holds the applied operations followed by the failed one.
type Response struct {
	Success    bool     `json:"success"`
	Results    []Result `json:"results"`
	Error      string   `json:"error,omitempty"`
	RolledBack bool     `json:"rolled_back,omitempty"`
}

// --------------------------------------------------------------------------
// Executor
// --------------------------------------------------------------------------

// Executor applies batches against a database
type Executor struct {
	database db.KVDB
	rollback bool
}

// Option configures an Executor
type Option func(*Executor)

// WithRollback restores the previous state of every mutated key if an operation fails.
// Without it, operations before the failing one stay applied.
func WithRollback() Option {
	return func(e *Executor) { e.rollback = true }
}

// New creates an executor for database
func New(database db.KVDB, opts ...Option) *Executor {
	e := &Executor{database: database}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// savedState is the state of a key before the batch first mutated it
type savedState struct {
	key   string
	entry db.Entry
	found bool
}

// Execute applies ops strictly in order. The first failing operation stops the batch.
//
// Thread-safety: operations of concurrent batches may interleave, a batch is not isolated.
func (e *Executor) Execute(ops []Operation) Response {
	resp := Response{Success: true, Results: make([]Result, 0, len(ops))}

	var saved []savedState
	captured := make(map[string]struct{})

	for i, op := range ops {
		kind := OpKind(strings.ToUpper(string(op.Op)))

		if e.rollback && (kind == OpPut || kind == OpDelete) && op.Key != "" {
			if _, ok := captured[op.Key]; !ok {
				captured[op.Key] = struct{}{}
				entry, found := e.database.Lookup(op.Key)
				saved = append(saved, savedState{key: op.Key, entry: entry, found: found})
			}
		}

		result, err := e.apply(kind, op)
		if err != nil {
			result.Error = err.Error()
			resp.Results = append(resp.Results, result)
			resp.Success = false
			resp.Error = fmt.Sprintf("operation %d (%s %q): %v", i, op.Op, op.Key, err)
			log.Warningf("batch stopped at operation %d of %d: %v", i+1, len(ops), err)

			if e.rollback {
				e.restore(saved)
				resp.RolledBack = true
			}
			return resp
		}
		resp.Results = append(resp.Results, result)
	}

	return resp
}

func (e *Executor) apply(kind OpKind, op Operation) (Result, error) {
	result := Result{Op: kind, Key: op.Key}

	if op.Key == "" {
		return result, db.NewError(db.RetCInvalidArgument, "key must not be empty")
	}

	switch kind {
	case OpPut:
		if op.Value == nil {
			return result, db.NewError(db.RetCInvalidArgument, "value must not be absent")
		}
		if op.TTL < 0 {
			return result, db.NewError(db.RetCInvalidArgument, "ttl must not be negative")
		}
		ttl, err := db.TTLFromSeconds(op.TTL)
		if err != nil {
			return result, err
		}
		latency, err := e.database.Put(op.Key, []byte(*op.Value), db.Options{
			TTL:        ttl,
			Encrypted:  op.Encrypted,
			Compressed: op.Compressed,
		})
		if err != nil {
			return result, err
		}
		result.Latency = latency
	case OpGet:
		value, found := e.database.Get(op.Key)
		result.Found = found
		result.Value = string(value)
	case OpDelete:
		result.Found = e.database.Delete(op.Key)
	case OpExists:
		result.Found = e.database.Exists(op.Key)
	default:
		return result, db.NewError(db.RetCInvalidArgument, fmt.Sprintf("unknown operation %q", op.Op))
	}

	result.Success = true
	return result, nil
}

// restore writes the saved states back in reverse order
func (e *Executor) restore(saved []savedState) {
	for i := len(saved) - 1; i >= 0; i-- {
		u := saved[i]
		if u.found {
			e.database.Restore(u.key, u.entry)
		} else {
			e.database.Delete(u.key)
		}
	}
	log.Infof("rolled back %d keys", len(saved))
}
