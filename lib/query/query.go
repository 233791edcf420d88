package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("query")

// DefaultSizeLimit is the number of keys returned by a size query without an explicit limit
const DefaultSizeLimit = 10

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Source is the key space a query engine scans. db.KVDB implements it.
type Source interface {
	Range(fn func(key string, entry db.Entry) bool)
}

// Kind selects the query type of an advanced query
type Kind string

const (
	KindPrefix Kind = "prefix"
	KindRegex  Kind = "regex"
	KindRange  Kind = "range"
	KindSize   Kind = "size"
)

// SizeResult is a key together with the byte length of its stored value
type SizeResult struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// HistoryEntry records one advanced query
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Pattern   string    `json:"pattern"`
	Results   int       `json:"results"`
	Error     string    `json:"error,omitempty"`
}

// Engine runs read-only queries over a Source.
// Keys that are expired but not yet collected are included in all results.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	source       Source
	clock        func() time.Time
	historyLimit int

	mu      sync.Mutex
	history []HistoryEntry
}

// Option configures an Engine
type Option func(*Engine)

// WithHistoryLimit keeps only the newest n history entries (n <= 0 = unbounded)
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithClock sets the time source for history timestamps
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New creates a query engine over source
func New(source Source, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// PrefixSearch returns all keys starting with prefix in ascending order
func (e *Engine) PrefixSearch(prefix string) []string {
	return keysOf(e.scan(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}))
}

// RegexSearch returns all keys matched anywhere by pattern in ascending order.
// Use ^ and $ to anchor the pattern.
func (e *Engine) RegexSearch(pattern string) ([]string, error) {
	results, err := e.regex(pattern)
	if err != nil {
		return nil, err
	}
	return keysOf(results), nil
}

// RangeQuery returns all keys k with start <= k <= end in ascending order
func (e *Engine) RangeQuery(start, end string) []string {
	return keysOf(e.keyRange(start, end))
}

// KeysBySize returns up to limit keys ordered by stored value size, largest first.
// Keys of equal size are ordered ascending.
func (e *Engine) KeysBySize(limit int) []SizeResult {
	if limit <= 0 {
		return []SizeResult{}
	}

	results := e.scan(func(string) bool { return true })
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Size > results[j].Size
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Advanced dispatches to one of the queries by kind and records the call in the history.
// The pattern of a range query is "start,end", the pattern of a size query is the limit
// (empty = DefaultSizeLimit). An unknown kind yields an empty result.
func (e *Engine) Advanced(kind Kind, pattern string) ([]SizeResult, error) {
	var (
		results []SizeResult
		err     error
	)

	switch Kind(strings.ToLower(string(kind))) {
	case KindPrefix:
		results = e.scan(func(key string) bool { return strings.HasPrefix(key, pattern) })
	case KindRegex:
		results, err = e.regex(pattern)
	case KindRange:
		start, end, ok := strings.Cut(pattern, ",")
		if !ok {
			err = db.NewError(db.RetCInvalidArgument, fmt.Sprintf("range pattern %q must be \"start,end\"", pattern))
			break
		}
		results = e.keyRange(strings.TrimSpace(start), strings.TrimSpace(end))
	case KindSize:
		limit := DefaultSizeLimit
		if p := strings.TrimSpace(pattern); p != "" {
			if limit, err = strconv.Atoi(p); err != nil {
				err = db.WrapError(db.RetCInvalidArgument, fmt.Sprintf("size limit %q", pattern), err)
				break
			}
		}
		results = e.KeysBySize(limit)
	default:
		log.Debugf("unknown query kind %q", kind)
	}

	if results == nil {
		results = []SizeResult{}
	}
	e.record(kind, pattern, len(results), err)

	if err != nil {
		return nil, err
	}
	return results, nil
}

// History returns a copy of the advanced query history, oldest first
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory removes all history entries
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// scan collects all keys accepted by match, sorted ascending
func (e *Engine) scan(match func(key string) bool) []SizeResult {
	results := []SizeResult{}
	e.source.Range(func(key string, entry db.Entry) bool {
		if match(key) {
			results = append(results, SizeResult{Key: key, Size: len(entry.Value)})
		}
		return true
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results
}

func (e *Engine) regex(pattern string) ([]SizeResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, db.WrapError(db.RetCInvalidArgument, fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	return e.scan(re.MatchString), nil
}

func (e *Engine) keyRange(start, end string) []SizeResult {
	return e.scan(func(key string) bool { return start <= key && key <= end })
}

func (e *Engine) record(kind Kind, pattern string, results int, err error) {
	entry := HistoryEntry{
		Timestamp: e.clock(),
		Kind:      kind,
		Pattern:   pattern,
		Results:   results,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, entry)
	if e.historyLimit > 0 && len(e.history) > e.historyLimit {
		e.history = append(e.history[:0], e.history[len(e.history)-e.historyLimit:]...)
	}
}

func keysOf(results []SizeResult) []string {
	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	return keys
}
