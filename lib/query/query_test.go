package query

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
)

// mapSource is a Source backed by a plain map (key -> stored value size)
type mapSource map[string]int

func (m mapSource) Range(fn func(key string, entry db.Entry) bool) {
	for k, size := range m {
		if !fn(k, db.Entry{Value: make([]byte, size)}) {
			return
		}
	}
}

func equalKeys(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestPrefixSearch(t *testing.T) {
	e := New(mapSource{"user:1": 1, "user:2": 1, "session:1": 1, "use": 1})

	if got := e.PrefixSearch("user:"); !equalKeys(got, []string{"user:1", "user:2"}) {
		t.Errorf("PrefixSearch(user:) = %v", got)
	}
	if got := e.PrefixSearch(""); len(got) != 4 {
		t.Errorf("empty prefix should match all keys, got %v", got)
	}
	if got := e.PrefixSearch("nope"); got == nil || len(got) != 0 {
		t.Errorf("PrefixSearch(nope) = %#v, want empty slice", got)
	}
}

func TestRegexSearch(t *testing.T) {
	e := New(mapSource{"order-17": 1, "order-x": 1, "reorder-2": 1})

	got, err := e.RegexSearch(`order-\d+`)
	if err != nil {
		t.Fatal(err)
	}
	if !equalKeys(got, []string{"order-17", "reorder-2"}) {
		t.Errorf("unanchored search = %v", got)
	}

	got, _ = e.RegexSearch(`^order-\d+$`)
	if !equalKeys(got, []string{"order-17"}) {
		t.Errorf("anchored search = %v", got)
	}

	if _, err := e.RegexSearch(`order-(`); !db.IsCode(err, db.RetCInvalidArgument) {
		t.Errorf("invalid pattern error = %v, want invalid argument", err)
	}
}

func TestRangeQuery(t *testing.T) {
	e := New(mapSource{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1})

	if got := e.RangeQuery("b", "d"); !equalKeys(got, []string{"b", "c", "d"}) {
		t.Errorf("RangeQuery(b, d) = %v, want [b c d]", got)
	}
	if got := e.RangeQuery("d", "b"); len(got) != 0 {
		t.Errorf("inverted range = %v, want empty", got)
	}
	if got := e.RangeQuery("c", "c"); !equalKeys(got, []string{"c"}) {
		t.Errorf("single key range = %v", got)
	}
}

func TestKeysBySize(t *testing.T) {
	e := New(mapSource{"small": 10, "large": 50, "medium": 30})

	got := e.KeysBySize(2)
	want := []SizeResult{{Key: "large", Size: 50}, {Key: "medium", Size: 30}}
	if len(got) != len(want) {
		t.Fatalf("KeysBySize(2) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("KeysBySize(2)[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := e.KeysBySize(0); len(got) != 0 {
		t.Errorf("KeysBySize(0) = %v, want empty", got)
	}
	if got := e.KeysBySize(100); len(got) != 3 {
		t.Errorf("KeysBySize(100) returned %d results, want 3", len(got))
	}
}

func TestKeysBySizeTies(t *testing.T) {
	e := New(mapSource{"c": 5, "a": 5, "b": 5, "z": 9})

	got := e.KeysBySize(4)
	keys := make([]string, len(got))
	for i, r := range got {
		keys[i] = r.Key
	}
	if !equalKeys(keys, []string{"z", "a", "b", "c"}) {
		t.Errorf("KeysBySize ties = %v, want [z a b c]", keys)
	}
}

func TestAdvanced(t *testing.T) {
	src := mapSource{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	e := New(src)

	tests := []struct {
		kind    Kind
		pattern string
		want    []string
		wantErr bool
	}{
		{KindPrefix, "a", []string{"a"}, false},
		{KindRegex, "[bd]", []string{"b", "d"}, false},
		{KindRange, "b,d", []string{"b", "c", "d"}, false},
		{KindRange, " b , c ", []string{"b", "c"}, false},
		{KindSize, "2", []string{"e", "d"}, false},
		{KindSize, "", []string{"e", "d", "c", "b", "a"}, false},
		{"RANGE", "a,b", []string{"a", "b"}, false},
		{"unknown", "x", []string{}, false},
		{KindRange, "bd", nil, true},
		{KindSize, "many", nil, true},
		{KindRegex, "(", nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.pattern, func(t *testing.T) {
			got, err := e.Advanced(tt.kind, tt.pattern)
			if tt.wantErr {
				if !db.IsCode(err, db.RetCInvalidArgument) {
					t.Fatalf("Advanced(%q, %q) error = %v, want invalid argument", tt.kind, tt.pattern, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Advanced(%q, %q) failed: %v", tt.kind, tt.pattern, err)
			}
			keys := make([]string, len(got))
			for i, r := range got {
				keys[i] = r.Key
				if r.Size != src[r.Key] {
					t.Errorf("size of %q = %d, want %d", r.Key, r.Size, src[r.Key])
				}
			}
			if !equalKeys(keys, tt.want) {
				t.Errorf("Advanced(%q, %q) = %v, want %v", tt.kind, tt.pattern, keys, tt.want)
			}
		})
	}

	if got := len(e.History()); got != len(tests) {
		t.Errorf("history holds %d entries, want %d", got, len(tests))
	}
}

func TestHistory(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(mapSource{"a": 1}, WithClock(func() time.Time { return now }), WithHistoryLimit(2))

	e.Advanced(KindPrefix, "a")
	e.Advanced(KindRegex, "(")
	e.Advanced(KindSize, "1")

	history := e.History()
	if len(history) != 2 {
		t.Fatalf("history holds %d entries, want 2", len(history))
	}
	if history[0].Kind != KindRegex || history[0].Error == "" {
		t.Errorf("oldest kept entry = %+v, want the failed regex query", history[0])
	}
	if history[1].Kind != KindSize || history[1].Results != 1 || !history[1].Timestamp.Equal(now) {
		t.Errorf("newest entry = %+v", history[1])
	}

	// non-advanced queries are not recorded
	e.PrefixSearch("a")
	if len(e.History()) != 2 {
		t.Error("PrefixSearch was recorded in the history")
	}

	e.ClearHistory()
	if len(e.History()) != 0 {
		t.Error("ClearHistory left entries behind")
	}
}

func TestUnboundedHistory(t *testing.T) {
	e := New(mapSource{})
	for i := 0; i < 500; i++ {
		e.Advanced(KindPrefix, "")
	}
	if got := len(e.History()); got != 500 {
		t.Errorf("history holds %d entries, want 500", got)
	}
}

func TestEngineSource(t *testing.T) {
	opts := cedar.DefaultOptions()
	opts.BlobStore = nil
	database := cedar.NewCedarDB(opts)
	defer database.Close()

	database.Put("k1", []byte("v"), db.Options{})
	database.Put("k2", []byte("aaaaaaaa"), db.Options{Compressed: true})
	database.Put("k3", []byte("vvv"), db.Options{Encrypted: true})

	e := New(database)
	if got := e.PrefixSearch("k"); !equalKeys(got, []string{"k1", "k2", "k3"}) {
		t.Errorf("PrefixSearch(k) = %v", got)
	}

	// sizes are measured on the stored payload
	got := e.KeysBySize(3)
	if got[0].Key != "k3" || got[len(got)-1].Key != "k1" {
		t.Errorf("KeysBySize(3) = %v", got)
	}
}
