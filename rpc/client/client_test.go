package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/batch"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
	"github.com/ValentinKolb/eKV/lib/query"
	"github.com/ValentinKolb/eKV/lib/writelog"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/ValentinKolb/eKV/rpc/server"
)

func newTestClient(t *testing.T) (*Client, db.KVDB) {
	t.Helper()
	opts := cedar.DefaultOptions()
	opts.PersistDebounce = time.Hour
	database := cedar.NewCedarDB(opts)

	ts := httptest.NewServer(server.NewServer(common.ServerConfig{}, database).Handler())

	c, err := NewClient(common.ClientConfig{
		Endpoints:     []string{ts.URL},
		TimeoutSecond: 5,
		RetryCount:    2,
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		c.Close()
		ts.Close()
		database.Close()
	})
	return c, database
}

func TestRoundTrip(t *testing.T) {
	c, database := newTestClient(t)
	ctx := context.Background()

	if err := c.Put(ctx, "user/1", []byte("alice"), db.Options{TTL: time.Minute, Encrypted: true}); err != nil {
		t.Fatal(err)
	}
	if _, ok := database.Lookup("user/1"); !ok {
		t.Fatal("key with a slash was not stored under its name")
	}

	value, err := c.Get(ctx, "user/1", false)
	if err != nil || string(value) != "alice" {
		t.Fatalf("Get = %q, %v", value, err)
	}

	exists, err := c.Exists(ctx, "user/1")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
	exists, err = c.Exists(ctx, "user/2")
	if err != nil || exists {
		t.Errorf("Exists(missing) = %v, %v", exists, err)
	}

	existed, err := c.Delete(ctx, "user/1")
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v", existed, err)
	}
	if _, err := c.Get(ctx, "user/1", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestPutError(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.Put(context.Background(), "k", []byte("v"), db.Options{TTL: -time.Second})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Put with negative ttl error = %v, want status 400", err)
	}
	if statusErr.Message == "" {
		t.Error("server error message was not extracted")
	}
}

func TestQueryAndBatch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Batch(ctx, []batch.Operation{
		{Op: batch.OpPut, Key: "a", Value: batch.ValueOf("1")},
		{Op: batch.OpPut, Key: "b", Value: batch.ValueOf("22")},
		{Op: batch.OpPut, Key: "c", Value: batch.ValueOf("333")},
	})
	if err != nil || !resp.Success {
		t.Fatalf("Batch = %+v, %v", resp, err)
	}

	results, err := c.Query(ctx, query.KindSize, "2")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Key != "c" || results[1].Key != "b" {
		t.Errorf("size query = %v", results)
	}

	resp, err = c.Batch(ctx, []batch.Operation{{Op: "NOPE", Key: "a"}})
	if err != nil {
		t.Fatalf("failed batch returned transport error %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("failed batch response = %+v", resp)
	}
}

func TestExportImportStats(t *testing.T) {
	c, database := newTestClient(t)
	ctx := context.Background()

	database.Put("k", []byte("v"), db.Options{})

	data, err := c.Export(ctx, "plain")
	if err != nil || string(data) != "k = v\n" {
		t.Fatalf("Export = %q, %v", data, err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	result, err := c.Import(ctx, []byte("x = 1\ny = 2\nbroken\n"), "plain")
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 3 || result.Applied != 2 {
		t.Errorf("Import = %+v, want 3 attempted, 2 applied", result)
	}

	if err := c.Persist(ctx); err != nil {
		t.Errorf("Persist = %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil || stats.Keys != 2 {
		t.Errorf("Stats keys = %d, %v", stats.Keys, err)
	}

	records, err := c.Log(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[2].Op != writelog.OpPut || records[2].Key != "y" {
		t.Errorf("Log = %+v", records)
	}
}

func TestSubSecondTTL(t *testing.T) {
	c, database := newTestClient(t)

	before := time.Now()
	if err := c.Put(context.Background(), "short", []byte("v"), db.Options{TTL: 500 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	entry, ok := database.Lookup("short")
	if !ok || entry.ExpiresAt.IsZero() {
		t.Fatalf("entry = %+v, want an expiry", entry)
	}
	if entry.ExpiresAt.After(before.Add(2 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want about one second after %v", entry.ExpiresAt, before)
	}
}

func TestTTLSeconds(t *testing.T) {
	for _, tc := range []struct {
		ttl  time.Duration
		want int64
	}{
		{time.Minute, 60},
		{1500 * time.Millisecond, 2},
		{time.Millisecond, 1},
		{-time.Millisecond, -1},
		{-2 * time.Second, -2},
	} {
		if got := ttlSeconds(tc.ttl); got != tc.want {
			t.Errorf("ttlSeconds(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewClient(common.ClientConfig{}); err == nil {
		t.Error("client without endpoints was created")
	}
	c, err := NewClient(common.ClientConfig{Endpoints: []string{"localhost:1"}, TimeoutSecond: 1})
	if err != nil {
		t.Fatal(err)
	}
	if c.endpoints[0].Scheme != "http" {
		t.Errorf("scheme = %q, want http", c.endpoints[0].Scheme)
	}
}
