package cache

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
)

func entry(v string) db.Entry {
	return db.Entry{Value: []byte(v)}
}

// TestFIFOEviction tests that the first inserted key is evicted even if it was read last
func TestFIFOEviction(t *testing.T) {
	c := New(3, PolicyFIFO)

	for i := 0; i < 3; i++ {
		c.Insert(fmt.Sprintf("k%d", i), entry("v"))
	}

	// reading k0 must not protect it
	if _, ok := c.Lookup("k0"); !ok {
		t.Fatal("Expected k0 to be cached")
	}

	evicted, ok := c.Insert("k3", entry("v"))
	if !ok || evicted != "k0" {
		t.Errorf("Expected k0 to be evicted, got %q (ok=%v)", evicted, ok)
	}

	if c.Len() != 3 {
		t.Errorf("Expected 3 cached keys, got %d", c.Len())
	}
	if _, ok := c.Lookup("k0"); ok {
		t.Error("k0 should not be cached anymore")
	}
	if !reflect.DeepEqual(c.Keys(), []string{"k1", "k2", "k3"}) {
		t.Errorf("Unexpected eviction order %v", c.Keys())
	}
}

// TestCapacityPlusOne inserts C+1 keys into a default sized cache
func TestCapacityPlusOne(t *testing.T) {
	c := New(0, "")
	if c.Cap() != DefaultCapacity {
		t.Fatalf("Expected default capacity %d, got %d", DefaultCapacity, c.Cap())
	}

	for i := 0; i <= DefaultCapacity; i++ {
		c.Insert(fmt.Sprintf("key-%d", i), entry("v"))
	}

	if c.Len() != DefaultCapacity {
		t.Errorf("Expected %d keys, got %d", DefaultCapacity, c.Len())
	}
	if _, ok := c.Lookup("key-0"); ok {
		t.Error("The first inserted key should have been evicted")
	}
	if _, ok := c.Lookup(fmt.Sprintf("key-%d", DefaultCapacity)); !ok {
		t.Error("The last inserted key should be cached")
	}
}

func TestReplaceKeepsPosition(t *testing.T) {
	c := New(2, PolicyFIFO)
	c.Insert("a", entry("1"))
	c.Insert("b", entry("2"))
	c.Insert("a", entry("3"))

	got, _ := c.Lookup("a")
	if string(got.Value) != "3" {
		t.Errorf("Expected replaced value 3, got %s", got.Value)
	}

	if evicted, _ := c.Insert("c", entry("4")); evicted != "a" {
		t.Errorf("Expected a to be evicted, got %q", evicted)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, PolicyLRU)
	c.Insert("a", entry("1"))
	c.Insert("b", entry("2"))
	c.Lookup("a")

	if evicted, _ := c.Insert("c", entry("3")); evicted != "b" {
		t.Errorf("Expected b to be evicted, got %q", evicted)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c := New(2, PolicyFIFO)
	c.Insert("a", entry("1"))

	if !c.Invalidate("a") {
		t.Error("Expected Invalidate to report a cached key")
	}
	if c.Invalidate("a") {
		t.Error("Expected second Invalidate to report a miss")
	}

	c.Insert("a", entry("1"))
	c.Insert("b", entry("2"))
	c.Clear()
	if c.Len() != 0 || len(c.Keys()) != 0 {
		t.Errorf("Expected empty cache after Clear, got %d keys", c.Len())
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("LRU"); err != nil || p != PolicyLRU {
		t.Errorf("ParsePolicy(LRU) = %v, %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != PolicyFIFO {
		t.Errorf("ParsePolicy('') = %v, %v", p, err)
	}
	if _, err := ParsePolicy("random"); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
}
