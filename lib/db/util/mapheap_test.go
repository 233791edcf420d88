package util

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, k := range []string{"a", "b", "c"} {
		if !mh.Contains(k) {
			t.Errorf("Heap should contain key %s", k)
		}
	}

	it, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}

	if it.Key != "c" || it.Priority != 50 {
		t.Errorf("Expected min item to be (c,50), got %s", it)
	}
}

// TestReschedule tests that adding an existing key replaces its deadline
func TestReschedule(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("session", 100)
	mh.AddItem("other", 200)

	// extend the deadline of session
	mh.AddItem("session", 300)

	if mh.Len() != 2 {
		t.Fatalf("Rescheduling must not add a second item, heap has %d items", mh.Len())
	}

	it, _ := mh.GetByKey("session")
	if it.Priority != 300 {
		t.Errorf("Expected priority 300, got %d", it.Priority)
	}

	min, _ := mh.Peek()
	if min.Key != "other" {
		t.Errorf("Min item should now be other, got %s", min.Key)
	}

	// shorten it again
	mh.AddItem("session", 50)
	min, _ = mh.Peek()
	if min.Key != "session" || min.Priority != 50 {
		t.Errorf("Min item should now be (session,50), got %s", min)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	priority, exists := mh.RemoveByKey("b")
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if priority != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", priority)
	}

	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}

	if mh.Contains("b") {
		t.Error("Heap should not contain key b after removal")
	}

	if _, exists = mh.RemoveByKey("missing"); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in correct order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()

	priorities := rand.Perm(100)
	for i, p := range priorities {
		mh.AddItem(fmt.Sprintf("key-%d", i), int64(p))
	}

	sorted := make([]int, len(priorities))
	copy(sorted, priorities)
	sort.Ints(sorted)

	for i, expected := range sorted {
		it, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items", i)
		}
		if it.Priority != int64(expected) {
			t.Errorf("Pop %d: expected priority %d, got %d", i, expected, it.Priority)
		}
		if mh.Contains(it.Key) {
			t.Errorf("Popped key %s is still addressable", it.Key)
		}
	}

	if _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return false")
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

func TestClear(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 1)
	mh.AddItem("b", 2)

	mh.Clear()

	if mh.Len() != 0 || mh.Contains("a") {
		t.Error("Heap should be empty after Clear")
	}

	mh.AddItem("c", 3)
	if it, _ := mh.Peek(); it.Key != "c" {
		t.Errorf("Expected c after Clear and AddItem, got %s", it.Key)
	}
}
