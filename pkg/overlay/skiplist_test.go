package overlay

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestOverlayBasicOperations(t *testing.T) {
	o := New()

	o.Put("t1", []byte("key1"), []byte("value1"))
	o.Put("t1", []byte("key2"), []byte("value2"))
	o.Put("t2", []byte("key1"), []byte("other"))

	v, ok := o.Get("t1", []byte("key2"))
	if !ok {
		t.Fatalf("expected to find key2")
	}
	if string(v.Bytes()) != "value2" {
		t.Errorf("expected value2, got %q", v.Bytes())
	}

	v, ok = o.Get("t2", []byte("key1"))
	if !ok || string(v.Bytes()) != "other" {
		t.Errorf("expected table t2 to keep its own key1, got %q (found=%v)", v.Bytes(), ok)
	}

	if _, ok := o.Get("t1", []byte("key3")); ok {
		t.Errorf("expected key3 to be absent")
	}
	if _, ok := o.Get("t3", []byte("key1")); ok {
		t.Errorf("expected table t3 to be empty")
	}

	if o.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", o.Len())
	}
}

func TestOverlayReplaceKeepsOneEntry(t *testing.T) {
	o := New()

	o.Put("t", []byte("k"), []byte("v1"))
	o.Put("t", []byte("k"), []byte("v2"))
	if o.Len() != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", o.Len())
	}
	v, _ := o.Get("t", []byte("k"))
	if string(v.Bytes()) != "v2" {
		t.Errorf("expected latest value v2, got %q", v.Bytes())
	}

	o.Delete("t", []byte("k"))
	if o.Len() != 1 {
		t.Fatalf("expected 1 entry after delete, got %d", o.Len())
	}
	v, ok := o.Get("t", []byte("k"))
	if !ok || !v.IsTombstone() {
		t.Errorf("expected a tombstone, got %v (found=%v)", v.Kind(), ok)
	}

	o.Put("t", []byte("k"), []byte("v3"))
	v, _ = o.Get("t", []byte("k"))
	if v.IsTombstone() || string(v.Bytes()) != "v3" {
		t.Errorf("expected v3 to replace the tombstone, got %v %q", v.Kind(), v.Bytes())
	}
}

func TestOverlayEmptyValueIsNotTombstone(t *testing.T) {
	o := New()
	o.Put("t", []byte("empty"), nil)
	o.Put("t", []byte("blank"), []byte{})
	o.Delete("t", []byte("gone"))

	for _, key := range []string{"empty", "blank"} {
		v, ok := o.Get("t", []byte(key))
		if !ok {
			t.Fatalf("expected %s to be present", key)
		}
		if v.IsTombstone() {
			t.Errorf("expected %s to hold an empty value, not a tombstone", key)
		}
		if v.Kind() != KindValue {
			t.Errorf("expected kind value for %s, got %v", key, v.Kind())
		}
	}

	v, _ := o.Get("t", []byte("gone"))
	if !v.IsTombstone() || v.Bytes() != nil {
		t.Errorf("expected tombstone without payload")
	}
}

func TestOverlayCopiesInput(t *testing.T) {
	o := New()
	key := []byte("key")
	value := []byte("value")
	o.Put("t", key, value)

	key[0] = 'X'
	value[0] = 'X'

	v, ok := o.Get("t", []byte("key"))
	if !ok {
		t.Fatalf("expected key to survive caller mutation")
	}
	if string(v.Bytes()) != "value" {
		t.Errorf("expected value to survive caller mutation, got %q", v.Bytes())
	}
}

func TestOverlayOrdering(t *testing.T) {
	o := New()
	inserts := []struct{ table, key string }{
		{"b", "2"}, {"a", "9"}, {"b", "1"}, {"a", "10"}, {"c", ""}, {"a", "1"},
	}
	for _, in := range inserts {
		o.Put(in.table, []byte(in.key), []byte(in.table+in.key))
	}

	expected := []Key{
		{"a", []byte("1")}, {"a", []byte("10")}, {"a", []byte("9")},
		{"b", []byte("1")}, {"b", []byte("2")}, {"c", []byte("")},
	}

	it := o.NewIterator()
	it.SeekToFirst()
	i := 0
	for ; it.Valid(); it.Next() {
		if i >= len(expected) {
			t.Fatalf("iterator returned more entries than expected")
		}
		if Compare(it.Key(), expected[i]) != 0 {
			t.Errorf("entry %d: expected %s/%s, got %s/%s", i,
				expected[i].Table, expected[i].Key, it.Key().Table, it.Key().Key)
		}
		i++
	}
	if i != len(expected) {
		t.Errorf("expected %d entries, got %d", len(expected), i)
	}
}

func TestOverlayRange(t *testing.T) {
	o := New()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		o.Put("t", []byte(k), []byte(k))
	}
	o.Delete("t", []byte("c"))
	o.Put("s", []byte("c"), []byte("other table"))
	o.Put("u", []byte("a"), []byte("other table"))

	tests := []struct {
		name       string
		start, end []byte
		expected   []string
	}{
		{"full", []byte("a"), []byte("f"), []string{"a", "b", "c", "d", "e"}},
		{"inner", []byte("b"), []byte("d"), []string{"b", "c"}},
		{"end exclusive", []byte("a"), []byte("a"), nil},
		{"open end", []byte("d"), nil, []string{"d", "e"}},
		{"open start", nil, []byte("b"), []string{"a"}},
		{"past end", []byte("x"), []byte("z"), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for it := o.Range("t", tc.start, tc.end); it.Valid(); it.Next() {
				if it.Key().Table != "t" {
					t.Fatalf("range leaked into table %s", it.Key().Table)
				}
				got = append(got, string(it.Key().Key))
			}
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("position %d: expected %s, got %s", i, tc.expected[i], got[i])
				}
			}
		})
	}

	it := o.Range("t", []byte("c"), []byte("d"))
	if !it.Valid() || !it.IsTombstone() {
		t.Errorf("expected range iterator to surface the tombstone for c")
	}
}

func TestOverlayClear(t *testing.T) {
	o := New()
	for i := 0; i < 100; i++ {
		o.Put("t", []byte(fmt.Sprintf("key%03d", i)), []byte("v"))
	}
	if o.ApproximateSize() <= 0 {
		t.Errorf("expected positive approximate size")
	}

	o.Clear()

	if o.Len() != 0 {
		t.Errorf("expected empty overlay, got %d entries", o.Len())
	}
	if o.ApproximateSize() != 0 {
		t.Errorf("expected zero size, got %d", o.ApproximateSize())
	}
	if _, ok := o.Get("t", []byte("key050")); ok {
		t.Errorf("expected key050 to be gone after Clear")
	}
	it := o.NewIterator()
	it.SeekToFirst()
	if it.Valid() {
		t.Errorf("expected no entries after Clear")
	}

	o.Put("t", []byte("again"), []byte("v"))
	if v, ok := o.Get("t", []byte("again")); !ok || string(v.Bytes()) != "v" {
		t.Errorf("expected overlay to be usable after Clear")
	}
}

func TestOverlayConcurrentReadWrite(t *testing.T) {
	o := New()
	const writers = 4
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := []byte(fmt.Sprintf("w%d-%04d", w, i))
				if i%5 == 0 {
					o.Delete("t", key)
				} else {
					o.Put("t", key, key)
				}
			}
		}(w)
	}

	// Scans run alongside the writers and must always see sorted keys
	done := make(chan struct{})
	go func() {
		defer close(done)
		for round := 0; round < 50; round++ {
			var last []byte
			for it := o.Range("t", nil, nil); it.Valid(); it.Next() {
				k := it.Key().Key
				if last != nil && bytes.Compare(last, k) >= 0 {
					t.Errorf("scan out of order: %q then %q", last, k)
					return
				}
				last = k
			}
		}
	}()

	wg.Wait()
	<-done

	if o.Len() != writers*perWriter {
		t.Errorf("expected %d entries, got %d", writers*perWriter, o.Len())
	}
	v, ok := o.Get("t", []byte("w2-0005"))
	if !ok || !v.IsTombstone() {
		t.Errorf("expected tombstone for w2-0005")
	}
	v, ok = o.Get("t", []byte("w3-0007"))
	if !ok || string(v.Bytes()) != "w3-0007" {
		t.Errorf("expected value for w3-0007, got %q", v.Bytes())
	}
}
