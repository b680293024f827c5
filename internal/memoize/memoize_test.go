package memoize_test

import (
	"errors"
	"testing"
	"time"

	"github.com/meadow-ml/meadow/internal/memoize"
)

func TestCache_ComputesOnce(t *testing.T) {
	var c memoize.Cache
	calls := 0

	for i := 0; i < 3; i++ {
		v, err := memoize.Get(&c, "answer", func() (int, error) {
			calls++
			return 42, nil
		})
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != 42 {
			t.Fatalf("Get = %d, want 42", v)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

// A compute callback routinely asks the same cache for another key: a
// lazy tensor's densification computes its evaluation, which computes
// its size. The watchdog turns a lock-ordering regression into a
// failure instead of a hung suite.
func TestCache_NestedGet(t *testing.T) {
	var c memoize.Cache
	done := make(chan struct{})

	var outer int
	var err error
	go func() {
		defer close(done)
		outer, err = memoize.Get(&c, "outer", func() (int, error) {
			inner, innerErr := memoize.Get(&c, "inner", func() (int, error) {
				return 2, nil
			})
			return inner * 3, innerErr
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested Get on one cache did not complete")
	}
	if err != nil {
		t.Fatalf("nested Get: %v", err)
	}
	if outer != 6 {
		t.Fatalf("outer = %d, want 6", outer)
	}
	if v, ok := c.Lookup("inner"); !ok || v.(int) != 2 {
		t.Errorf("inner value not cached: %v, %v", v, ok)
	}
}

func TestCache_KeysAreIndependent(t *testing.T) {
	var c memoize.Cache

	a, _ := memoize.Get(&c, "a", func() (string, error) { return "first", nil })
	b, _ := memoize.Get(&c, "b", func() (string, error) { return "second", nil })
	if a != "first" || b != "second" {
		t.Errorf("got %q, %q", a, b)
	}
}

func TestCache_ErrorNotCached(t *testing.T) {
	var c memoize.Cache
	calls := 0
	boom := errors.New("boom")

	_, err := memoize.Get(&c, "k", func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	v, err := memoize.Get(&c, "k", func() (int, error) {
		calls++
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("retry = %d, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("compute ran %d times, want 2", calls)
	}
}

func TestCache_Lookup(t *testing.T) {
	var c memoize.Cache

	if _, ok := c.Lookup("missing"); ok {
		t.Error("Lookup on empty cache should miss")
	}
	_, _ = memoize.Get(&c, "k", func() (int, error) { return 1, nil })
	if v, ok := c.Lookup("k"); !ok || v.(int) != 1 {
		t.Errorf("Lookup = %v, %v", v, ok)
	}
}

func TestCache_Clear(t *testing.T) {
	var c memoize.Cache
	calls := 0
	compute := func() (int, error) {
		calls++
		return calls, nil
	}

	_, _ = memoize.Get(&c, "k", compute)
	c.Clear()
	v, _ := memoize.Get(&c, "k", compute)
	if v != 2 {
		t.Errorf("after Clear, value = %d, want recomputed 2", v)
	}
}
