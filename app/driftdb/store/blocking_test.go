package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type popResult struct {
	val string
	ok  bool
	err error
}

func startBLPop(s *Store, key string, timeout time.Duration, cancel <-chan struct{}) <-chan popResult {
	done := make(chan popResult, 1)
	go func() {
		val, ok, err := s.BLPop(key, timeout, cancel)
		done <- popResult{val, ok, err}
	}()
	return done
}

// waitForWaiters blocks until key has n registered waiters.
func waitForWaiters(t *testing.T, s *Store, key string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := len(s.waiters[key])
		s.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never saw %d waiters on %q", n, key)
}

func TestBLPopImmediate(t *testing.T) {
	s := New()
	_, err := s.RPush("q", []string{"x"})
	require.NoError(t, err)

	val, ok, err := s.BLPop("q", time.Second, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", val)
	assert.Equal(t, "none", s.Type("q"))
}

func TestBLPopWake(t *testing.T) {
	s := New()
	done := startBLPop(s, "q", 0, nil)
	waitForWaiters(t, s, "q", 1)

	n, err := s.RPush("q", []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.True(t, res.ok)
		assert.Equal(t, "hello", res.val)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke up")
	}

	// the pushed element went to the waiter, not the list
	llen, err := s.LLen("q")
	require.NoError(t, err)
	assert.Equal(t, 0, llen)
}

func TestBLPopTimeout(t *testing.T) {
	s := New()
	started := time.Now()
	val, ok, err := s.BLPop("q", 100*time.Millisecond, nil)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)

	// timed-out waiters must not linger
	s.mu.Lock()
	assert.Empty(t, s.waiters["q"])
	s.mu.Unlock()
}

func TestBLPopFIFO(t *testing.T) {
	s := New()
	first := startBLPop(s, "q", 0, nil)
	waitForWaiters(t, s, "q", 1)
	second := startBLPop(s, "q", 0, nil)
	waitForWaiters(t, s, "q", 2)

	_, err := s.RPush("q", []string{"one"})
	require.NoError(t, err)

	select {
	case res := <-first:
		assert.Equal(t, "one", res.val)
	case <-time.After(2 * time.Second):
		t.Fatal("first waiter never woke up")
	}
	select {
	case <-second:
		t.Fatal("second waiter woke without an element")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = s.RPush("q", []string{"two"})
	require.NoError(t, err)
	select {
	case res := <-second:
		assert.Equal(t, "two", res.val)
	case <-time.After(2 * time.Second):
		t.Fatal("second waiter never woke up")
	}
}

func TestBLPopCancel(t *testing.T) {
	s := New()
	cancel := make(chan struct{})
	done := startBLPop(s, "q", 0, cancel)
	waitForWaiters(t, s, "q", 1)

	close(cancel)
	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled waiter never returned")
	}

	s.mu.Lock()
	assert.Empty(t, s.waiters["q"])
	s.mu.Unlock()
}

func TestBLPopWrongType(t *testing.T) {
	s := New()
	s.Set("q", "v", 0)
	_, _, err := s.BLPop("q", time.Second, nil)
	assert.ErrorIs(t, err, ErrWrongType)
}

// A waiter that loses the race re-arms instead of returning empty-handed.
func TestBLPopLoserRearms(t *testing.T) {
	s := New()
	done := startBLPop(s, "q", 0, nil)
	waitForWaiters(t, s, "q", 1)

	// Steal the element before the woken waiter can re-acquire the lock.
	// Holding the lock across push and pop makes the steal deterministic.
	s.mu.Lock()
	e := &entry{kind: kindList, list: []string{"stolen"}}
	s.data["q"] = e
	s.wakeFirstLocked("q")
	e.list = nil
	delete(s.data, "q")
	s.mu.Unlock()

	waitForWaiters(t, s, "q", 1)

	_, err := s.RPush("q", []string{"real"})
	require.NoError(t, err)
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "real", res.val)
	case <-time.After(2 * time.Second):
		t.Fatal("re-armed waiter never woke up")
	}
}
