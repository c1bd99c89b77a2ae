package threadutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerHaltStopsGoroutine(t *testing.T) {
	w := NewWorker()
	done := make(chan struct{})
	w.Go(func() {
		<-w.HaltCh()
		close(done)
	})
	w.Halt()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not observe halt")
	}
	w.Wait()
}

func TestWorkerHaltIsIdempotent(t *testing.T) {
	w := NewWorker()
	require.False(t, w.IsHalted())
	w.Halt()
	w.Halt()
	require.True(t, w.IsHalted())
}

func TestGuardedGetSet(t *testing.T) {
	g := NewGuarded(5)
	require.Equal(t, 5, g.Get())
	g.Set(10)
	require.Equal(t, 10, g.Get())
	g.With(func(v *int) { *v++ })
	require.Equal(t, 11, g.Get())
}

func TestGuardedMap(t *testing.T) {
	m := NewGuardedMap[uint32, string]()
	m.Set(1, "a")
	m.Set(2, "b")
	require.Equal(t, 2, m.Len())

	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", v)

	m.Delete(1)
	_, ok = m.Get(1)
	require.False(t, ok)
}
