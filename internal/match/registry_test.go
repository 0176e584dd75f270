package match

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryGetOrCreate(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	r1 := reg.GetOrCreate("m1")
	r2 := reg.GetOrCreate("m1")
	r3 := reg.GetOrCreate("m2")

	assert.Same(t, r1, r2)
	assert.NotSame(t, r1, r3)
	assert.Equal(t, "m1", r1.ID)
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Lookup("m2")
	require.True(t, ok)
	assert.Same(t, r3, got)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryConcurrentGetOrCreateSameID(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	const workers = 64
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = reg.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentGetOrCreateDistinctIDs(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.GetOrCreate(fmt.Sprintf("m%d", i%10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, reg.Len())
}

func TestRegistryDeleteIfEmpty(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	room := reg.GetOrCreate("m1")
	a := newFakeConn("A")
	_, err := room.Join(a)
	require.NoError(t, err)

	assert.False(t, reg.DeleteIfEmpty(room), "occupied room stays")
	assert.Equal(t, 1, reg.Len())

	_, removed := room.Leave(a)
	require.True(t, removed)
	assert.True(t, reg.DeleteIfEmpty(room))
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.DeleteIfEmpty(room), "second delete is a no-op")

	_, err = room.Join(newFakeConn("B"))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRegistryDeleteIfEmptyIgnoresStaleRoom(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	stale := reg.GetOrCreate("m1")
	require.True(t, reg.DeleteIfEmpty(stale))

	fresh := reg.GetOrCreate("m1")
	require.NotSame(t, stale, fresh)

	assert.False(t, reg.DeleteIfEmpty(stale))
	got, ok := reg.Lookup("m1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRegistryFreshRoomAfterDelete(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	room := reg.GetOrCreate("m1")
	a, b := newFakeConn("A"), newFakeConn("B")
	_, _ = room.Join(a)
	_, _ = room.Join(b)
	room.MarkReady("A")
	room.MarkReady("B")

	room.Leave(a)
	room.Leave(b)
	require.True(t, reg.DeleteIfEmpty(room))

	fresh := reg.GetOrCreate("m1")
	assert.Equal(t, 0, fresh.Len())
	assert.Equal(t, 0, fresh.ReadyCount())
}

func TestRegistryShutdownClosesOccupants(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	a, b, c := newFakeConn("A"), newFakeConn("B"), newFakeConn("C")
	_, _ = reg.GetOrCreate("m1").Join(a)
	_, _ = reg.GetOrCreate("m1").Join(b)
	_, _ = reg.GetOrCreate("m2").Join(c)

	reg.Shutdown()

	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.True(t, c.isClosed())
}
