package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteKeyNormalizes(t *testing.T) {
	assert.Equal(t, "4:cbd:juja-town", RouteKey(4, " CBD ", "Juja  Town"))
	assert.NotEqual(t, RouteKey(4, "CBD", "Juja"), RouteKey(5, "CBD", "Juja"))
}

func TestWaitingPositionsSkipAssignedHead(t *testing.T) {
	entries := []Entry{
		{DriverID: 1, Status: EntryAssigned},
		{DriverID: 2, Status: EntryWaiting},
		{DriverID: 3, Status: EntryWaiting},
	}
	pos := WaitingPositions(entries)
	assert.Equal(t, map[int64]int{2: 1, 3: 2}, pos)
	assert.Equal(t, 2, IndexOf(entries, 3))
	assert.Equal(t, -1, IndexOf(entries, 9))
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := RouteKey(1, "CBD", "Juja")

	_, ok, err := s.Head(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Enqueue(ctx, key, Entry{DriverID: i, Status: EntryWaiting, JoinedAt: time.Now()}))
	}
	head, ok, err := s.Head(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), head.DriverID)

	head.Status = EntryAssigned
	head.VehicleID = 7
	require.NoError(t, s.ReplaceHead(ctx, key, head))

	entries, err := s.Entries(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, EntryAssigned, entries[0].Status)

	shifted, ok, err := s.Shift(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), shifted.VehicleID)

	entries, err = s.Entries(ctx, key)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	active, err := s.IsActive(ctx, key)
	require.NoError(t, err)
	assert.False(t, active)
	require.NoError(t, s.SetActive(ctx, key, true))
	active, _ = s.IsActive(ctx, key)
	assert.True(t, active)
	require.NoError(t, s.SetActive(ctx, key, false))
	active, _ = s.IsActive(ctx, key)
	assert.False(t, active)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryLockHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	unlock, err := s.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := s.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	unlock, err := s.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists(s.lockKey("k")))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "k")
	assert.Error(t, err)
	unlock()
	assert.False(t, mr.Exists(s.lockKey("k")))
}

func TestRedisLockExpiresWhenHolderDies(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer s.Close()

	stale, err := s.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.FastForward(lockTTL + time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := s.Lock(ctx, "k")
	require.NoError(t, err)

	// The old holder's release must not drop the new holder's lock.
	stale()
	assert.True(t, mr.Exists(s.lockKey("k")))
	unlock()
}

func TestNewRedisStoreFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(addr, "", 0)
	assert.Error(t, err)
}
