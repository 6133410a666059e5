package views

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmirror/internal/log"
)

type fakeRow struct {
	count int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int64); ok {
		*p = r.count
	}
	return nil
}

type fakeDB struct {
	count      int64
	increments int
	reads      int
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if strings.Contains(sql, "INSERT") {
		f.increments++
		f.count++
		return fakeRow{count: f.count}
	}
	f.reads++
	if f.count == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{count: f.count}
}

func TestIncrement(t *testing.T) {
	t.Run("first view inserts and returns one", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		count, err := s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Equal(t, 1, db.increments)
	})

	t.Run("repeat view inside the window is suppressed", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		_, err := s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)

		count, err := s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "suppressed view returns current count")
		assert.Equal(t, 1, db.increments)
	})

	t.Run("different callers both count", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		_, err := s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)
		count, err := s.Increment(context.Background(), "my-post", "caller-b")
		require.NoError(t, err)

		assert.Equal(t, int64(2), count)
		assert.Equal(t, 2, db.increments)
	})

	t.Run("same caller on a different slug counts", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		_, err := s.Increment(context.Background(), "post-a", "caller-a")
		require.NoError(t, err)
		_, err = s.Increment(context.Background(), "post-b", "caller-a")
		require.NoError(t, err)

		assert.Equal(t, 2, db.increments)
	})

	t.Run("suppression expires after the window", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop(), WithWindow(10*time.Minute))

		current := time.Now()
		s.now = func() time.Time { return current }

		_, err := s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)

		current = current.Add(11 * time.Minute)
		_, err = s.Increment(context.Background(), "my-post", "caller-a")
		require.NoError(t, err)

		assert.Equal(t, 2, db.increments)
	})

	t.Run("empty caller key is never suppressed", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		for range 3 {
			_, err := s.Increment(context.Background(), "my-post", "")
			require.NoError(t, err)
		}
		assert.Equal(t, 3, db.increments)
	})

	t.Run("empty slug is rejected", func(t *testing.T) {
		s := New(&fakeDB{}, log.NewNop())
		_, err := s.Increment(context.Background(), "", "caller-a")
		require.Error(t, err)
	})
}

func TestCount(t *testing.T) {
	t.Run("missing slug reads as zero", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, log.NewNop())

		count, err := s.Count(context.Background(), "never-viewed")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestThrottlePrune(t *testing.T) {
	db := &fakeDB{}
	s := New(db, log.NewNop(), WithWindow(10*time.Minute), WithMaxEntries(2))

	current := time.Now()
	s.now = func() time.Time { return current }

	_, err := s.Increment(context.Background(), "a", "c1")
	require.NoError(t, err)
	_, err = s.Increment(context.Background(), "b", "c1")
	require.NoError(t, err)

	// both entries expire, the next view triggers a prune at the cap
	current = current.Add(11 * time.Minute)
	_, err = s.Increment(context.Background(), "c", "c1")
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.seen, 1)
}
