package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmirror/internal/log"
)

// fakeRow satisfies pgx.Row for a single string column.
type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

// fakeDB records executed statements and serves a canned row.
type fakeDB struct {
	row      fakeRow
	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), db.execErr
}

func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return db.row
}

func TestLoad_MissingRowMeansStartFromNow(t *testing.T) {
	store := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, log.NewNop())

	seq, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartFromNow, seq)
}

func TestLoad_ReturnsStoredToken(t *testing.T) {
	store := New(&fakeDB{row: fakeRow{value: "12-abc"}}, log.NewNop())

	seq, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12-abc", seq)
}

func TestLoad_PropagatesStorageError(t *testing.T) {
	store := New(&fakeDB{row: fakeRow{err: errors.New("connection reset")}}, log.NewNop())

	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestSave_UpsertsToken(t *testing.T) {
	db := &fakeDB{}
	store := New(db, log.NewNop())

	require.NoError(t, store.Save(context.Background(), "13-def"))
	require.Len(t, db.execArgs, 1)
	assert.Equal(t, []any{checkpointRowID, "13-def"}, db.execArgs[0])
	assert.Contains(t, db.execSQL[0], "ON CONFLICT")
}

func TestSave_RejectsEmptyToken(t *testing.T) {
	store := New(&fakeDB{}, log.NewNop())
	assert.Error(t, store.Save(context.Background(), ""))
}

func TestReset_DeletesRow(t *testing.T) {
	db := &fakeDB{}
	store := New(db, log.NewNop())

	require.NoError(t, store.Reset(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "DELETE FROM change_checkpoint")
}
