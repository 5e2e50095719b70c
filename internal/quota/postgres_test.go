package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

type fakeQuerier struct {
	row  fakeRow
	sql  string
	args []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestPostgresCounter_Increment(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{value: 7}}
	pc := NewPostgresCounter(q)

	n, err := pc.Increment(context.Background(), Key{Date: "2026-05-10", Provider: "tomorrow", Endpoint: "route"})
	require.NoError(t, err)

	assert.Equal(t, int64(7), n)
	assert.Contains(t, q.sql, "ON CONFLICT (date, provider, endpoint)")
	assert.Equal(t, []any{time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), "tomorrow", "route"}, q.args)
}

func TestPostgresCounter_Usage(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{value: 42}}
	pc := NewPostgresCounter(q)

	used, err := pc.Usage(context.Background(), "2026-05-10", "openmeteo")
	require.NoError(t, err)
	assert.Equal(t, int64(42), used)
	assert.Contains(t, q.sql, "SUM(call_count)")
}

func TestPostgresCounter_Errors(t *testing.T) {
	pc := NewPostgresCounter(&fakeQuerier{row: fakeRow{err: errors.New("conn refused")}})

	_, err := pc.Increment(context.Background(), Key{Date: "2026-05-10", Provider: "p", Endpoint: "e"})
	require.ErrorContains(t, err, "conn refused")

	_, err = pc.Usage(context.Background(), "not-a-date", "p")
	require.Error(t, err)
}
