package sqldb_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/dhima/datman/internal/testutil/fakedriver"
	"github.com/dhima/datman/internal/testutil/fakes"
	"github.com/dhima/datman/pkg/clock"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/dhima/datman/platform/events"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var postgresParams = map[string]any{"driver": "postgres", "host": "db", "dbname": "warehouse"}

func newRecordedClient(t *testing.T, rec *fakedriver.Recorder, opts ...sqldb.Option) *sqldb.Client {
	t.Helper()
	opener := func(ctx context.Context, d sqldb.Dialect, _ string) (*sqlx.DB, error) {
		return rec.Open(ctx, d.DriverName())
	}
	opts = append([]sqldb.Option{sqldb.WithOpener(opener), sqldb.WithLogger(zaptest.NewLogger(t))}, opts...)
	c := sqldb.New(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect_WhenParamsAreNotAnObject_ThenInvalidArgument(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)

	err := c.Connect(context.Background(), 42)

	assert.True(t, errors.Is(err, dataerr.ErrInvalidArgument))
	assert.Zero(t, rec.Opens())
	assert.False(t, c.Connected())
}

func TestConnect_WhenJSONParams_ThenOpensConnection(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)

	err := c.Connect(context.Background(), `{"driver":"postgres","host":"db"}`)

	require.NoError(t, err)
	assert.True(t, c.Connected())
	assert.Equal(t, "postgres", c.Dialect().Name())
}

func TestConnect_WhenCalledTwice_ThenClosesPreviousConnection(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	require.NoError(t, c.Connect(context.Background(), postgresParams))

	assert.Equal(t, 2, rec.Opens())
	assert.Equal(t, 1, rec.Closes())
}

func TestConnect_WhenPingFails_ThenDriverErrorPropagates(t *testing.T) {
	rec := &fakedriver.Recorder{PingErr: errors.New("connection refused")}
	c := newRecordedClient(t, rec)

	err := c.Connect(context.Background(), postgresParams)

	assert.True(t, errors.Is(err, dataerr.ErrDriver))
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, c.Connected())
}

func TestClose_WhenCalledTwice_ThenIsIdempotent(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.Connected())
}

func TestReconnect_WhenNeverConnected_ThenNoOp(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)

	err := c.Reconnect(context.Background())

	assert.NoError(t, err)
	assert.Zero(t, rec.Opens())
	assert.False(t, c.Connected())
}

func TestReconnect_WhenConnected_ThenReopensFromStoredParams(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	require.NoError(t, c.Reconnect(context.Background()))

	assert.Equal(t, 2, rec.Opens())
	assert.True(t, c.Connected())
}

func TestExecute_WhenQueryReturnsRows_ThenReturnsTuples(t *testing.T) {
	// Arrange
	rec := &fakedriver.Recorder{
		Columns: []string{"id", "name"},
		Rows:    [][]driver.Value{{int64(1), "a"}, {int64(2), []byte("b")}},
	}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	// Act
	rows, err := c.Execute(context.Background(), "SELECT id, name FROM users")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}}, rows)
	require.Len(t, rec.Queries(), 1)
	assert.Equal(t, "SELECT id, name FROM users", rec.Queries()[0].Query)
}

func TestExecute_WhenNeverConnected_ThenNotConnected(t *testing.T) {
	c := newRecordedClient(t, &fakedriver.Recorder{})

	_, err := c.Execute(context.Background(), "SELECT 1")

	assert.ErrorIs(t, err, sqldb.ErrNotConnected)
	assert.True(t, errors.Is(err, dataerr.ErrDriver))
}

func TestInsertBatch_WhenInputEmpty_ThenNoRoundTrip(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	for _, data := range []sqldb.Batch{sqldb.Record{}, sqldb.Records{}, sqldb.Frame{Columns: []string{"id"}}} {
		n, err := c.InsertBatch(context.Background(), data, "users", 10)

		assert.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Zero(t, rec.Statements())
}

func TestInsertBatch_WhenNilInput_ThenInvalidShape(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	_, err := c.InsertBatch(context.Background(), nil, "users", 10)

	assert.True(t, errors.Is(err, dataerr.ErrInvalidShape))
	assert.Zero(t, rec.Statements())
}

func TestInsertBatch_WhenMoreRecordsThanPageSize_ThenOneStatementPerPage(t *testing.T) {
	// Arrange
	rec := &fakedriver.Recorder{RowsAffected: 2}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))
	data := sqldb.Records{{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4}, {"id": 5}}

	// Act
	n, err := c.InsertBatch(context.Background(), data, "users", 2)

	// Assert
	require.NoError(t, err)
	execs := rec.Execs()
	require.Len(t, execs, 3)
	assert.Contains(t, execs[0].Query, `INSERT INTO "users" ("id") VALUES ($1)`)
	assert.Contains(t, execs[0].Query, "($2)")
	assert.Equal(t, []any{int64(5)}, execs[2].Args)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, int64(6), c.Stats().RowsInserted)
}

func TestInsertBatch_WhenPageFails_ThenReturnsDriverErrorAndStops(t *testing.T) {
	rec := &fakedriver.Recorder{ExecErr: errors.New("duplicate key")}
	c := newRecordedClient(t, rec, sqldb.WithPayloadLogging())
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	_, err := c.InsertBatch(context.Background(), sqldb.Records{{"id": 1}, {"id": 2}}, "users", 1)

	assert.True(t, errors.Is(err, dataerr.ErrDriver))
	assert.Contains(t, err.Error(), "page 1 of 2")
	assert.Len(t, rec.Execs(), 1)
	assert.Equal(t, int64(1), c.Stats().FailedOperations)
}

func TestInsertBatch_WhenTableNameIsNotIdentifier_ThenValidationErrorWithoutStatement(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	_, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users; DROP TABLE users", 10)

	assert.True(t, errors.Is(err, dataerr.ErrValidation))
	assert.Zero(t, rec.Statements())
}

func TestInsertBatch_WhenClosedWithStoredParams_ThenReconnectsTransparently(t *testing.T) {
	// Arrange
	rec := &fakedriver.Recorder{RowsAffected: 1}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))
	require.NoError(t, c.Close())

	// Act
	n, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users", 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, rec.Opens())
	assert.True(t, c.Connected())
}

func TestInsertBatch_WhenNeverConnected_ThenNotConnected(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Reconnect(context.Background()))

	_, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users", 10)

	assert.ErrorIs(t, err, sqldb.ErrNotConnected)
	assert.Zero(t, rec.Statements())
}

func TestInsertBatch_WhenNotifierConfigured_ThenPublishesMutationEvent(t *testing.T) {
	// Arrange
	rec := &fakedriver.Recorder{RowsAffected: 1}
	pub := &fakes.FakePublisher{}
	at := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	c := newRecordedClient(t, rec, sqldb.WithNotifier(pub), sqldb.WithClock(clock.NewFixed(at)))
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	// Act
	_, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users", 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, "users", pub.Events[0].Table)
	assert.Equal(t, events.OperationInsert, pub.Events[0].Operation)
	assert.Equal(t, int64(1), pub.Events[0].Rows)
	assert.Equal(t, at, pub.Events[0].OccurredAt)
	assert.NotEmpty(t, pub.Events[0].EventID)
}

func TestInsertBatch_WhenPublishFails_ThenMutationStillSucceeds(t *testing.T) {
	rec := &fakedriver.Recorder{RowsAffected: 1}
	pub := &fakes.FakePublisher{FailNext: true}
	c := newRecordedClient(t, rec, sqldb.WithNotifier(pub))
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	n, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users", 10)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateBatch_WhenSetOrWhereEmpty_ThenValidationErrorWithoutStatement(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))
	data := sqldb.Records{{"id": 1, "name": "a"}}

	_, errSet := c.UpdateBatch(context.Background(), data, nil, []string{"id"}, "users", 10)
	_, errWhere := c.UpdateBatch(context.Background(), data, []string{"name"}, []string{}, "users", 10)

	assert.True(t, errors.Is(errSet, dataerr.ErrValidation))
	assert.True(t, errors.Is(errWhere, dataerr.ErrValidation))
	assert.Zero(t, rec.Statements())
}

func TestUpdateBatch_WhenInputIsNotRecords_ThenInvalidShape(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	_, err := c.UpdateBatch(context.Background(), sqldb.Record{"id": 1}, []string{"id"}, []string{"id"}, "users", 10)

	assert.True(t, errors.Is(err, dataerr.ErrInvalidShape))
	assert.Zero(t, rec.Statements())
}

func TestUpdateBatch_WhenRecordsGiven_ThenOneBulkStatementPerPage(t *testing.T) {
	rec := &fakedriver.Recorder{RowsAffected: 2}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))
	data := sqldb.Records{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}}

	n, err := c.UpdateBatch(context.Background(), data, []string{"name"}, []string{"id"}, "users", 10)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, rec.Execs(), 1)
	assert.Contains(t, rec.Execs()[0].Query, `FROM (VALUES ($1::text, $2::bigint), ($3::text, $4::bigint))`)
}

func TestDeleteBatch_WhenRecordFieldCountIsNotOne_ThenValidationErrorWithoutStatement(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	inputs := []sqldb.Records{
		{{}},
		{{"id": 1, "name": "a"}},
		{{"id": 1}, {"user_id": 2}},
	}
	for _, data := range inputs {
		_, err := c.DeleteBatch(context.Background(), data, "users", 10)

		assert.True(t, errors.Is(err, dataerr.ErrValidation), "%v", data)
	}
	assert.Zero(t, rec.Statements())
}

func TestDeleteBatch_WhenKeysGiven_ThenDeletesByKeyPerPage(t *testing.T) {
	rec := &fakedriver.Recorder{RowsAffected: 1}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	n, err := c.DeleteBatch(context.Background(), sqldb.Records{{"id": 1}, {"id": 2}, {"id": 3}}, "users", 2)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	execs := rec.Execs()
	require.Len(t, execs, 2)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN ($1, $2)`, execs[0].Query)
	assert.Equal(t, []any{int64(1), int64(2)}, execs[0].Args)
}

func TestDeleteDuplicateRows_WhenMySQL_ThenUnsupported(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), map[string]any{"driver": "mysql", "host": "db"}))

	_, err := c.DeleteDuplicateRows(context.Background(), "users", []string{"email"})

	assert.ErrorIs(t, err, sqldb.ErrUnsupported)
	assert.True(t, errors.Is(err, dataerr.ErrValidation))
	assert.Zero(t, rec.Statements())
}

func TestFindDuplicateRows_WhenNoPartition_ThenValidationError(t *testing.T) {
	rec := &fakedriver.Recorder{}
	c := newRecordedClient(t, rec)
	require.NoError(t, c.Connect(context.Background(), postgresParams))

	_, err := c.FindDuplicateRows(context.Background(), "users", nil)

	assert.True(t, errors.Is(err, dataerr.ErrValidation))
	assert.Zero(t, rec.Statements())
}

func TestInsertBatch_WhenReconnectFails_ThenNotConnectedDriverError(t *testing.T) {
	// Arrange
	refusing := func(context.Context, sqldb.Dialect, string) (*sqlx.DB, error) {
		return nil, errors.New("connection refused")
	}
	c := sqldb.New(sqldb.WithOpener(refusing), sqldb.WithLogger(zaptest.NewLogger(t)))
	require.Error(t, c.Connect(context.Background(), postgresParams))

	// Act
	_, err := c.InsertBatch(context.Background(), sqldb.Record{"id": 1}, "users", 10)

	// Assert
	assert.ErrorIs(t, err, sqldb.ErrNotConnected)
	assert.ErrorIs(t, err, dataerr.ErrDriver)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInsertBatch_WhenRowsHaveNoColumns_ThenInvalidShapeWithoutStatement(t *testing.T) {
	tests := []struct {
		name string
		data sqldb.Batch
	}{
		{"frame without columns", sqldb.Frame{Rows: [][]any{{1}, {2}}}},
		{"empty first record", sqldb.Records{{}, {"id": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakedriver.Recorder{}
			c := newRecordedClient(t, rec)
			require.NoError(t, c.Connect(context.Background(), postgresParams))

			_, err := c.InsertBatch(context.Background(), tt.data, "users", 10)

			assert.ErrorIs(t, err, dataerr.ErrInvalidShape)
			assert.Zero(t, rec.Statements())
		})
	}
}

func TestUpdateBatch_WhenRecordLacksSetOrWhereColumn_ThenValidationErrorWithoutStatement(t *testing.T) {
	tests := []struct {
		name string
		data sqldb.Records
	}{
		{"missing set column", sqldb.Records{{"id": 1, "name": "x", "score": 9}, {"id": 2, "name": "y"}}},
		{"missing where column", sqldb.Records{{"id": 1, "name": "x", "score": 9}, {"name": "y", "score": 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakedriver.Recorder{}
			c := newRecordedClient(t, rec)
			require.NoError(t, c.Connect(context.Background(), postgresParams))

			_, err := c.UpdateBatch(context.Background(), tt.data, []string{"name", "score"}, []string{"id"}, "users", 10)

			assert.ErrorIs(t, err, dataerr.ErrValidation)
			assert.Zero(t, rec.Statements())
		})
	}
}
