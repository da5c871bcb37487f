package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// migrate runs ten DDL statements on open.
func expectMigration(mock sqlmock.Sqlmock) {
	for i := 0; i < 10; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	expectMigration(mock)
	st, err := NewSQLiteStore(db, "/data/sol.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, mock
}

func TestSQLiteCreateTransmission(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO transmissions").
		WithArgs("tx-1", "t1", "", "", "alert", "created", 0, 0, "", "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := st.CreateTransmission(context.Background(), &contracts.Transmission{
		ID:                 "tx-1",
		ThreadID:           "t1",
		NotificationPolicy: contracts.NotificationAlert,
		Status:             contracts.TransmissionCreated,
		CreatedAt:          time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUpdateStatusMissingRow(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("UPDATE transmissions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateTransmissionStatus(context.Background(), "missing",
		contracts.TransmissionFailed, 500, false, "internal_error", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteGetTransmissionNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM transmissions").
		WillReturnRows(sqlmock.NewRows([]string{"transmission_id"}))

	_, err := st.GetTransmission(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Seq is MAX(seq)+1 under the sequence mutex.
func TestSQLiteAppendTraceEventAssignsSeq(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT MAX\(seq\) FROM trace_events`).
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec("INSERT INTO trace_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &contracts.TraceEvent{
		TraceRunID:     "run-1",
		TransmissionID: "tx-1",
		Phase:          contracts.PhaseModelCall,
		Status:         "completed",
	}
	require.NoError(t, st.AppendTraceEvent(context.Background(), ev))
	assert.Equal(t, uint64(5), ev.Seq)
	assert.NotEmpty(t, ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteAppendTraceEventFirstSeq(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT MAX\(seq\) FROM trace_events`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO trace_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &contracts.TraceEvent{TransmissionID: "tx-1", Phase: contracts.PhaseEvidenceIntake, Status: "started"}
	require.NoError(t, st.AppendTraceEvent(context.Background(), ev))
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestSQLiteTopologyMismatch(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM topology_key").
		WillReturnRows(sqlmock.NewRows([]string{"topology_key", "created_at_ms", "created_by", "db_path"}).
			AddRow("key-1", int64(1000), "host-a", "/elsewhere/sol.db"))

	_, err := st.EnsureTopologyKeyPrimary(context.Background(), "host-b", "/data/sol.db")
	assert.ErrorIs(t, err, ErrTopologyMismatch)
}

func TestSQLiteTopologyFirstBoot(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM topology_key").
		WillReturnRows(sqlmock.NewRows([]string{"topology_key", "created_at_ms", "created_by", "db_path"}))
	mock.ExpectExec("INSERT INTO topology_key").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tk, err := st.EnsureTopologyKeyPrimary(context.Background(), "host-a", "/data/sol.db")
	require.NoError(t, err)
	assert.NotEmpty(t, tk.TopologyKey)
	assert.Equal(t, "/data/sol.db", tk.DBPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUpsertMementoWriteError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO thread_memento_latest").
		WillReturnError(assert.AnError)

	err := st.UpsertThreadMementoLatest(context.Background(), &contracts.ThreadMementoLatest{ThreadID: "t1"})
	assert.Error(t, err)
}
