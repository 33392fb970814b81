package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

var recordColumns = []string{
	"id", "timestamp", "power", "voltage_l1_gnd", "voltage_l2_gnd", "voltage_l3_gnd",
	"pressure", "force", "cycle_count", "position_of_punch",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, New(mock, nil)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleRecord() models.Record {
	return models.Record{Measurements: models.Measurements{
		Power:           models.Float(100.5),
		VoltageL1:       models.Float(230.1),
		VoltageL2:       models.Float(229.8),
		VoltageL3:       models.Float(231.0),
		Pressure:        models.Float(5.2),
		Force:           models.Float(1200.0),
		CycleCount:      models.Int(42),
		PositionOfPunch: models.Float(0.87),
	}}
}

func TestInitialize(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS machine_data").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := st.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitializeFailureIsSchemaError(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS machine_data").
		WillReturnError(errors.New("permission denied"))

	err := st.Initialize(context.Background())
	var serr *apperrors.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if serr.Op != "initialize schema" {
		t.Fatalf("expected op %q, got %q", "initialize schema", serr.Op)
	}
}

func TestNewPostgresStoreBadURLIsSchemaError(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "postgres://%zz", 0, nil)
	var serr *apperrors.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if serr.Op != "parse config" {
		t.Fatalf("expected op %q, got %q", "parse config", serr.Op)
	}
}

func TestInsertCommits(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO machine_data").
		WithArgs(anyArgs(9)...).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	id, err := st.Insert(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertFailureRollsBack(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO machine_data").
		WithArgs(anyArgs(9)...).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := st.Insert(context.Background(), sampleRecord())
	if !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("rollback was not issued: %v", err)
	}
}

func TestInsertRollsBackWhenCallerCancelled(t *testing.T) {
	mock, st := newMock(t)

	ctx, cancel := context.WithCancel(context.Background())

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO machine_data").
		WithArgs(anyArgs(9)...).
		WillReturnError(context.Canceled)
	mock.ExpectRollback()

	cancel()
	_, err := st.Insert(ctx, sampleRecord())
	if !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("rollback must run on a detached context: %v", err)
	}
}

func TestInsertBeginFailure(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	if _, err := st.Insert(context.Background(), sampleRecord()); !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestInsertCommitFailure(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO machine_data").
		WithArgs(anyArgs(9)...).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	if _, err := st.Insert(context.Background(), sampleRecord()); !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestListPreservesNulls(t *testing.T) {
	mock, st := newMock(t)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var nilFloat *float64
	var nilInt *int64

	rows := mock.NewRows(recordColumns).
		AddRow(int64(2), ts, models.Float(1.5), nilFloat, nilFloat, nilFloat, nilFloat, nilFloat, nilInt, nilFloat).
		AddRow(int64(1), ts.Add(-time.Minute), models.Float(2.5), models.Float(230), models.Float(231), models.Float(232),
			models.Float(5), models.Float(10), models.Int(3), models.Float(0.5))
	mock.ExpectQuery("FROM machine_data ORDER BY timestamp DESC").WillReturnRows(rows)

	got, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != 2 || got[0].VoltageL1 != nil || got[0].CycleCount != nil {
		t.Fatalf("first record should carry nulls, got %+v", got[0])
	}
	if got[1].CycleCount == nil || *got[1].CycleCount != 3 {
		t.Fatalf("second record cycle_count mismatch: %+v", got[1])
	}
}

func TestListEmpty(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectQuery("FROM machine_data ORDER BY").WillReturnRows(mock.NewRows(recordColumns))

	got, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectQuery("FROM machine_data WHERE id").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, found, err := st.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("not found must not be an error: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestGetFailure(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectQuery("FROM machine_data WHERE id").
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection refused"))

	if _, _, err := st.Get(context.Background(), 1); !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestUpdateNotFoundRollsBack(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE machine_data SET").
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	found, err := st.Update(context.Background(), 5, sampleRecord())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateCommits(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE machine_data SET").
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	found, err := st.Update(context.Background(), 5, sampleRecord())
	if err != nil || !found {
		t.Fatalf("expected found update, got found=%v err=%v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteFailureRollsBack(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM machine_data").
		WithArgs(int64(3)).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	found, err := st.Delete(context.Background(), 3)
	if !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if found {
		t.Fatal("failed delete must not report found")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateFailureRollsBack(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE machine_data SET").
		WithArgs(anyArgs(10)...).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	found, err := st.Update(context.Background(), 3, sampleRecord())
	if !apperrors.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if found {
		t.Fatal("failed update must not report found")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountRangeOpenBounds(t *testing.T) {
	mock, st := newMock(t)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(from, pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := st.CountRange(context.Background(), from, time.Time{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12, got %d", n)
	}
}

func TestDeleteNotFound(t *testing.T) {
	mock, st := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM machine_data").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	found, err := st.Delete(context.Background(), 3)
	if err != nil || found {
		t.Fatalf("expected not found, got found=%v err=%v", found, err)
	}
}
