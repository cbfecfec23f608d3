package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qms-workers/internal/models"
)

func newMockWarehouse(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db, "qms_workflows"), mock
}

func TestPostgres_Insert(t *testing.T) {
	wh, mock := newMockWarehouse(t)

	mock.ExpectExec(`INSERT INTO "qms_workflows"."capa_cases" ("capa_id", "status") VALUES ($1, $2), ($3, $4)`).
		WithArgs("CAPA-20251209-980E3239", "Open", "CAPA-20251209-00000001", "Closed").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := wh.Insert(context.Background(), TableCorrectiveActions, []models.Record{
		{"status": "Open", "capa_id": "CAPA-20251209-980E3239"},
		{"capa_id": "CAPA-20251209-00000001", "status": "Closed"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert_Rejects(t *testing.T) {
	wh, mock := newMockWarehouse(t)
	ctx := context.Background()

	err := wh.Insert(ctx, "users; DROP TABLE x", []models.Record{{"a": 1}})
	assert.ErrorContains(t, err, "unknown table")

	err = wh.Insert(ctx, TableChangeRequests, []models.Record{{"dcr_id": "a", "status": "b"}, {"dcr_id": "c"}})
	assert.ErrorContains(t, err, "row 1")

	assert.NoError(t, wh.Insert(ctx, TableChangeRequests, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Query_NormalizesValues(t *testing.T) {
	wh, mock := newMockWarehouse(t)

	due := time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 12, 9, 14, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT capa_id, due_date, updated_at, notes FROM t WHERE capa_id = $1").
		WithArgs("CAPA-20251209-980E3239").
		WillReturnRows(sqlmock.NewRows([]string{"capa_id", "due_date", "updated_at", "notes"}).
			AddRow([]byte("CAPA-20251209-980E3239"), due, updated, nil))

	rows, err := wh.Query(context.Background(), Statement{
		SQL:  "SELECT capa_id, due_date, updated_at, notes FROM t WHERE capa_id = $1",
		Args: []interface{}{"CAPA-20251209-980E3239"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CAPA-20251209-980E3239", rows[0]["capa_id"])
	assert.Equal(t, "2025-12-09", rows[0]["due_date"])
	assert.Equal(t, "2025-12-09T14:30:00Z", rows[0]["updated_at"])
	assert.Nil(t, rows[0]["notes"])
}

func TestPostgres_Query_EmptyIsNotNil(t *testing.T) {
	wh, mock := newMockWarehouse(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"x"}))

	rows, err := wh.Query(context.Background(), Statement{SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestIDGenerator_New(t *testing.T) {
	g := &IDGenerator{Now: func() time.Time { return time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC) }}

	first := g.New(ChangeRequestPrefix)
	second := g.New(ChangeRequestPrefix)

	assert.Regexp(t, `^DCR-20251209-[0-9A-F]{8}$`, first)
	assert.Regexp(t, `^CAPA-20251209-[0-9A-F]{8}$`, g.New(CorrectiveActionPrefix))
	assert.NotEqual(t, first, second)
}
