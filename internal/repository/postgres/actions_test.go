package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
)

var actionColumns = []string{"id", "created_at", "email", "origin", "source_ip", "result", "contact_id", "error_detail", "request_id"}

func setupActionRepo(t *testing.T) (*ActionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewActionRepo(db), mock
}

func TestActionRepoAppend(t *testing.T) {
	repo, mock := setupActionRepo(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	contactID := "42"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO unsubscribe_actions")).
		WithArgs(ts, "a@x.com", "https://simplify-erp.de", "203.0.113.9", "ok", contactID, nil, "req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))
	mock.ExpectCommit()

	rec := &actions.Record{
		Timestamp: ts,
		Email:     "a@x.com",
		Origin:    "https://simplify-erp.de",
		SourceIP:  "203.0.113.9",
		Result:    actions.ResultOK,
		ContactID: &contactID,
		RequestID: "req-1",
	}
	id, err := repo.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	assert.Equal(t, int64(17), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRepoAppendRollsBack(t *testing.T) {
	repo, mock := setupActionRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO unsubscribe_actions")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Append(context.Background(), &actions.Record{Result: actions.ResultError})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRepoListFilters(t *testing.T) {
	repo, mock := setupActionRepo(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE email = $1 AND result = $2 ORDER BY id DESC LIMIT $3 OFFSET $4")).
		WithArgs("a@x.com", "error", 10, 20).
		WillReturnRows(sqlmock.NewRows(actionColumns).
			AddRow(int64(9), ts, "a@x.com", "o", "ip", "error", "42", "dnc_retry_exhausted", "r9").
			AddRow(int64(3), ts, "a@x.com", "o", "ip", "error", nil, "internal", nil))

	got, err := repo.List(context.Background(), actions.ListFilter{
		Email: "a@x.com", Result: actions.ResultError, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[0].ID)
	assert.Equal(t, "42", *got[0].ContactID)
	assert.Equal(t, "dnc_retry_exhausted", *got[0].ErrorDetail)
	assert.Equal(t, "r9", got[0].RequestID)
	assert.Nil(t, got[1].ContactID)
	assert.Empty(t, got[1].RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRepoListUnfiltered(t *testing.T) {
	repo, mock := setupActionRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM unsubscribe_actions ORDER BY id DESC LIMIT $1 OFFSET $2")).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(actionColumns))

	got, err := repo.List(context.Background(), actions.ListFilter{Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
