package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"example.com/blogger/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPgMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock, NewPostgresWithConn(mock)
}

var pgPostCols = []string{"id", "owner_id", "owner_username", "title", "content", "created_at"}

func pgPostRows(posts []models.Post) *pgxmock.Rows {
	rows := pgxmock.NewRows(pgPostCols)
	for _, p := range posts {
		rows.AddRow(p.ID, p.OwnerID, p.OwnerUsername, p.Title, p.Content, p.Created)
	}
	return rows
}

func TestPostgresCreateUser_UniqueViolationIsTaken(t *testing.T) {
	mock, s := newPgMock(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_username_key"})

	err := s.CreateUser(context.Background(), testUser)
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}

func TestPostgresCreateUser_OtherErrorsWrapped(t *testing.T) {
	mock, s := newPgMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(boom)

	err := s.CreateUser(context.Background(), testUser)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrUsernameTaken)
}

func TestPostgresGetUser_NoRowsIsMissing(t *testing.T) {
	mock, s := newPgMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at"}))

	u, err := s.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestPostgresRecentForOwner_FetchesOneExtraRow(t *testing.T) {
	mock, s := newPgMock(t)
	stored := cassandraPosts("u1", 11)
	mock.ExpectQuery(`WHERE owner_id = \$1\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$2`).
		WithArgs("u1", 11).
		WillReturnRows(pgPostRows(stored))

	got, more, err := s.RecentForOwner(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, got, 10)
	assert.Equal(t, "Post 11", got[0].Title)
	assert.Equal(t, "Post 2", got[9].Title)
}

func TestPostgresRecentForOwner_ExactFitHasNoMore(t *testing.T) {
	mock, s := newPgMock(t)
	mock.ExpectQuery(`LIMIT \$2`).
		WithArgs("u1", 11).
		WillReturnRows(pgPostRows(cassandraPosts("u1", 10)))

	got, more, err := s.RecentForOwner(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Len(t, got, 10)
}

func TestPostgresNeighbors_RowComparisons(t *testing.T) {
	mock, s := newPgMock(t)
	stored := cassandraPosts("u1", 3)
	current := stored[1]

	mock.ExpectQuery(`\(created_at, id\) > \(\$2, \$3\)\s+ORDER BY created_at ASC, id ASC\s+LIMIT 1`).
		WithArgs(current.OwnerID, current.Created, current.ID).
		WillReturnRows(pgPostRows(stored[:1]))
	mock.ExpectQuery(`\(created_at, id\) < \(\$2, \$3\)\s+ORDER BY created_at DESC, id DESC\s+LIMIT 1`).
		WithArgs(current.OwnerID, current.Created, current.ID).
		WillReturnRows(pgPostRows(stored[2:]))

	next, prev, err := s.Neighbors(context.Background(), current)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.NotNil(t, prev)
	assert.Equal(t, "Post 3", next.Title)
	assert.Equal(t, "Post 1", prev.Title)
}

func TestPostgresNeighbors_QueryError(t *testing.T) {
	mock, s := newPgMock(t)
	boom := errors.New("statement timeout")
	mock.ExpectQuery(`\(created_at, id\) >`).WillReturnError(boom)

	_, _, err := s.Neighbors(context.Background(), cassandraPosts("u1", 1)[0])
	assert.ErrorIs(t, err, boom)
}

func TestPostgresIncrementPostCount_Upsert(t *testing.T) {
	mock, s := newPgMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (owner_id) DO UPDATE`)).
		WithArgs("u1", int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.IncrementPostCount(context.Background(), "u1", 1))
}
