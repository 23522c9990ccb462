package sqlquery

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewExecutor(sqlx.NewDb(db, "postgres")), mock
}

func TestExecutor_PostIDs(t *testing.T) {
	exec, mock := newMockExecutor(t)
	rel := (&Relation{}).Where(tagArray+" @> ARRAY[?]", []string{"fox"})

	mock.ExpectQuery(`SELECT posts.id FROM posts WHERE (string_to_array(posts.tag_string, ' ') @> ARRAY[$1]) ORDER BY "posts"."score" DESC, "posts"."id" DESC LIMIT 10 OFFSET 20`).
		WithArgs("fox").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(1)))

	ids, err := exec.PostIDs(context.Background(), rel, Page{
		Order:  []OrderTerm{{Column: "posts.score", Desc: true}, {Column: "posts.id", Desc: true}},
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_DefaultOrder(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery(`SELECT posts.id FROM posts WHERE TRUE ORDER BY posts.id DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := exec.PostIDs(context.Background(), &Relation{}, Page{})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_RejectsBadOrderColumn(t *testing.T) {
	exec, _ := newMockExecutor(t)
	_, err := exec.PostIDs(context.Background(), &Relation{}, Page{Order: []OrderTerm{{Column: "id; DROP TABLE posts"}}})
	assert.Error(t, err)
}

func TestExecutor_Count(t *testing.T) {
	exec, mock := newMockExecutor(t)
	rel := (&Relation{}).Where("posts.rating = ?", "s")

	mock.ExpectQuery(`SELECT COUNT(*) FROM posts WHERE (posts.rating = $1)`).
		WithArgs("s").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := exec.Count(context.Background(), rel)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_WrapsDatabaseErrors(t *testing.T) {
	exec, mock := newMockExecutor(t)
	dbErr := errors.New("connection refused")

	mock.ExpectQuery(`SELECT posts.id FROM posts WHERE TRUE ORDER BY posts.id DESC`).
		WillReturnError(dbErr)

	_, err := exec.PostIDs(context.Background(), &Relation{}, Page{})
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
