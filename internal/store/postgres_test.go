package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return newPostgresWithDB(db), mock
}

const insertUserQ = `(?s)^INSERT\s+INTO\s+users\(username,email,password,bio,profile_pic,created_at\)\s+VALUES\(\$1,\$2,\$3,\$4,\$5,now\(\)\)\s+RETURNING\s+id,\s*created_at$`

func TestPostgresCreateUser_Success(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(insertUserQ).
		WithArgs("alice", "alice@example.com", "digest", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))

	u, err := pg.CreateUser(context.Background(), &User{Username: "alice", Email: "alice@example.com", PasswordHash: "digest"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, created, u.CreatedAt)
}

func TestPostgresCreateUser_UniqueViolations(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{"users_username_key", ErrUsernameTaken},
		{"users_email_key", ErrEmailTaken},
		{"something_else", ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			pg, mock := newPostgresWithMock(t)
			mock.ExpectQuery(insertUserQ).
				WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: tc.constraint})

			_, err := pg.CreateUser(context.Background(), &User{Username: "alice", Email: "alice@example.com", PasswordHash: "d"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostgresCreateUser_DBError(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	mock.ExpectQuery(insertUserQ).WillReturnError(errors.New("db down"))

	_, err := pg.CreateUser(context.Background(), &User{Username: "alice", Email: "a@example.com", PasswordHash: "d"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestPostgresGetUserByUsername(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	q := `(?s)^SELECT\s+id,username,email,password,bio,profile_pic,created_at\s+FROM\s+users\s+WHERE\s+username\s+=\s+\$1$`
	cols := []string{"id", "username", "email", "password", "bio", "profile_pic", "created_at"}

	mock.ExpectQuery(q).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "alice", "alice@example.com", "digest", "hello", nil, time.Now()))
	mock.ExpectQuery(q).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(cols))

	u, err := pg.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	require.NotNil(t, u.Bio)
	assert.Equal(t, "hello", *u.Bio)
	assert.Nil(t, u.ProfilePic)

	_, err = pg.GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresLedger(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+revoked_tokens.*ON\s+CONFLICT\s+\(token_id\)\s+DO\s+NOTHING$`).
		WithArgs("jti-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS\(SELECT\s+1\s+FROM\s+revoked_tokens\s+WHERE\s+token_id\s+=\s+\$1\)$`).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+revoked_tokens\s+WHERE\s+expires_at\s+<\s+\$1$`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, pg.Revoke(ctx, "jti-1", now, now.Add(time.Hour)))
	revoked, err := pg.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	n, err := pg.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresIsRevoked_ErrorPropagates(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`SELECT\s+EXISTS`).WillReturnError(sql.ErrConnDone)

	_, err := pg.IsRevoked(context.Background(), "jti-1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresUpdatePost_NotFound(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	mock.ExpectExec(`(?s)^UPDATE\s+posts\s+SET\s+title\s+=\s+\$1,\s+content\s+=\s+\$2\s+WHERE\s+id\s+=\s+\$3$`).
		WithArgs("t", "c", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := pg.UpdatePost(context.Background(), &Post{ID: 99, Title: "t", Content: "c"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresListPosts_ByAuthor(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	author := int64(4)
	mock.ExpectQuery(`(?s)^SELECT\s+id,title,content,author_id,created_at\s+FROM\s+posts\s+WHERE\s+author_id\s+=\s+\$1\s+ORDER\s+BY\s+id\s+DESC$`).
		WithArgs(author).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "author_id", "created_at"}).
			AddRow(2, "b", "bb", author, time.Now()).
			AddRow(1, "a", "aa", author, time.Now()))

	posts, err := pg.ListPosts(context.Background(), &author)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(2), posts[0].ID)
}

func TestPostgresCreateLike_Errors(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	q := `(?s)^INSERT\s+INTO\s+likes\(user_id,post_id\)\s+VALUES\(\$1,\$2\)$`
	mock.ExpectExec(q).WithArgs(int64(1), int64(2)).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "likes_pkey"})
	mock.ExpectExec(q).WithArgs(int64(1), int64(3)).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	assert.ErrorIs(t, pg.CreateLike(context.Background(), 1, 2), ErrConflict)
	assert.ErrorIs(t, pg.CreateLike(context.Background(), 1, 3), ErrNotFound)
}

func TestPostgresCountLikes(t *testing.T) {
	pg, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+likes\s+WHERE\s+post_id\s+=\s+\$1$`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := pg.CountLikes(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
