package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB stores everything in a single SQLite file. Timestamps are kept as
// unix seconds.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// sqliteDSN turns foreign keys on for every connection the pool opens.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)"
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps ":memory:" databases
	// from splitting across pool connections.
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			bio TEXT,
			profile_pic TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS revoked_tokens (
			token_id TEXT PRIMARY KEY,
			revoked_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens(expires_at);`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			author_id INTEGER NOT NULL REFERENCES users(id),
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			user_id INTEGER NOT NULL REFERENCES users(id),
			post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS likes (
			user_id INTEGER NOT NULL REFERENCES users(id),
			post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, post_id)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func (s *SQLiteDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteDB) Close() error                   { return s.db.Close() }

func sqliteUniqueErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return ErrUsernameTaken
	case strings.Contains(msg, "users.email"):
		return ErrEmailTaken
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrConflict
	}
	return nil
}

func (s *SQLiteDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username,email,password,bio,profile_pic,created_at) VALUES(?,?,?,?,?,?)`,
		u.Username, u.Email, u.PasswordHash, nullString(u.Bio), nullString(u.ProfilePic), created.Unix())
	if err != nil {
		if uerr := sqliteUniqueErr(err); uerr != nil {
			return nil, uerr
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := *u
	out.ID = id
	out.CreatedAt = time.Unix(created.Unix(), 0).UTC()
	return &out, nil
}

func (s *SQLiteDB) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,password,bio,profile_pic,created_at FROM users WHERE `+where+` = ?`, arg)
	var u User
	var bio, pic sql.NullString
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &bio, &pic, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Bio = nullStringPtr(bio)
	u.ProfilePic = nullStringPtr(pic)
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLiteDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLiteDB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE id = ?`, hash, id)
	return affectedOne(res, err)
}

func (s *SQLiteDB) UpdateProfile(ctx context.Context, id int64, bio, profilePic *string) (*User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET bio = COALESCE(?, bio), profile_pic = COALESCE(?, profile_pic) WHERE id = ?`, nullString(bio), nullString(profilePic), id)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteDB) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO revoked_tokens(token_id,revoked_at,expires_at) VALUES(?,?,?) ON CONFLICT(token_id) DO NOTHING`,
		tokenID, revokedAt.Unix(), expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLiteDB) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	created := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO posts(title,content,author_id,created_at) VALUES(?,?,?,?)`,
		p.Title, p.Content, p.AuthorID, created.Unix())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := *p
	out.ID = id
	out.CreatedAt = time.Unix(created.Unix(), 0).UTC()
	return &out, nil
}

func scanPost(sc interface{ Scan(...interface{}) error }) (*Post, error) {
	var p Post
	var created int64
	if err := sc.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return &p, nil
}

func (s *SQLiteDB) GetPost(ctx context.Context, id int64) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT id,title,content,author_id,created_at FROM posts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (s *SQLiteDB) ListPosts(ctx context.Context, authorID *int64) ([]*Post, error) {
	q := `SELECT id,title,content,author_id,created_at FROM posts`
	var args []interface{}
	if authorID != nil {
		q += ` WHERE author_id = ?`
		args = append(args, *authorID)
	}
	q += ` ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	posts := []*Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *SQLiteDB) UpdatePost(ctx context.Context, p *Post) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET title = ?, content = ? WHERE id = ?`, p.Title, p.Content, p.ID)
	return affectedOne(res, err)
}

func (s *SQLiteDB) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *SQLiteDB) CreateComment(ctx context.Context, c *Comment) (*Comment, error) {
	created := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments(text,user_id,post_id,created_at) VALUES(?,?,?,?)`,
		c.Text, c.UserID, c.PostID, created.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := *c
	out.ID = id
	out.CreatedAt = time.Unix(created.Unix(), 0).UTC()
	return &out, nil
}

func scanComment(sc interface{ Scan(...interface{}) error }) (*Comment, error) {
	var c Comment
	var created int64
	if err := sc.Scan(&c.ID, &c.Text, &c.UserID, &c.PostID, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}

func (s *SQLiteDB) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, `SELECT id,text,user_id,post_id,created_at FROM comments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (s *SQLiteDB) ListComments(ctx context.Context, postID int64) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,text,user_id,post_id,created_at FROM comments WHERE post_id = ? ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	comments := []*Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLiteDB) UpdateComment(ctx context.Context, c *Comment) error {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET text = ? WHERE id = ?`, c.Text, c.ID)
	return affectedOne(res, err)
}

func (s *SQLiteDB) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *SQLiteDB) CreateLike(ctx context.Context, userID, postID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO likes(user_id,post_id) VALUES(?,?)`, userID, postID)
	if err != nil {
		if sqliteUniqueErr(err) != nil {
			return ErrConflict
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLiteDB) DeleteLike(ctx context.Context, userID, postID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM likes WHERE user_id = ? AND post_id = ?`, userID, postID)
	return affectedOne(res, err)
}

func (s *SQLiteDB) CountLikes(ctx context.Context, postID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE post_id = ?`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// affectedOne turns an UPDATE/DELETE that touched no rows into ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
