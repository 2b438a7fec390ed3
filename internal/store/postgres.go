package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"
const pqForeignKeyViolation = "23503"

// PostgresDB is the production backend. Tables come from the migrations
// directory; Init only checks connectivity.
type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

// newPostgresWithDB wraps an existing handle, used with sqlmock.
func newPostgresWithDB(d *sql.DB) *PostgresDB {
	return &PostgresDB{db: d}
}

func (p *PostgresDB) Init() error {
	return p.db.Ping()
}

func (p *PostgresDB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresDB) Close() error                   { return p.db.Close() }

func pqCode(err error) (string, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

func (p *PostgresDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	out := *u
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(username,email,password,bio,profile_pic,created_at) VALUES($1,$2,$3,$4,$5,now()) RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, nullString(u.Bio), nullString(u.ProfilePic)).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if code, constraint := pqCode(err); code == pqUniqueViolation {
			switch constraint {
			case "users_username_key":
				return nil, ErrUsernameTaken
			case "users_email_key":
				return nil, ErrEmailTaken
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &out, nil
}

func (p *PostgresDB) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,username,email,password,bio,profile_pic,created_at FROM users WHERE `+where+` = $1`, arg)
	var u User
	var bio, pic sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &bio, &pic, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Bio = nullStringPtr(bio)
	u.ProfilePic = nullStringPtr(pic)
	return &u, nil
}

func (p *PostgresDB) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return p.getUser(ctx, "id", id)
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return p.getUser(ctx, "username", username)
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.getUser(ctx, "email", email)
}

func (p *PostgresDB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE id = $2`, hash, id)
	return affectedOne(res, err)
}

func (p *PostgresDB) UpdateProfile(ctx context.Context, id int64, bio, profilePic *string) (*User, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET bio = COALESCE($1, bio), profile_pic = COALESCE($2, profile_pic) WHERE id = $3`,
		nullString(bio), nullString(profilePic), id)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return p.GetUserByID(ctx, id)
}

func (p *PostgresDB) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens(token_id,revoked_at,expires_at) VALUES($1,$2,$3) ON CONFLICT (token_id) DO NOTHING`,
		tokenID, revokedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (p *PostgresDB) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1)`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return revoked, nil
}

func (p *PostgresDB) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresDB) CreatePost(ctx context.Context, post *Post) (*Post, error) {
	out := *post
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO posts(title,content,author_id,created_at) VALUES($1,$2,$3,now()) RETURNING id, created_at`,
		post.Title, post.Content, post.AuthorID).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &out, nil
}

func (p *PostgresDB) GetPost(ctx context.Context, id int64) (*Post, error) {
	var post Post
	err := p.db.QueryRowContext(ctx, `SELECT id,title,content,author_id,created_at FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.Title, &post.Content, &post.AuthorID, &post.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &post, nil
}

func (p *PostgresDB) ListPosts(ctx context.Context, authorID *int64) ([]*Post, error) {
	q := `SELECT id,title,content,author_id,created_at FROM posts`
	var args []interface{}
	if authorID != nil {
		q += ` WHERE author_id = $1`
		args = append(args, *authorID)
	}
	q += ` ORDER BY id DESC`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	posts := []*Post{}
	for rows.Next() {
		var post Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &post.AuthorID, &post.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

func (p *PostgresDB) UpdatePost(ctx context.Context, post *Post) error {
	res, err := p.db.ExecContext(ctx, `UPDATE posts SET title = $1, content = $2 WHERE id = $3`, post.Title, post.Content, post.ID)
	return affectedOne(res, err)
}

func (p *PostgresDB) DeletePost(ctx context.Context, id int64) error {
	// comments and likes go with it through ON DELETE CASCADE
	res, err := p.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return affectedOne(res, err)
}

func (p *PostgresDB) CreateComment(ctx context.Context, c *Comment) (*Comment, error) {
	out := *c
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO comments(text,user_id,post_id,created_at) VALUES($1,$2,$3,now()) RETURNING id, created_at`,
		c.Text, c.UserID, c.PostID).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if code, _ := pqCode(err); code == pqForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &out, nil
}

func (p *PostgresDB) GetComment(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := p.db.QueryRowContext(ctx, `SELECT id,text,user_id,post_id,created_at FROM comments WHERE id = $1`, id).
		Scan(&c.ID, &c.Text, &c.UserID, &c.PostID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &c, nil
}

func (p *PostgresDB) ListComments(ctx context.Context, postID int64) ([]*Comment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id,text,user_id,post_id,created_at FROM comments WHERE post_id = $1 ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	comments := []*Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.UserID, &c.PostID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (p *PostgresDB) UpdateComment(ctx context.Context, c *Comment) error {
	res, err := p.db.ExecContext(ctx, `UPDATE comments SET text = $1 WHERE id = $2`, c.Text, c.ID)
	return affectedOne(res, err)
}

func (p *PostgresDB) DeleteComment(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	return affectedOne(res, err)
}

func (p *PostgresDB) CreateLike(ctx context.Context, userID, postID int64) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO likes(user_id,post_id) VALUES($1,$2)`, userID, postID)
	if err != nil {
		switch code, _ := pqCode(err); code {
		case pqUniqueViolation:
			return ErrConflict
		case pqForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (p *PostgresDB) DeleteLike(ctx context.Context, userID, postID int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2`, userID, postID)
	return affectedOne(res, err)
}

func (p *PostgresDB) CountLikes(ctx context.Context, postID int64) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE post_id = $1`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
