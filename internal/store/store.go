// Package store holds persistence for users, the token revocation ledger and
// blog content, with memory, SQLite and Postgres adapters plus a Redis-backed
// ledger.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
)

// Users is the credential store.
type Users interface {
	// CreateUser inserts u and fills in its ID. Uniqueness violations come
	// back as ErrUsernameTaken or ErrEmailTaken.
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, bio, profilePic *string) (*User, error)
}

// Ledger records revoked token ids. Revocation is append-only.
type Ledger interface {
	// Revoke is idempotent: revoking an id twice is not an error.
	Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// PruneExpired drops entries whose token expired before now and
	// returns how many were removed.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

type Posts interface {
	CreatePost(ctx context.Context, p *Post) (*Post, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	// ListPosts returns posts newest first, optionally only those of authorID.
	ListPosts(ctx context.Context, authorID *int64) ([]*Post, error)
	UpdatePost(ctx context.Context, p *Post) error
	// DeletePost also removes the post's comments and likes.
	DeletePost(ctx context.Context, id int64) error
}

type Comments interface {
	CreateComment(ctx context.Context, c *Comment) (*Comment, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	ListComments(ctx context.Context, postID int64) ([]*Comment, error)
	UpdateComment(ctx context.Context, c *Comment) error
	DeleteComment(ctx context.Context, id int64) error
}

type Likes interface {
	// CreateLike returns ErrConflict when userID already likes postID.
	CreateLike(ctx context.Context, userID, postID int64) error
	// DeleteLike returns ErrNotFound when there is no such like.
	DeleteLike(ctx context.Context, userID, postID int64) error
	CountLikes(ctx context.Context, postID int64) (int64, error)
}

// DB is everything the HTTP layer needs from a backend.
type DB interface {
	Users
	Ledger
	Posts
	Comments
	Likes
	Init() error
	Ping(ctx context.Context) error
	Close() error
}
