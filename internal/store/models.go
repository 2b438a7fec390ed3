package store

import "time"

// User represents a registered user. PasswordHash never leaves the server.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Bio          *string
	ProfilePic   *string
	CreatedAt    time.Time
}

// RevokedToken is a ledger entry. ExpiresAt is the revoked token's own
// expiry; past it the entry can be pruned because the token is dead anyway.
type RevokedToken struct {
	TokenID   string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// Post is a blog post owned by AuthorID.
type Post struct {
	ID        int64
	Title     string
	Content   string
	AuthorID  int64
	CreatedAt time.Time
}

// Comment is a comment on a post owned by UserID.
type Comment struct {
	ID        int64
	Text      string
	UserID    int64
	PostID    int64
	CreatedAt time.Time
}
