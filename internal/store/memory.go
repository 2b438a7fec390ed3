package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type likeKey struct{ userID, postID int64 }

// MemDB keeps everything in maps. Useful for tests and local runs; all data
// is lost on exit.
type MemDB struct {
	mu       sync.Mutex
	users    map[int64]*User
	byName   map[string]int64
	byEmail  map[string]int64
	revoked  map[string]RevokedToken
	posts    map[int64]*Post
	comments map[int64]*Comment
	likes    map[likeKey]struct{}
	seq      int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:    map[int64]*User{},
		byName:   map[string]int64{},
		byEmail:  map[string]int64{},
		revoked:  map[string]RevokedToken{},
		posts:    map[int64]*Post{},
		comments: map[int64]*Comment{},
		likes:    map[likeKey]struct{}{},
	}
}

func (m *MemDB) Init() error                    { return nil }
func (m *MemDB) Ping(ctx context.Context) error { return nil }
func (m *MemDB) Close() error                   { return nil }

func (m *MemDB) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MemDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return nil, ErrUsernameTaken
	}
	if _, ok := m.byEmail[u.Email]; ok {
		return nil, ErrEmailTaken
	}
	cp := *u
	cp.ID = m.nextID()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.users[cp.ID] = &cp
	m.byName[cp.Username] = cp.ID
	m.byEmail[cp.Email] = cp.ID
	out := cp
	return &out, nil
}

func (m *MemDB) userCopy(id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCopy(id)
}

func (m *MemDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return m.userCopy(id)
}

func (m *MemDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return m.userCopy(id)
}

func (m *MemDB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemDB) UpdateProfile(ctx context.Context, id int64, bio, profilePic *string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if bio != nil {
		v := *bio
		u.Bio = &v
	}
	if profilePic != nil {
		v := *profilePic
		u.ProfilePic = &v
	}
	return m.userCopy(id)
}

func (m *MemDB) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[tokenID]; ok {
		return nil
	}
	m.revoked[tokenID] = RevokedToken{TokenID: tokenID, RevokedAt: revokedAt, ExpiresAt: expiresAt}
	return nil
}

func (m *MemDB) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func (m *MemDB) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rt := range m.revoked {
		if rt.ExpiresAt.Before(now) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

func (m *MemDB) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.ID = m.nextID()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.posts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemDB) GetPost(ctx context.Context, id int64) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemDB) ListPosts(ctx context.Context, authorID *int64) ([]*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Post, 0, len(m.posts))
	for _, p := range m.posts {
		if authorID != nil && p.AuthorID != *authorID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemDB) UpdatePost(ctx context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.posts[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = p.Title
	cur.Content = p.Content
	return nil
}

func (m *MemDB) DeletePost(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	for k := range m.likes {
		if k.postID == id {
			delete(m.likes, k)
		}
	}
	return nil
}

func (m *MemDB) CreateComment(ctx context.Context, c *Comment) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.ID = m.nextID()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.comments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemDB) GetComment(ctx context.Context, id int64) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemDB) ListComments(ctx context.Context, postID int64) ([]*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Comment{}
	for _, c := range m.comments {
		if c.PostID == postID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemDB) UpdateComment(ctx context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Text = c.Text
	return nil
}

func (m *MemDB) DeleteComment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

func (m *MemDB) CreateLike(ctx context.Context, userID, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return ErrNotFound
	}
	k := likeKey{userID, postID}
	if _, ok := m.likes[k]; ok {
		return ErrConflict
	}
	m.likes[k] = struct{}{}
	return nil
}

func (m *MemDB) DeleteLike(ctx context.Context, userID, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey{userID, postID}
	if _, ok := m.likes[k]; !ok {
		return ErrNotFound
	}
	delete(m.likes, k)
	return nil
}

func (m *MemDB) CountLikes(ctx context.Context, postID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.likes {
		if k.postID == postID {
			n++
		}
	}
	return n, nil
}
