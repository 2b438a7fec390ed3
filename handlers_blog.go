package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/blogauth/internal/auth"
	"github.com/example/blogauth/internal/store"
)

type postView struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type commentView struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	UserID    int64     `json:"user_id"`
	PostID    int64     `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

type profileView struct {
	ID         int64   `json:"id"`
	Username   string  `json:"username"`
	Bio        *string `json:"bio"`
	ProfilePic *string `json:"profile_pic"`
}

type listView struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

func newPostView(p *store.Post) postView {
	return postView{ID: p.ID, Title: p.Title, Content: p.Content, AuthorID: p.AuthorID, CreatedAt: p.CreatedAt}
}

func newCommentView(c *store.Comment) commentView {
	return commentView{ID: c.ID, Text: c.Text, UserID: c.UserID, PostID: c.PostID, CreatedAt: c.CreatedAt}
}

func newProfileView(u *store.User) profileView {
	return profileView{ID: u.ID, Username: u.Username, Bio: u.Bio, ProfilePic: u.ProfilePic}
}

// pathID reads the numeric {id} route variable. Out-of-range values are
// treated as a missing resource.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, notFoundError()
	}
	return id, nil
}

// authorize applies the ownership policy for the caller on a resource owned
// by ownerID.
func authorize(r *http.Request, ownerID int64) error {
	id := auth.IdentityFromContext(r.Context())
	if auth.AuthorizeMutation(ownerID, id.UserID) != auth.Allowed {
		return forbiddenError()
	}
	return nil
}

func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.DB.GetUserByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", newProfileView(user))
}

func (a *App) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	var in struct {
		Bio        *string `json:"bio"`
		ProfilePic *string `json:"profile_pic"`
	}
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.DB.UpdateProfile(r.Context(), id.UserID, in.Bio, in.ProfilePic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated", newProfileView(user))
}

func (a *App) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	var in struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := requireFields(
		[2]string{"Title", in.Title},
		[2]string{"Content", in.Content},
	); err != nil {
		a.fail(w, r, err)
		return
	}
	post, err := a.DB.CreatePost(r.Context(), &store.Post{Title: in.Title, Content: in.Content, AuthorID: id.UserID})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Post created", newPostView(post))
}

func (a *App) listPosts(w http.ResponseWriter, r *http.Request, authorID *int64) {
	posts, err := a.DB.ListPosts(r.Context(), authorID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]postView, 0, len(posts))
	for _, p := range posts {
		items = append(items, newPostView(p))
	}
	writeSuccess(w, http.StatusOK, "Posts fetched", listView{Items: items, Total: len(items)})
}

func (a *App) HandleListPosts(w http.ResponseWriter, r *http.Request) {
	a.listPosts(w, r, nil)
}

func (a *App) HandleMyPosts(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	a.listPosts(w, r, &id.UserID)
}

func (a *App) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	post, err := a.DB.GetPost(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]postView{"item": newPostView(post)})
}

func (a *App) HandleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	ctx := r.Context()
	post, err := a.DB.GetPost(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := authorize(r, post.AuthorID); err != nil {
		a.fail(w, r, err)
		return
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if err := a.DB.UpdatePost(ctx, post); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post updated", newPostView(post))
}

func (a *App) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := r.Context()
	post, err := a.DB.GetPost(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := authorize(r, post.AuthorID); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.DB.DeletePost(ctx, id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post deleted", nil)
}

func commentText(r *http.Request) (string, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Text) == "" {
		return "", validationError("Comment text is required")
	}
	return in.Text, nil
}

func (a *App) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	postID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	text, err := commentText(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// CreateComment reports a missing post as ErrNotFound
	c, err := a.DB.CreateComment(r.Context(), &store.Comment{Text: text, UserID: id.UserID, PostID: postID})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Comment added successfully", newCommentView(c))
}

func (a *App) HandleListComments(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if _, err := a.DB.GetPost(ctx, postID); err != nil {
		a.fail(w, r, err)
		return
	}
	comments, err := a.DB.ListComments(ctx, postID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]commentView, 0, len(comments))
	for _, c := range comments {
		items = append(items, newCommentView(c))
	}
	writeSuccess(w, http.StatusOK, "", listView{Items: items, Total: len(items)})
}

func (a *App) HandleUpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	text, err := commentText(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := r.Context()
	c, err := a.DB.GetComment(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := authorize(r, c.UserID); err != nil {
		a.fail(w, r, err)
		return
	}
	c.Text = text
	if err := a.DB.UpdateComment(ctx, c); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Comment updated", newCommentView(c))
}

func (a *App) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := r.Context()
	c, err := a.DB.GetComment(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := authorize(r, c.UserID); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.DB.DeleteComment(ctx, id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Comment deleted successfully", nil)
}

func (a *App) HandleLike(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	postID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	err = a.DB.CreateLike(r.Context(), id.UserID, postID)
	if errors.Is(err, store.ErrConflict) {
		a.fail(w, r, conflictError("Post already liked"))
		return
	} else if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Post liked", nil)
}

func (a *App) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	postID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.DB.DeleteLike(r.Context(), id.UserID, postID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post unliked", nil)
}

func (a *App) HandleLikesCount(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctx := r.Context()
	if _, err := a.DB.GetPost(ctx, postID); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.DB.CountLikes(ctx, postID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Likes fetched", map[string]int64{"post_id": postID, "likes": n})
}
