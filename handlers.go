package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/example/blogauth/internal/auth"
	"github.com/example/blogauth/internal/store"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accountView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validationError("Request body must be JSON")
	}
	return nil
}

// requireFields returns the first empty field, in order, as a validation error.
func requireFields(fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return validationError(f[0] + " is required")
		}
	}
	return nil
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := requireFields(
		[2]string{"Username", in.Username},
		[2]string{"Password", in.Password},
		[2]string{"Email", in.Email},
	); err != nil {
		a.fail(w, r, err)
		return
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		a.fail(w, r, passwordTooLongError())
		return
	}

	ctx := r.Context()
	if _, err := a.DB.GetUserByUsername(ctx, in.Username); err == nil {
		a.fail(w, r, conflictError("Username already exists"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		a.fail(w, r, err)
		return
	}
	if _, err := a.DB.GetUserByEmail(ctx, in.Email); err == nil {
		a.fail(w, r, conflictError("Email already exists"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		a.fail(w, r, err)
		return
	}

	digest, err := a.Hasher.Hash(in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	// the lookups above are advisory; the store's unique constraints decide
	user, err := a.DB.CreateUser(ctx, &store.User{Username: in.Username, Email: in.Email, PasswordHash: digest})
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		a.fail(w, r, conflictError("Username already exists"))
		return
	case errors.Is(err, store.ErrEmailTaken):
		a.fail(w, r, conflictError("Email already exists"))
		return
	case err != nil:
		a.fail(w, r, err)
		return
	}

	a.Log.WithField("user_id", user.ID).Info("user registered")
	writeSuccess(w, http.StatusCreated, "User created", accountView{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := requireFields(
		[2]string{"Username", in.Username},
		[2]string{"Password", in.Password},
	); err != nil {
		a.fail(w, r, err)
		return
	}

	// unknown user and wrong password look the same to the client
	badCredentials := authenticationError("Invalid username or password")
	user, err := a.DB.GetUserByUsername(r.Context(), in.Username)
	if errors.Is(err, store.ErrNotFound) {
		a.Hasher.VerifyNothing(in.Password)
		a.fail(w, r, badCredentials)
		return
	} else if err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.Hasher.Verify(user.PasswordHash, in.Password) {
		a.fail(w, r, badCredentials)
		return
	}

	access, err := a.Issuer.IssueAccess(user.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	refresh, err := a.Issuer.IssueRefresh(user.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", map[string]string{
		"access_token":  access.Value,
		"refresh_token": refresh.Value,
	})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	ctx := r.Context()

	if err := a.Ledger.Revoke(ctx, id.TokenID, a.now(), id.ExpiresAt); err != nil {
		a.fail(w, r, err)
		return
	}

	// A body is optional. When it names a refresh token of the same user,
	// that token is revoked as well.
	var in logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		a.Log.WithError(err).Debug("ignoring unreadable logout body")
	}
	if in.RefreshToken != "" {
		rid, err := a.Issuer.Verify(in.RefreshToken, auth.KindRefresh)
		switch {
		case err != nil:
			a.Log.WithError(err).Debug("logout refresh token not revoked")
		case rid.UserID != id.UserID:
			a.Log.WithFields(logrus.Fields{"user_id": id.UserID, "owner_id": rid.UserID}).Warn("logout with another user's refresh token")
		default:
			if err := a.Ledger.Revoke(ctx, rid.TokenID, a.now(), rid.ExpiresAt); err != nil {
				a.fail(w, r, err)
				return
			}
		}
	}

	writeSuccess(w, http.StatusOK, "Successfully logged out", nil)
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	user, err := a.DB.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User fetched", accountView{ID: user.ID, Username: user.Username, Email: user.Email})
}

// HandleRefresh trades a refresh token for a new access token. The refresh
// token itself stays valid until it expires or is revoked.
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	access, err := a.Issuer.IssueAccess(id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]string{"access_token": access.Value})
}

func (a *App) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	var in changePasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.OldPassword == "" || in.NewPassword == "" {
		a.fail(w, r, validationError("Both old and new passwords required"))
		return
	}
	if len(in.NewPassword) > auth.MaxPasswordBytes {
		a.fail(w, r, passwordTooLongError())
		return
	}

	ctx := r.Context()
	user, err := a.DB.GetUserByID(ctx, id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.Hasher.Verify(user.PasswordHash, in.OldPassword) {
		a.fail(w, r, authenticationError("Old password is incorrect"))
		return
	}

	digest, err := a.Hasher.Hash(in.NewPassword)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.DB.UpdatePassword(ctx, user.ID, digest); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Log.WithField("user_id", user.ID).Info("password changed")
	writeSuccess(w, http.StatusOK, "Password updated successfully", nil)
}
