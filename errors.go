package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/example/blogauth/internal/auth"
	"github.com/example/blogauth/internal/store"
)

// apiError is an error with a status and a message that is safe to show
// the client.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func validationError(msg string) error     { return &apiError{http.StatusBadRequest, msg} }
func authenticationError(msg string) error { return &apiError{http.StatusUnauthorized, msg} }
func forbiddenError() error                { return &apiError{http.StatusForbidden, "Forbidden"} }
func notFoundError() error                 { return &apiError{http.StatusNotFound, "Resource not found"} }
func conflictError(msg string) error       { return &apiError{http.StatusBadRequest, msg} }
func rateLimitError() error                { return &apiError{http.StatusTooManyRequests, "Too many requests"} }

func passwordTooLongError() error {
	return validationError(fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
}

type successBody struct {
	Success bool        `json:"success"`
	Message *string     `json:"message"`
	Data    interface{} `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("write json")
	}
}

// writeSuccess writes the success envelope. An empty message is sent as null.
func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	body := successBody{Success: true, Data: data}
	if message != "" {
		body.Message = &message
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Success: false, Error: message})
}

// fail writes err to the client. store.ErrNotFound becomes a 404 and an
// over-long password a 400; anything else that is not an apiError is logged
// and reported as a 500 without detail.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = notFoundError()
	case errors.Is(err, auth.ErrPasswordTooLong):
		err = passwordTooLongError()
	}
	var ae *apiError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.message)
		return
	}
	a.Log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
