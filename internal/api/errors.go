package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Op names the backend call that failed.
type Op string

const (
	OpLogin  Op = "login"
	OpSignup Op = "signup"
	OpStatus Op = "status"
	OpVoice  Op = "voice"
	OpPhoto  Op = "photo"
)

var (
	// ErrUnauthenticated is what the local handlers answer with when a request carries no
	// session. The client itself never returns it: an empty session is sent without a cookie
	// and the backend decides.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrLoginAfterSignup means the account was created but the automatic login failed.
	ErrLoginAfterSignup = errors.New("signed up but automatic login failed")
	// ErrMissingCookie means the login response carried no session cookie.
	ErrMissingCookie = errors.New("login response carried no session cookie")
)

// TransportError is a failure below HTTP: DNS, connection, timeout, cancellation.
type TransportError struct {
	Op  Op
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op         Op
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// PayloadError is a 2xx response whose body could not be used.
type PayloadError struct {
	Op  Op
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// UserMessage maps a client error to the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthenticated) {
		return "Please sign in again."
	}
	if errors.Is(err, ErrLoginAfterSignup) {
		return "Your account was created, but signing in failed. Please sign in."
	}

	var op Op
	var statusErr *StatusError
	var transportErr *TransportError
	var payloadErr *PayloadError
	switch {
	case errors.As(err, &statusErr):
		op = statusErr.Op
		if op == OpLogin {
			return "The email or password is incorrect."
		}
		if statusErr.StatusCode == http.StatusUnauthorized {
			return "Please sign in again."
		}
	case errors.As(err, &transportErr):
		op = transportErr.Op
		if op != OpSignup {
			return "Could not reach the server. Check your connection and try again."
		}
	case errors.As(err, &payloadErr):
		op = payloadErr.Op
	case errors.Is(err, ErrMissingCookie):
		op = OpLogin
	}

	switch op {
	case OpLogin:
		return "Signing in failed. Please try again."
	case OpSignup:
		return "Something went wrong while signing up."
	case OpStatus:
		return "Could not check your counseling status."
	case OpVoice:
		return "Sending your voice message failed. Please try again."
	case OpPhoto:
		return "Uploading the photo failed. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// HTTPStatus picks the status a proxy should answer with for err.
func HTTPStatus(err error) int {
	var statusErr *StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return statusErr.StatusCode
		}
		if statusErr.Op == OpLogin {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
