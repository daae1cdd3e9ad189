package publish

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoOutput indicates the HTML output directory does not exist yet.
var ErrNoOutput = errors.New("html output directory not found (run a build first)")

// Typed errors enabling structured classification without string parsing upstream.

type AuthError struct {
	Op, Remote string
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.Remote, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

type PushRejectedError struct {
	Remote, Branch string
	Err            error
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push rejected %s@%s: %v", e.Remote, e.Branch, e.Err)
}
func (e *PushRejectedError) Unwrap() error { return e.Err }

// classifyPushError wraps push failures into typed variants when possible.
func classifyPushError(remote, branch string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "auth"), strings.Contains(l, "permission denied"):
		return &AuthError{Op: "push", Remote: remote, Err: err}
	case strings.Contains(l, "non-fast-forward"), strings.Contains(l, "rejected"):
		return &PushRejectedError{Remote: remote, Branch: branch, Err: err}
	default:
		return err
	}
}

// isPermanentPushError reports whether a push failure should not be retried.
func isPermanentPushError(err error) bool {
	var authErr *AuthError
	var rejectedErr *PushRejectedError
	if errors.As(err, &authErr) || errors.As(err, &rejectedErr) {
		return true
	}
	l := strings.ToLower(err.Error())
	return strings.Contains(l, "repository not found") || strings.Contains(l, "repository does not exist")
}
