// Package misc provides small helpers shared by the authorization flows:
// request cloning and header defaults, OAuth state generation and
// credential logging.
package misc

import (
	"errors"
	"net/http"
	"strings"
)

// EnsureHeader sets key to defaultValue only when the header is missing or blank.
func EnsureHeader(target http.Header, key, defaultValue string) {
	if target == nil {
		return
	}
	if strings.TrimSpace(target.Get(key)) != "" {
		return
	}
	if val := strings.TrimSpace(defaultValue); val != "" {
		target.Set(key, val)
	}
}

// ErrBodyNotReplayable is returned when a request carries a body but no GetBody,
// so a copy could only be made by draining the caller's reader.
var ErrBodyNotReplayable = errors.New("request body is not replayable: GetBody is nil")

// CloneRequest returns a deep copy of req whose body can be consumed without
// affecting the original. req itself is never modified.
func CloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
