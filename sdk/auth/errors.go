package auth

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when a service has nothing stored.
var ErrNoCredentials = errors.New("no credentials stored")

// UnknownServiceError indicates that no authenticator matches a name, URL or host.
type UnknownServiceError struct {
	Hint string
}

func (e *UnknownServiceError) Error() string {
	if e == nil || e.Hint == "" {
		return "oksocial auth: no service specified"
	}
	return fmt.Sprintf("oksocial auth: unknown service %q", e.Hint)
}

// StageError records which step of an authorization failed.
type StageError struct {
	Service string
	Stage   string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Service, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
