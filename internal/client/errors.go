package client

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for client operations.
var (
	ErrRequest  = errors.New("request failed")
	ErrResponse = errors.New("unexpected response")
	ErrInvalid  = errors.New("upload rejected")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Errors lists every validation message for a 422.
	Errors []string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 1 {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Is reports validation failures as ErrInvalid.
func (e *APIError) Is(target error) bool {
	return target == ErrInvalid && e.Code == "validation_failed"
}
