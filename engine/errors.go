package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine commands.
var (
	// ErrNotInitialized indicates a command before Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrReleased indicates a command after Release.
	ErrReleased = errors.New("engine released")

	// ErrNotInChannel indicates a channel command while not joined.
	ErrNotInChannel = errors.New("not in a channel")

	// ErrAlreadyInChannel indicates JoinChannel while a join is active.
	ErrAlreadyInChannel = errors.New("already in a channel")

	// ErrNoHandler indicates JoinChannel without a registered handler.
	ErrNoHandler = errors.New("no event handler registered")
)

// Error is a command failure carrying an engine error code.
type Error struct {
	Op      string
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: engine error %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: engine error %d: %s", e.Op, e.Code, e.Message)
}

// CodeOf extracts the engine error code from err, if it carries one.
func CodeOf(err error) (int, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}
