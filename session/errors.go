package session

import (
	"errors"
	"fmt"
)

// Error categories. Every error surfaced by a Controller matches exactly
// one of these with errors.Is.
var (
	// ErrConfiguration indicates a missing or placeholder app id.
	ErrConfiguration = errors.New("configuration error")

	// ErrPermissionDenied indicates camera or microphone access was refused.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrJoinFailed indicates the engine could not join the channel.
	ErrJoinFailed = errors.New("join failed")

	// ErrCommand indicates an engine command failed during a live session.
	ErrCommand = errors.New("command failed")

	// ErrEngine indicates an asynchronous engine error report.
	ErrEngine = errors.New("engine error")

	// ErrEngineLifecycle indicates a command issued without a live engine.
	ErrEngineLifecycle = errors.New("no engine instance")
)

// Controller usage errors.
var (
	// ErrInvalidChannel indicates Start without a channel id.
	ErrInvalidChannel = errors.New("channel id must not be empty")

	// ErrAlreadyStarted indicates Start on a session past Idle.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotJoined indicates a media command outside the Joined state.
	ErrNotJoined = errors.New("session not joined")

	// ErrClosed indicates use of a closed controller.
	ErrClosed = errors.New("controller closed")

	// ErrNoEngineFactory indicates a controller configured without an
	// engine factory.
	ErrNoEngineFactory = errors.New("engine factory is required")
)

// ConfigurationError reports an unusable app id.
type ConfigurationError struct {
	AppID  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s. Set a valid App ID from the console", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// PermissionError reports refused or failed permission acquisition.
type PermissionError struct {
	// Err is the failure of the permission request, nil on a plain denial.
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permission error: %v. Allow camera and microphone access and retry", e.Err)
	}
	return "permission error: camera or microphone access denied. Allow access and retry"
}

func (e *PermissionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermissionDenied}
	}
	return []error{ErrPermissionDenied, e.Err}
}

// JoinError reports a failed join with the engine reason code.
type JoinError struct {
	Code int
	// Reason is the remediation text for Code.
	Reason string
	// Err is the failing setup command, nil for an asynchronous failure.
	Err error
}

func (e *JoinError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("join failed (code %d): %v. %s", e.Code, e.Err, e.Reason)
	}
	return fmt.Sprintf("join failed (code %d): %s", e.Code, e.Reason)
}

func (e *JoinError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrJoinFailed}
	}
	return []error{ErrJoinFailed, e.Err}
}

// CommandError reports a failed engine command during a live session.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrCommand, e.Err}
}

// EngineError is an error reported by the engine outside any command.
type EngineError struct {
	Code    int
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine error %d: %s", e.Code, Guidance(e.Code))
	}
	return fmt.Sprintf("engine error %d (%s): %s", e.Code, e.Message, Guidance(e.Code))
}

func (e *EngineError) Unwrap() error { return ErrEngine }
