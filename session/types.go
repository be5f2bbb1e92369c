package session

import (
	"fmt"
	"time"
)

// ConnectionState is the lifecycle state of a call session.
type ConnectionState int

const (
	// StateIdle is the state before Start.
	StateIdle ConnectionState = iota
	// StateInitializing validates configuration.
	StateInitializing
	// StatePermissionsPending waits for camera and microphone permission.
	StatePermissionsPending
	// StateJoining waits for the engine to report the join result.
	StateJoining
	// StateJoined is an active call.
	StateJoined
	// StateLeaving waits for the engine to confirm the leave.
	StateLeaving
	// StateLeft is the terminal state of a call that ended normally.
	StateLeft
	// StateFailed is the terminal state of a call that could not be set up.
	StateFailed
)

var stateNames = map[ConnectionState]string{
	StateIdle:               "Idle",
	StateInitializing:       "Initializing",
	StatePermissionsPending: "PermissionsPending",
	StateJoining:            "Joining",
	StateJoined:             "Joined",
	StateLeaving:            "Leaving",
	StateLeft:               "Left",
	StateFailed:             "Failed",
}

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

var validTransitions = map[ConnectionState][]ConnectionState{
	StateIdle:               {StateInitializing},
	StateInitializing:       {StatePermissionsPending, StateFailed},
	StatePermissionsPending: {StateJoining, StateFailed},
	StateJoining:            {StateJoined, StateFailed, StateLeft},
	StateJoined:             {StateLeaving, StateLeft},
	StateLeaving:            {StateLeft},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the session.
func (s ConnectionState) IsTerminal() bool {
	return s == StateLeft || s == StateFailed
}

// CameraFacing selects the capture camera.
type CameraFacing int

const (
	CameraFront CameraFacing = iota
	CameraBack
)

// String returns the string representation of the camera.
func (f CameraFacing) String() string {
	switch f {
	case CameraFront:
		return "front"
	case CameraBack:
		return "back"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// LocalMediaState holds the local capture and publish flags.
type LocalMediaState struct {
	AudioMuted   bool
	VideoEnabled bool
	Camera       CameraFacing
}

func defaultMediaState() LocalMediaState {
	return LocalMediaState{VideoEnabled: true, Camera: CameraFront}
}

// Snapshot is a consistent, read-only copy of a call session.
type Snapshot struct {
	SessionID string
	ChannelID string
	// LocalUID is 0 until the server assigns one when the session was
	// started without an explicit uid.
	LocalUID uint32
	Token    string
	State    ConnectionState

	// Participants holds the remote uids present in the channel, ascending.
	Participants []uint32
	Media        LocalMediaState
	Stats        Statistics
	Quality      QualityLevel

	JoinElapsed time.Duration
	// Err is the error that ended the session, if any.
	Err error
}

// HasParticipant reports whether uid is present in the channel.
func (s Snapshot) HasParticipant(uid uint32) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
