package engine

import "fmt"

// ChannelProfile selects how the engine optimizes a channel.
type ChannelProfile int

const (
	// ProfileCommunication is a symmetric call where everyone publishes.
	ProfileCommunication ChannelProfile = iota
	// ProfileLiveBroadcasting separates broadcasters from audience members.
	ProfileLiveBroadcasting
)

// String returns the string representation of the profile.
func (p ChannelProfile) String() string {
	switch p {
	case ProfileCommunication:
		return "Communication"
	case ProfileLiveBroadcasting:
		return "LiveBroadcasting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ClientRole is the role requested when joining a channel.
type ClientRole int

const (
	// RoleBroadcaster grants publish rights.
	RoleBroadcaster ClientRole = iota + 1
	// RoleAudience subscribes only.
	RoleAudience
)

// String returns the string representation of the role.
func (r ClientRole) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	case RoleAudience:
		return "audience"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// JoinOptions carries per-join settings.
type JoinOptions struct {
	Role ClientRole
}

// Connection identifies the channel an event belongs to.
type Connection struct {
	ChannelID string
	LocalUID  uint32
}

// Handler receives engine events. It may be called from any goroutine.
type Handler func(Event)

// MediaEngine is the command surface of a real-time media engine.
//
// Commands return once the engine has accepted them; their outcome is
// reported asynchronously through the registered Handler. An engine is used
// for exactly one session and must not be reused after Release.
type MediaEngine interface {
	// Initialize prepares the engine for the given application.
	Initialize(appID string, profile ChannelProfile) error

	// RegisterEventHandler installs the single event handler.
	RegisterEventHandler(h Handler) error

	// UnregisterEventHandler removes the event handler. Events generated
	// afterwards are discarded.
	UnregisterEventHandler() error

	// EnableVideo turns on the video module.
	EnableVideo() error

	// StartPreview starts local capture before joining.
	StartPreview() error

	// JoinChannel joins channelID. A uid of 0 lets the server assign one.
	JoinChannel(token, channelID string, uid uint32, opts JoinOptions) error

	// LeaveChannel leaves the current channel. Completion is reported with
	// a LeftEvent.
	LeaveChannel() error

	// SwitchCamera toggles between the front and back camera.
	SwitchCamera() error

	// MuteLocalAudioStream stops or resumes publishing local audio.
	MuteLocalAudioStream(muted bool) error

	// EnableLocalVideo stops or resumes local video capture.
	EnableLocalVideo(enabled bool) error

	// Release frees all engine resources. Calling Release more than once
	// is allowed.
	Release() error
}

// Factory creates a fresh engine instance.
type Factory func() (MediaEngine, error)
