package engine

import (
	"fmt"
	"time"
)

// Kind identifies an event variant.
type Kind int

const (
	KindError Kind = iota
	KindJoinSuccess
	KindJoinFailure
	KindLeft
	KindUserJoined
	KindUserOffline
	KindRtcStats
	KindLocalVideoStats
	KindLocalAudioStats
	KindRemoteVideoStats
	KindRemoteAudioStats
)

var kindNames = map[Kind]string{
	KindError:            "Error",
	KindJoinSuccess:      "JoinSuccess",
	KindJoinFailure:      "JoinFailure",
	KindLeft:             "Left",
	KindUserJoined:       "UserJoined",
	KindUserOffline:      "UserOffline",
	KindRtcStats:         "RtcStats",
	KindLocalVideoStats:  "LocalVideoStats",
	KindLocalAudioStats:  "LocalAudioStats",
	KindRemoteVideoStats: "RemoteVideoStats",
	KindRemoteAudioStats: "RemoteAudioStats",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(k))
}

// Event is one of the engine event variants declared in this package. The
// set is closed: only types in this package implement it.
type Event interface {
	Kind() Kind
	isEvent()
}

// ErrorEvent reports an engine error that is not tied to a command.
type ErrorEvent struct {
	Code    int
	Message string
}

// JoinSuccessEvent reports that the local client joined the channel.
type JoinSuccessEvent struct {
	Connection Connection
	Elapsed    time.Duration
}

// JoinFailureEvent reports that joining the channel failed.
type JoinFailureEvent struct {
	Connection Connection
	Elapsed    time.Duration
	Reason     int
}

// LeftEvent reports that the local client is no longer in the channel,
// either because LeaveChannel completed or because the server removed it.
type LeftEvent struct {
	Connection Connection
	Stats      RtcStats
}

// UserJoinedEvent reports a remote user entering the channel.
type UserJoinedEvent struct {
	Connection Connection
	RemoteUID  uint32
	Elapsed    time.Duration
}

// UserOfflineEvent reports a remote user leaving the channel.
type UserOfflineEvent struct {
	Connection Connection
	RemoteUID  uint32
	Reason     OfflineReason
}

// RtcStatsEvent carries periodic connection statistics.
type RtcStatsEvent struct {
	Connection Connection
	Stats      RtcStats
}

// LocalVideoStatsEvent carries periodic local video statistics.
type LocalVideoStatsEvent struct {
	Connection Connection
	Stats      LocalVideoStats
}

// LocalAudioStatsEvent carries periodic local audio statistics.
type LocalAudioStatsEvent struct {
	Connection Connection
	Stats      LocalAudioStats
}

// RemoteVideoStatsEvent carries periodic statistics for one remote video
// stream.
type RemoteVideoStatsEvent struct {
	Connection Connection
	Stats      RemoteVideoStats
}

// RemoteAudioStatsEvent carries periodic statistics for one remote audio
// stream.
type RemoteAudioStatsEvent struct {
	Connection Connection
	Stats      RemoteAudioStats
}

func (ErrorEvent) Kind() Kind            { return KindError }
func (JoinSuccessEvent) Kind() Kind      { return KindJoinSuccess }
func (JoinFailureEvent) Kind() Kind      { return KindJoinFailure }
func (LeftEvent) Kind() Kind             { return KindLeft }
func (UserJoinedEvent) Kind() Kind       { return KindUserJoined }
func (UserOfflineEvent) Kind() Kind      { return KindUserOffline }
func (RtcStatsEvent) Kind() Kind         { return KindRtcStats }
func (LocalVideoStatsEvent) Kind() Kind  { return KindLocalVideoStats }
func (LocalAudioStatsEvent) Kind() Kind  { return KindLocalAudioStats }
func (RemoteVideoStatsEvent) Kind() Kind { return KindRemoteVideoStats }
func (RemoteAudioStatsEvent) Kind() Kind { return KindRemoteAudioStats }

func (ErrorEvent) isEvent()            {}
func (JoinSuccessEvent) isEvent()      {}
func (JoinFailureEvent) isEvent()      {}
func (LeftEvent) isEvent()             {}
func (UserJoinedEvent) isEvent()       {}
func (UserOfflineEvent) isEvent()      {}
func (RtcStatsEvent) isEvent()         {}
func (LocalVideoStatsEvent) isEvent()  {}
func (LocalAudioStatsEvent) isEvent()  {}
func (RemoteVideoStatsEvent) isEvent() {}
func (RemoteAudioStatsEvent) isEvent() {}
