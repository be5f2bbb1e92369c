package engine

import "fmt"

// Error and join failure codes reported by engines. The numeric values follow
// the codes used by common RTC SDKs so that server-side reasons pass through
// unchanged.
const (
	CodeOK                   = 0
	CodeFailed               = 1
	CodeInvalidArgument      = 2
	CodeNotReady             = 3
	CodeRefused              = 5
	CodeTimedOut             = 10
	CodeJoinChannelRejected  = 17
	CodeLeaveChannelRejected = 18
	CodeInvalidAppID         = 101
	CodeInvalidChannelName   = 102
	CodeTokenExpired         = 109
	CodeInvalidToken         = 110
	CodeConnectionLost       = 112
	CodeLoadMediaEngine      = 1001
	CodeCameraNotAuthorized  = 1501
)

// OfflineReason explains why a remote user left the channel.
type OfflineReason int

const (
	// OfflineQuit means the remote user left voluntarily.
	OfflineQuit OfflineReason = iota
	// OfflineDropped means no data was received from the user for too long.
	OfflineDropped
	// OfflineBecameAudience means the user switched from broadcaster to
	// audience.
	OfflineBecameAudience
)

// String returns the string representation of the reason.
func (r OfflineReason) String() string {
	switch r {
	case OfflineQuit:
		return "Quit"
	case OfflineDropped:
		return "Dropped"
	case OfflineBecameAudience:
		return "BecameAudience"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}
