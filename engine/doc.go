// Package engine defines the media engine binding consumed by the call
// session controller.
//
// A MediaEngine performs capture, encoding, transport and decoding for one
// channel. The controller only issues commands (join, leave, mute, switch
// camera) and observes the engine through a closed set of tagged events
// delivered to a single Handler:
//
//	ErrorEvent, JoinSuccessEvent, JoinFailureEvent, LeftEvent,
//	UserJoinedEvent, UserOfflineEvent, RtcStatsEvent,
//	LocalVideoStatsEvent, LocalAudioStatsEvent,
//	RemoteVideoStatsEvent, RemoteAudioStatsEvent
//
// Consumers dispatch with a type switch:
//
//	eng.RegisterEventHandler(func(ev engine.Event) {
//	    switch e := ev.(type) {
//	    case engine.JoinSuccessEvent:
//	        fmt.Println("joined as", e.Connection.LocalUID)
//	    case engine.UserJoinedEvent:
//	        fmt.Println("remote user", e.RemoteUID)
//	    }
//	})
//
// # Implementations
//
// Two implementations are provided, mirroring the simulation/real split used
// for packet delivery elsewhere:
//
//   - Loopback (this package): an in-process engine that acknowledges
//     commands with synthetic events and periodic statistics. Used by the
//     examples and by tests.
//   - peer.Engine (engine/peer): a WebRTC engine built on pion/webrtc that
//     talks to an SFU over websocket signaling.
//
// Engine implementations must deliver events for a single stream in the
// order they are generated. Handlers may be invoked from any goroutine.
package engine
