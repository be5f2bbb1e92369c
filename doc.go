// Package rtcsession drives one real-time audio/video call against a media
// engine.
//
// A VideoCall validates the application configuration, obtains capture
// permissions, resolves a join token, joins a channel through a MediaEngine
// and keeps a snapshot of the call: connection state, participants, local
// media toggles, aggregated statistics and a coarse quality level. The state
// machine itself lives in the session package; this package wires it to a
// concrete engine and token provider chosen by Options.
//
// # Getting Started
//
//	options := rtcsession.NewOptions()
//	options.AppID = "my-app-id"
//	options.Certificate = os.Getenv("RTC_APP_CERTIFICATE")
//
//	call, err := rtcsession.NewVideoCall(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer call.Close()
//
//	call.OnStateChange(func(prev, next session.ConnectionState) {
//	    fmt.Printf("%s -> %s\n", prev, next)
//	})
//	call.OnEnded(func(snap session.Snapshot) {
//	    fmt.Printf("call ended after %s\n", snap.Stats.Network.Duration)
//	})
//
//	if err := call.Join(ctx, "room-42", "", 0); err != nil {
//	    log.Fatal(err)
//	}
//
// # Engines
//
// EngineLoopback runs entirely in process and is meant for demos and tests;
// remote participants are injected through the engine returned by
// VideoCall.Loopback. EngineWebRTC publishes Opus and VP8 tracks to an SFU
// through pion/webrtc, negotiated over a websocket signaling server.
//
// # Tokens
//
// An explicit token passed to Join is always used as is. Otherwise a token is
// requested from Options.TokenServerURL when set, or built locally from
// Options.Certificate. Locally built tokens are meant for development only;
// production deployments should issue tokens from a trusted server such as
// the one in examples/token_server.
package rtcsession
