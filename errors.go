package rtcsession

import "errors"

var (
	// ErrNoSignalURL indicates EngineWebRTC without Options.Peer.SignalURL.
	ErrNoSignalURL = errors.New("webrtc engine requires a signaling url")

	// ErrUnknownEngine indicates an unsupported Options.Engine value.
	ErrUnknownEngine = errors.New("unknown engine kind")
)
