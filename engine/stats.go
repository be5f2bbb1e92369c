package engine

import "time"

// RtcStats summarizes the connection as a whole. Rates are percentages in the
// range 0-100, bitrates are in Kbps.
type RtcStats struct {
	Duration         time.Duration
	UserCount        uint32
	TxKBitRate       uint32
	RxKBitRate       uint32
	LastmileDelay    time.Duration
	CPUAppUsage      float64
	CPUTotalUsage    float64
	TxPacketLossRate float64
	RxPacketLossRate float64
}

// LocalVideoStats describes the published video stream.
type LocalVideoStats struct {
	SentBitrate            uint32
	SentFrameRate          uint32
	EncodedFrameWidth      uint32
	EncodedFrameHeight     uint32
	EncoderOutputFrameRate uint32
	TxPacketLossRate       float64
}

// LocalAudioStats describes the published audio stream.
type LocalAudioStats struct {
	SentBitrate      uint32
	SentSampleRate   uint32
	NumChannels      uint32
	TxPacketLossRate float64
}

// RemoteVideoStats describes the video received from one remote user.
type RemoteVideoStats struct {
	UID                    uint32
	Delay                  time.Duration
	Width                  uint32
	Height                 uint32
	ReceivedBitrate        uint32
	DecoderOutputFrameRate uint32
	PacketLossRate         float64
	TotalFrozenTime        time.Duration
}

// RemoteAudioStats describes the audio received from one remote user.
type RemoteAudioStats struct {
	UID                   uint32
	NetworkTransportDelay time.Duration
	JitterBufferDelay     time.Duration
	AudioLossRate         float64
	NumChannels           uint32
	ReceivedSampleRate    uint32
	ReceivedBitrate       uint32
}
