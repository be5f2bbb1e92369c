package session

import (
	"time"

	"github.com/opd-ai/rtcsession/engine"
)

// NetworkStats holds the latest connection-level sample.
type NetworkStats struct {
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

// LocalVideoStats holds the latest local video sample.
type LocalVideoStats struct {
	SentBitrate            uint32
	SentFrameRate          uint32
	EncodedFrameWidth      uint32
	EncodedFrameHeight     uint32
	EncoderOutputFrameRate uint32
}

// LocalAudioStats holds the latest local audio sample.
type LocalAudioStats struct {
	SentBitrate    uint32
	SentSampleRate uint32
}

// RemoteStats holds the latest samples for one remote participant.
type RemoteStats struct {
	Video     engine.RemoteVideoStats
	Audio     engine.RemoteAudioStats
	UpdatedAt time.Time
}

// Statistics is the aggregated, latest-sample-only view of a call. Each
// engine statistics kind updates a disjoint part of it.
type Statistics struct {
	Network    NetworkStats
	LocalVideo LocalVideoStats
	LocalAudio LocalAudioStats
	Remote     map[uint32]RemoteStats
}

func newStatistics() Statistics {
	return Statistics{Remote: make(map[uint32]RemoteStats)}
}

// clone returns a copy that shares no mutable state with s.
func (s Statistics) clone() Statistics {
	out := s
	out.Remote = make(map[uint32]RemoteStats, len(s.Remote))
	for uid, rs := range s.Remote {
		out.Remote[uid] = rs
	}
	return out
}

func (s *Statistics) mergeRtc(in engine.RtcStats) {
	s.Network = NetworkStats{
		Duration:         in.Duration,
		UserCount:        in.UserCount,
		TxKBitRate:       in.TxKBitRate,
		RxKBitRate:       in.RxKBitRate,
		LastmileDelay:    in.LastmileDelay,
		CPUAppUsage:      in.CPUAppUsage,
		CPUTotalUsage:    in.CPUTotalUsage,
		TxPacketLossRate: in.TxPacketLossRate,
		RxPacketLossRate: in.RxPacketLossRate,
	}
}

func (s *Statistics) mergeLocalVideo(in engine.LocalVideoStats) {
	s.LocalVideo = LocalVideoStats{
		SentBitrate:            in.SentBitrate,
		SentFrameRate:          in.SentFrameRate,
		EncodedFrameWidth:      in.EncodedFrameWidth,
		EncodedFrameHeight:     in.EncodedFrameHeight,
		EncoderOutputFrameRate: in.EncoderOutputFrameRate,
	}
}

func (s *Statistics) mergeLocalAudio(in engine.LocalAudioStats) {
	s.LocalAudio = LocalAudioStats{
		SentBitrate:    in.SentBitrate,
		SentSampleRate: in.SentSampleRate,
	}
}

func (s *Statistics) mergeRemoteVideo(in engine.RemoteVideoStats, now time.Time) {
	rs := s.Remote[in.UID]
	rs.Video = in
	rs.UpdatedAt = now
	s.Remote[in.UID] = rs
}

func (s *Statistics) mergeRemoteAudio(in engine.RemoteAudioStats, now time.Time) {
	rs := s.Remote[in.UID]
	rs.Audio = in
	rs.UpdatedAt = now
	s.Remote[in.UID] = rs
}

// evictStale drops remote entries not updated for longer than maxAge and
// returns the evicted uids.
func (s *Statistics) evictStale(now time.Time, maxAge time.Duration) []uint32 {
	var evicted []uint32
	for uid, rs := range s.Remote {
		if now.Sub(rs.UpdatedAt) > maxAge {
			delete(s.Remote, uid)
			evicted = append(evicted, uid)
		}
	}
	return evicted
}
