package peer

import (
	"slices"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/opd-ai/rtcsession/engine"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// counter is the last observed cumulative value of one RTP stream.
type counter struct {
	bytes  uint64
	frames uint32
	at     time.Time
}

// statsMapper converts pion stats reports into engine statistics events.
// Bitrates and frame rates are derived from the difference between
// consecutive reports, so the first report yields zero rates.
type statsMapper struct {
	prev map[string]counter
}

func newStatsMapper() *statsMapper {
	return &statsMapper{prev: make(map[string]counter)}
}

// delta records a stream's counters and returns the rates since the previous
// report.
func (m *statsMapper) delta(id string, bytes uint64, frames uint32, at time.Time) (kbps, fps uint32) {
	prev, ok := m.prev[id]
	m.prev[id] = counter{bytes: bytes, frames: frames, at: at}
	if !ok {
		return 0, 0
	}
	secs := at.Sub(prev.at).Seconds()
	if secs <= 0 || bytes < prev.bytes {
		return 0, 0
	}
	kbps = uint32(float64(bytes-prev.bytes) * 8 / secs / 1000)
	if frames >= prev.frames {
		fps = uint32(float64(frames-prev.frames)/secs + 0.5)
	}
	return kbps, fps
}

// mapReport builds the statistics events for one report. base carries the
// fields pion cannot know (duration and user count); uidOf resolves the
// publisher of an inbound stream.
func (m *statsMapper) mapReport(report webrtc.StatsReport, conn engine.Connection, base engine.RtcStats,
	uidOf func(webrtc.SSRC) (uint32, bool),
) []engine.Event {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var (
		outbound   []webrtc.OutboundRTPStreamStats
		inbound    []webrtc.InboundRTPStreamStats
		remoteLoss = make(map[string]float64)
		rtt        time.Duration
	)
	for _, id := range ids {
		switch s := report[id].(type) {
		case webrtc.OutboundRTPStreamStats:
			outbound = append(outbound, s)
		case webrtc.InboundRTPStreamStats:
			inbound = append(inbound, s)
		case webrtc.RemoteInboundRTPStreamStats:
			loss := s.FractionLost * 100
			if loss > remoteLoss[s.Kind] {
				remoteLoss[s.Kind] = loss
			}
			if rtt == 0 && s.RoundTripTime > 0 {
				rtt = seconds(s.RoundTripTime)
			}
		case webrtc.ICECandidatePairStats:
			if s.Nominated && s.CurrentRoundTripTime > 0 {
				rtt = seconds(s.CurrentRoundTripTime)
			}
		}
	}

	rtc := base
	rtc.LastmileDelay = rtt / 2
	for _, loss := range remoteLoss {
		if loss > rtc.TxPacketLossRate {
			rtc.TxPacketLossRate = loss
		}
	}

	seen := make(map[string]bool, len(outbound)+len(inbound))
	var localEvents []engine.Event
	for _, s := range outbound {
		seen[s.ID] = true
		kbps, fps := m.delta(s.ID, s.BytesSent, s.FramesEncoded, s.Timestamp.Time())
		rtc.TxKBitRate += kbps
		switch s.Kind {
		case "video":
			if s.FramesPerSecond > 0 {
				fps = uint32(s.FramesPerSecond + 0.5)
			}
			localEvents = append(localEvents, engine.LocalVideoStatsEvent{
				Connection: conn,
				Stats: engine.LocalVideoStats{
					SentBitrate:            kbps,
					SentFrameRate:          fps,
					EncodedFrameWidth:      s.FrameWidth,
					EncodedFrameHeight:     s.FrameHeight,
					EncoderOutputFrameRate: fps,
					TxPacketLossRate:       remoteLoss["video"],
				},
			})
		case "audio":
			localEvents = append(localEvents, engine.LocalAudioStatsEvent{
				Connection: conn,
				Stats: engine.LocalAudioStats{
					SentBitrate:      kbps,
					SentSampleRate:   opusSampleRate,
					NumChannels:      opusChannels,
					TxPacketLossRate: remoteLoss["audio"],
				},
			})
		}
	}

	var (
		remoteEvents   []engine.Event
		received, lost int64
	)
	for _, s := range inbound {
		seen[s.ID] = true
		kbps, fps := m.delta(s.ID, s.BytesReceived, s.FramesDecoded, s.Timestamp.Time())
		rtc.RxKBitRate += kbps
		received += int64(s.PacketsReceived)
		if s.PacketsLost > 0 {
			lost += int64(s.PacketsLost)
		}

		uid, ok := uidOf(s.SSRC)
		if !ok {
			continue
		}
		bufferDelay := time.Duration(0)
		if s.JitterBufferEmittedCount > 0 {
			bufferDelay = seconds(s.JitterBufferDelay / float64(s.JitterBufferEmittedCount))
		}
		switch s.Kind {
		case "video":
			remoteEvents = append(remoteEvents, engine.RemoteVideoStatsEvent{
				Connection: conn,
				Stats: engine.RemoteVideoStats{
					UID:                    uid,
					Delay:                  bufferDelay,
					Width:                  s.FrameWidth,
					Height:                 s.FrameHeight,
					ReceivedBitrate:        kbps,
					DecoderOutputFrameRate: fps,
					PacketLossRate:         lossRate(s.PacketsReceived, s.PacketsLost),
					TotalFrozenTime:        seconds(s.TotalFreezesDuration),
				},
			})
		case "audio":
			remoteEvents = append(remoteEvents, engine.RemoteAudioStatsEvent{
				Connection: conn,
				Stats: engine.RemoteAudioStats{
					UID:                   uid,
					NetworkTransportDelay: rtt / 2,
					JitterBufferDelay:     bufferDelay,
					AudioLossRate:         lossRate(s.PacketsReceived, s.PacketsLost),
					NumChannels:           opusChannels,
					ReceivedSampleRate:    opusSampleRate,
					ReceivedBitrate:       kbps,
				},
			})
		}
	}
	if received+lost > 0 {
		rtc.RxPacketLossRate = float64(lost) * 100 / float64(received+lost)
	}

	for id := range m.prev {
		if !seen[id] {
			delete(m.prev, id)
		}
	}

	events := make([]engine.Event, 0, 1+len(localEvents)+len(remoteEvents))
	events = append(events, engine.RtcStatsEvent{Connection: conn, Stats: rtc})
	events = append(events, localEvents...)
	return append(events, remoteEvents...)
}

func lossRate(received uint32, lost int32) float64 {
	if lost <= 0 {
		return 0
	}
	return float64(lost) * 100 / float64(int64(received)+int64(lost))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
