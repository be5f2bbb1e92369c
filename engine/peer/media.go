package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"
)

// MediaSource supplies encoded local media. Reads block until the next
// sample is due; returning io.EOF ends the stream.
type MediaSource interface {
	// ReadAudio returns the next Opus frame.
	ReadAudio(ctx context.Context) (media.Sample, error)
	// ReadVideo returns the next VP8 frame.
	ReadVideo(ctx context.Context) (media.Sample, error)
}

// CameraSwitcher is implemented by sources that can change the capturing
// camera.
type CameraSwitcher interface {
	SwitchCamera() error
}

const streamPrefix = "uid-"

// streamID names the media stream published by uid.
func streamID(uid uint32) string {
	return streamPrefix + strconv.FormatUint(uint64(uid), 10)
}

// parseStreamUID extracts the publisher uid from a remote stream id.
func parseStreamUID(id string) (uint32, bool) {
	if !strings.HasPrefix(id, streamPrefix) {
		return 0, false
	}
	uid, err := strconv.ParseUint(strings.TrimPrefix(id, streamPrefix), 10, 32)
	if err != nil || uid == 0 {
		return 0, false
	}
	return uint32(uid), true
}

func newLocalTracks(uid uint32) (audio, video *webrtc.TrackLocalStaticSample, err error) {
	sid := streamID(uid)
	audio, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", sid)
	if err != nil {
		return nil, nil, fmt.Errorf("create audio track: %w", err)
	}
	video, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", sid)
	if err != nil {
		return nil, nil, fmt.Errorf("create video track: %w", err)
	}
	return audio, video, nil
}

// pump copies samples from read to track while enabled reports true.
// Samples read while disabled are dropped so the source keeps its pace.
func pump(ctx context.Context, kind string, read func(context.Context) (media.Sample, error),
	track *webrtc.TrackLocalStaticSample, enabled func() bool,
) {
	log := logrus.WithFields(logrus.Fields{
		"function": "pump",
		"kind":     kind,
	})
	for ctx.Err() == nil {
		sample, err := read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.WithError(err).Warn("Media source failed")
			}
			return
		}
		if !enabled() {
			continue
		}
		if err := track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.WithError(err).Debug("Failed to write sample")
		}
	}
}

// drainRTCP reads RTCP for a sender so interceptors keep running. It returns
// when the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// drainRemote consumes a remote track. Decoding and rendering are left to the
// application.
func drainRemote(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// opusSilence is a 20ms Opus frame decoding to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource publishes silent audio at real-time pace and no video. It
// keeps the audio track flowing for clients without capture devices.
type SilenceSource struct {
	// FrameDuration is the pacing of audio frames. Zero selects 20ms.
	FrameDuration time.Duration
}

// ReadAudio implements MediaSource.
func (s SilenceSource) ReadAudio(ctx context.Context) (media.Sample, error) {
	d := s.FrameDuration
	if d <= 0 {
		d = 20 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-timer.C:
		return media.Sample{Data: append([]byte(nil), opusSilence...), Duration: d}, nil
	}
}

// ReadVideo implements MediaSource. It blocks until ctx is done.
func (s SilenceSource) ReadVideo(ctx context.Context) (media.Sample, error) {
	<-ctx.Done()
	return media.Sample{}, ctx.Err()
}
