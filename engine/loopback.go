package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LoopbackOptions configures a Loopback engine.
type LoopbackOptions struct {
	// JoinDelay is the time between JoinChannel and the join result event.
	JoinDelay time.Duration
	// LeaveDelay is the time between LeaveChannel and the LeftEvent.
	LeaveDelay time.Duration
	// StatsInterval is the period of synthetic statistics. Zero disables them.
	StatsInterval time.Duration
	// AssignedUID is reported as the local uid when joining with uid 0.
	AssignedUID uint32
	// JoinFailureReason makes every join fail with this reason when non-zero.
	JoinFailureReason int
}

// DefaultLoopbackOptions returns options suitable for interactive demos.
func DefaultLoopbackOptions() LoopbackOptions {
	return LoopbackOptions{
		JoinDelay:     50 * time.Millisecond,
		LeaveDelay:    20 * time.Millisecond,
		StatsInterval: 2 * time.Second,
		AssignedUID:   1000,
	}
}

// Loopback is an in-process MediaEngine. It performs no capture or network
// I/O: commands are acknowledged with synthetic events, remote users are
// injected with the Simulate methods, and statistics are generated from the
// current local media state.
type Loopback struct {
	opts LoopbackOptions

	mu          sync.Mutex
	handler     Handler
	initialized bool
	released    bool
	profile     ChannelProfile

	videoEnabled bool
	previewing   bool
	audioMuted   bool
	localVideo   bool
	backCamera   bool

	conn      Connection
	joining   bool
	joined    bool
	joinStart time.Time
	remotes   map[uint32]struct{}

	failures map[string]error
	calls    []string

	events    chan Event
	done      chan struct{}
	statsStop chan struct{}
	wg        sync.WaitGroup
}

// NewLoopback creates a loopback engine.
func NewLoopback(opts LoopbackOptions) *Loopback {
	if opts.AssignedUID == 0 {
		opts.AssignedUID = 1000
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewLoopback",
		"join_delay":     opts.JoinDelay,
		"stats_interval": opts.StatsInterval,
	}).Info("Creating loopback media engine")

	return &Loopback{
		opts:       opts,
		localVideo: true,
		remotes:    make(map[uint32]struct{}),
		failures:   make(map[string]error),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// LoopbackFactory returns a Factory producing loopback engines.
func LoopbackFactory(opts LoopbackOptions) Factory {
	return func() (MediaEngine, error) {
		return NewLoopback(opts), nil
	}
}

// FailNext makes the next call of op (a MediaEngine method name) return err.
func (l *Loopback) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = err
}

// Calls returns the names of the commands issued so far, in order.
func (l *Loopback) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// record appends op to the call log and returns an injected failure, if
// any. Must be called with l.mu held.
func (l *Loopback) record(op string) error {
	l.calls = append(l.calls, op)
	if err, ok := l.failures[op]; ok {
		delete(l.failures, op)
		return err
	}
	if l.released {
		return ErrReleased
	}
	if !l.initialized && op != "Initialize" {
		return ErrNotInitialized
	}
	return nil
}

// Initialize implements MediaEngine.
func (l *Loopback) Initialize(appID string, profile ChannelProfile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.record("Initialize"); err != nil {
		return err
	}
	if appID == "" {
		return &Error{Op: "Initialize", Code: CodeInvalidAppID, Message: "empty app id"}
	}
	if l.initialized {
		return nil
	}
	l.initialized = true
	l.profile = profile

	l.wg.Add(1)
	go l.deliver()

	logrus.WithFields(logrus.Fields{
		"function": "Loopback.Initialize",
		"profile":  profile.String(),
	}).Debug("Loopback engine initialized")
	return nil
}

// RegisterEventHandler implements MediaEngine.
func (l *Loopback) RegisterEventHandler(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("RegisterEventHandler"); err != nil {
		return err
	}
	l.handler = h
	return nil
}

// UnregisterEventHandler implements MediaEngine.
func (l *Loopback) UnregisterEventHandler() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("UnregisterEventHandler"); err != nil {
		return err
	}
	l.handler = nil
	return nil
}

// EnableVideo implements MediaEngine.
func (l *Loopback) EnableVideo() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("EnableVideo"); err != nil {
		return err
	}
	l.videoEnabled = true
	return nil
}

// StartPreview implements MediaEngine.
func (l *Loopback) StartPreview() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("StartPreview"); err != nil {
		return err
	}
	l.previewing = true
	return nil
}

// JoinChannel implements MediaEngine.
func (l *Loopback) JoinChannel(token, channelID string, uid uint32, opts JoinOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.record("JoinChannel"); err != nil {
		return err
	}
	if l.handler == nil {
		return ErrNoHandler
	}
	if l.joining || l.joined {
		return ErrAlreadyInChannel
	}
	if channelID == "" {
		return &Error{Op: "JoinChannel", Code: CodeInvalidChannelName, Message: "empty channel id"}
	}

	l.joining = true
	l.joinStart = time.Now()
	l.conn = Connection{ChannelID: channelID, LocalUID: uid}

	logrus.WithFields(logrus.Fields{
		"function":   "Loopback.JoinChannel",
		"channel_id": channelID,
		"uid":        uid,
		"role":       opts.Role.String(),
		"has_token":  token != "",
	}).Debug("Loopback join scheduled")

	time.AfterFunc(l.opts.JoinDelay, l.completeJoin)
	return nil
}

func (l *Loopback) completeJoin() {
	l.mu.Lock()
	if l.released || !l.joining {
		l.mu.Unlock()
		return
	}
	l.joining = false
	elapsed := time.Since(l.joinStart)

	var ev Event
	if l.opts.JoinFailureReason != 0 {
		ev = JoinFailureEvent{Connection: l.conn, Elapsed: elapsed, Reason: l.opts.JoinFailureReason}
	} else {
		l.joined = true
		if l.conn.LocalUID == 0 {
			l.conn.LocalUID = l.opts.AssignedUID
		}
		ev = JoinSuccessEvent{Connection: l.conn, Elapsed: elapsed}
		l.startStatsLocked()
	}
	l.mu.Unlock()

	l.emit(ev)
}

// LeaveChannel implements MediaEngine.
func (l *Loopback) LeaveChannel() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.record("LeaveChannel"); err != nil {
		return err
	}
	if !l.joined && !l.joining {
		return ErrNotInChannel
	}

	conn := l.conn
	userCount := uint32(len(l.remotes) + 1)
	l.joined = false
	l.joining = false
	l.remotes = make(map[uint32]struct{})
	l.stopStatsLocked()

	time.AfterFunc(l.opts.LeaveDelay, func() {
		l.emit(LeftEvent{Connection: conn, Stats: RtcStats{UserCount: userCount}})
	})
	return nil
}

// SwitchCamera implements MediaEngine.
func (l *Loopback) SwitchCamera() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("SwitchCamera"); err != nil {
		return err
	}
	if !l.videoEnabled {
		return &Error{Op: "SwitchCamera", Code: CodeNotReady, Message: "video module disabled"}
	}
	l.backCamera = !l.backCamera
	return nil
}

// MuteLocalAudioStream implements MediaEngine.
func (l *Loopback) MuteLocalAudioStream(muted bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("MuteLocalAudioStream"); err != nil {
		return err
	}
	l.audioMuted = muted
	return nil
}

// EnableLocalVideo implements MediaEngine.
func (l *Loopback) EnableLocalVideo(enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("EnableLocalVideo"); err != nil {
		return err
	}
	l.localVideo = enabled
	return nil
}

// Release implements MediaEngine.
func (l *Loopback) Release() error {
	l.mu.Lock()
	l.calls = append(l.calls, "Release")
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.handler = nil
	l.joined = false
	l.joining = false
	l.stopStatsLocked()
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Loopback.Release",
	}).Debug("Loopback engine released")
	return nil
}

// SimulateUserJoined injects a remote user into the joined channel.
func (l *Loopback) SimulateUserJoined(uid uint32) error {
	l.mu.Lock()
	if !l.joined {
		l.mu.Unlock()
		return ErrNotInChannel
	}
	l.remotes[uid] = struct{}{}
	conn := l.conn
	l.mu.Unlock()

	l.emit(UserJoinedEvent{Connection: conn, RemoteUID: uid})
	return nil
}

// SimulateUserOffline removes a remote user from the joined channel.
func (l *Loopback) SimulateUserOffline(uid uint32, reason OfflineReason) error {
	l.mu.Lock()
	if !l.joined {
		l.mu.Unlock()
		return ErrNotInChannel
	}
	delete(l.remotes, uid)
	conn := l.conn
	l.mu.Unlock()

	l.emit(UserOfflineEvent{Connection: conn, RemoteUID: uid, Reason: reason})
	return nil
}

// SimulateKick removes the local client from the channel without a
// LeaveChannel call, as a server would on a ban or a lost connection.
func (l *Loopback) SimulateKick() error {
	l.mu.Lock()
	if !l.joined {
		l.mu.Unlock()
		return ErrNotInChannel
	}
	conn := l.conn
	l.joined = false
	l.remotes = make(map[uint32]struct{})
	l.stopStatsLocked()
	l.mu.Unlock()

	l.emit(LeftEvent{Connection: conn})
	return nil
}

// SimulateError emits an ErrorEvent.
func (l *Loopback) SimulateError(code int, message string) {
	l.emit(ErrorEvent{Code: code, Message: message})
}

// Emit delivers an arbitrary event to the registered handler.
func (l *Loopback) Emit(ev Event) {
	l.emit(ev)
}

func (l *Loopback) emit(ev Event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// deliver forwards queued events to the handler until the engine is
// released.
func (l *Loopback) deliver() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case ev := <-l.events:
			l.mu.Lock()
			h := l.handler
			l.mu.Unlock()
			if h == nil {
				logrus.WithFields(logrus.Fields{
					"function": "Loopback.deliver",
					"kind":     ev.Kind().String(),
				}).Debug("Dropping event, no handler registered")
				continue
			}
			h(ev)
		}
	}
}

// startStatsLocked starts the statistics ticker. Must be called with l.mu
// held.
func (l *Loopback) startStatsLocked() {
	if l.opts.StatsInterval <= 0 || l.statsStop != nil {
		return
	}
	stop := make(chan struct{})
	l.statsStop = stop

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.opts.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-l.done:
				return
			case <-ticker.C:
				for _, ev := range l.sampleStats() {
					l.emit(ev)
				}
			}
		}
	}()
}

// stopStatsLocked stops the statistics ticker. Must be called with l.mu held.
func (l *Loopback) stopStatsLocked() {
	if l.statsStop != nil {
		close(l.statsStop)
		l.statsStop = nil
	}
}

// sampleStats builds one round of synthetic statistics from the current
// local media state.
func (l *Loopback) sampleStats() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.joined {
		return nil
	}

	conn := l.conn
	events := []Event{
		RtcStatsEvent{Connection: conn, Stats: RtcStats{
			Duration:      time.Since(l.joinStart),
			UserCount:     uint32(len(l.remotes) + 1),
			LastmileDelay: 20 * time.Millisecond,
			CPUAppUsage:   3.5,
			CPUTotalUsage: 12.0,
		}},
	}

	video := LocalVideoStats{}
	if l.videoEnabled && l.localVideo {
		video = LocalVideoStats{
			SentBitrate:            600,
			SentFrameRate:          15,
			EncodedFrameWidth:      640,
			EncodedFrameHeight:     360,
			EncoderOutputFrameRate: 15,
		}
	}
	events = append(events, LocalVideoStatsEvent{Connection: conn, Stats: video})

	audio := LocalAudioStats{SentSampleRate: 48000, NumChannels: 1}
	if !l.audioMuted {
		audio.SentBitrate = 48
	}
	events = append(events, LocalAudioStatsEvent{Connection: conn, Stats: audio})

	for uid := range l.remotes {
		events = append(events,
			RemoteVideoStatsEvent{Connection: conn, Stats: RemoteVideoStats{
				UID:                    uid,
				Delay:                  40 * time.Millisecond,
				Width:                  640,
				Height:                 360,
				ReceivedBitrate:        550,
				DecoderOutputFrameRate: 15,
			}},
			RemoteAudioStatsEvent{Connection: conn, Stats: RemoteAudioStats{
				UID:                   uid,
				NetworkTransportDelay: 20 * time.Millisecond,
				JitterBufferDelay:     30 * time.Millisecond,
				NumChannels:           1,
				ReceivedSampleRate:    48000,
				ReceivedBitrate:       48,
			}},
		)
	}
	return events
}

// String implements fmt.Stringer for log output.
func (l *Loopback) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("loopback(channel=%q uid=%d joined=%t remotes=%d)",
		l.conn.ChannelID, l.conn.LocalUID, l.joined, len(l.remotes))
}
