package peer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/opd-ai/rtcsession/engine"
)

// Options configures an Engine.
type Options struct {
	// SignalURL is the websocket URL of the signaling server.
	SignalURL string
	// Header is sent with the websocket handshake.
	Header http.Header
	// ICEServers are used for NAT traversal.
	ICEServers []webrtc.ICEServer
	// DialTimeout bounds the signaling handshake.
	DialTimeout time.Duration
	// GatherTimeout bounds ICE gathering before the offer is sent with the
	// candidates found so far.
	GatherTimeout time.Duration
	// StatsInterval is the statistics period. Zero disables statistics.
	StatsInterval time.Duration
	// PingInterval is the signaling keepalive period. Zero disables it.
	PingInterval time.Duration
	// Source supplies local media. A nil source publishes empty tracks.
	Source MediaSource
}

// DefaultOptions returns options for the given signaling URL.
func DefaultOptions(signalURL string) Options {
	return Options{
		SignalURL: signalURL,
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		DialTimeout:   10 * time.Second,
		GatherTimeout: 5 * time.Second,
		StatsInterval: 2 * time.Second,
		PingInterval:  15 * time.Second,
	}
}

// Factory returns an engine.Factory producing engines with opts.
func Factory(opts Options) engine.Factory {
	return func() (engine.MediaEngine, error) {
		return New(opts), nil
	}
}

type joinState int

const (
	stateIdle joinState = iota
	stateJoining
	stateJoined
	stateLeaving
)

// Engine is a MediaEngine that joins rooms through a websocket signaling
// server and exchanges media with an SFU over a single pion PeerConnection.
//
// Local audio and video are published as Opus and VP8 tracks in a stream
// named after the local uid; remote streams follow the same convention,
// which is how inbound statistics are attributed to remote users.
type Engine struct {
	opts Options

	mu          sync.Mutex
	handler     engine.Handler
	initialized bool
	released    bool
	appID       string
	profile     engine.ChannelProfile

	videoEnabled bool
	previewing   bool
	audioMuted   bool
	localVideo   bool
	backCamera   bool

	state     joinState
	conn      engine.Connection
	joinStart time.Time
	members   map[uint32]struct{}
	ssrcUID   map[webrtc.SSRC]uint32
	mapper    *statsMapper
	cancel    context.CancelFunc

	sig *signalClient
	pc  *webrtc.PeerConnection

	wg conc.WaitGroup
}

// New creates an engine. Zero durations in opts fall back to DefaultOptions.
func New(opts Options) *Engine {
	defaults := DefaultOptions(opts.SignalURL)
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaults.DialTimeout
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = defaults.GatherTimeout
	}

	logrus.WithFields(logrus.Fields{
		"function":    "peer.New",
		"signal_url":  opts.SignalURL,
		"ice_servers": len(opts.ICEServers),
	}).Info("Creating WebRTC media engine")

	return &Engine{
		opts:    opts,
		members: make(map[uint32]struct{}),
		ssrcUID: make(map[webrtc.SSRC]uint32),
	}
}

func (e *Engine) readyLocked() error {
	if e.released {
		return engine.ErrReleased
	}
	if !e.initialized {
		return engine.ErrNotInitialized
	}
	return nil
}

// Initialize implements engine.MediaEngine.
func (e *Engine) Initialize(appID string, profile engine.ChannelProfile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return engine.ErrReleased
	}
	if appID == "" {
		return &engine.Error{Op: "Initialize", Code: engine.CodeInvalidAppID, Message: "empty app id"}
	}
	e.appID = appID
	e.profile = profile
	e.initialized = true
	return nil
}

// RegisterEventHandler implements engine.MediaEngine.
func (e *Engine) RegisterEventHandler(h engine.Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	e.handler = h
	return nil
}

// UnregisterEventHandler implements engine.MediaEngine.
func (e *Engine) UnregisterEventHandler() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = nil
	return nil
}

// EnableVideo implements engine.MediaEngine.
func (e *Engine) EnableVideo() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	e.videoEnabled = true
	e.localVideo = true
	return nil
}

// StartPreview implements engine.MediaEngine.
func (e *Engine) StartPreview() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	if !e.videoEnabled {
		return &engine.Error{Op: "StartPreview", Code: engine.CodeNotReady, Message: "video not enabled"}
	}
	e.previewing = true
	return nil
}

// JoinChannel implements engine.MediaEngine. It returns once the join is
// under way; the signaling handshake runs in the background and its outcome
// is reported as a JoinSuccessEvent or JoinFailureEvent.
func (e *Engine) JoinChannel(tok, channelID string, uid uint32, opts engine.JoinOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	if e.handler == nil {
		return engine.ErrNoHandler
	}
	if e.state != stateIdle {
		return engine.ErrAlreadyInChannel
	}
	if channelID == "" {
		return &engine.Error{Op: "JoinChannel", Code: engine.CodeInvalidChannelName, Message: "empty channel name"}
	}
	if e.opts.SignalURL == "" {
		return &engine.Error{Op: "JoinChannel", Code: engine.CodeInvalidArgument, Message: "no signaling url"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state = stateJoining
	e.conn = engine.Connection{ChannelID: channelID, LocalUID: uid}
	e.joinStart = time.Now()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.JoinChannel",
		"channel":  channelID,
		"uid":      uid,
		"role":     opts.Role.String(),
	}).Info("Joining channel")

	join := Message{
		Type:      MsgJoin,
		RequestID: uuid.NewString(),
		Room:      channelID,
		UID:       uid,
		Token:     tok,
		Role:      opts.Role.String(),
	}
	e.wg.Go(func() { e.runSession(ctx, join) })
	return nil
}

// LeaveChannel implements engine.MediaEngine.
func (e *Engine) LeaveChannel() error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.state != stateJoined && e.state != stateJoining {
		e.mu.Unlock()
		return engine.ErrNotInChannel
	}

	sig := e.sig
	if e.state == stateJoining || sig == nil {
		// Nothing was acknowledged by the server; abandon the handshake.
		e.state = stateIdle
		left := engine.LeftEvent{Connection: e.conn, Stats: e.baseStatsLocked()}
		e.mu.Unlock()

		e.closeTransport()
		e.emit(left)
		return nil
	}
	e.state = stateLeaving
	e.mu.Unlock()

	if err := sig.send(Message{Type: MsgLeave}); err != nil {
		e.mu.Lock()
		if e.state == stateLeaving {
			e.state = stateJoined
		}
		e.mu.Unlock()
		return &engine.Error{Op: "LeaveChannel", Code: engine.CodeLeaveChannelRejected, Message: err.Error()}
	}
	return nil
}

// SwitchCamera implements engine.MediaEngine.
func (e *Engine) SwitchCamera() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	if !e.videoEnabled {
		return &engine.Error{Op: "SwitchCamera", Code: engine.CodeNotReady, Message: "video not enabled"}
	}
	if sw, ok := e.opts.Source.(CameraSwitcher); ok {
		if err := sw.SwitchCamera(); err != nil {
			return &engine.Error{Op: "SwitchCamera", Code: engine.CodeCameraNotAuthorized, Message: err.Error()}
		}
	}
	e.backCamera = !e.backCamera
	return nil
}

// MuteLocalAudioStream implements engine.MediaEngine.
func (e *Engine) MuteLocalAudioStream(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	e.audioMuted = muted
	return nil
}

// EnableLocalVideo implements engine.MediaEngine.
func (e *Engine) EnableLocalVideo(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}
	e.localVideo = enabled
	return nil
}

// Release implements engine.MediaEngine. It closes the signaling connection
// and the PeerConnection and waits for background goroutines.
func (e *Engine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.handler = nil
	e.state = stateIdle
	e.mu.Unlock()

	e.closeTransport()
	e.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Release",
	}).Info("WebRTC media engine released")
	return nil
}

func (e *Engine) emit(ev engine.Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (e *Engine) baseStatsLocked() engine.RtcStats {
	var d time.Duration
	if !e.joinStart.IsZero() {
		d = time.Since(e.joinStart)
	}
	return engine.RtcStats{
		Duration:  d,
		UserCount: uint32(len(e.members) + 1),
	}
}

// closeTransport stops the session goroutines and closes the connections.
func (e *Engine) closeTransport() {
	e.mu.Lock()
	sig, pc, cancel := e.sig, e.pc, e.cancel
	e.sig, e.pc = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.closeTransport",
				"error":    err.Error(),
			}).Warn("Failed to close peer connection")
		}
	}
	if sig != nil {
		_ = sig.close()
	}
}

func (e *Engine) runSession(ctx context.Context, join Message) {
	log := logrus.WithFields(logrus.Fields{
		"function": "Engine.runSession",
		"channel":  join.Room,
	})

	dialCtx, cancel := context.WithTimeout(ctx, e.opts.DialTimeout)
	sig, err := dialSignal(dialCtx, e.opts.SignalURL, e.opts.Header)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("Signaling connection failed")
		code := engine.CodeRefused
		if errors.Is(err, context.DeadlineExceeded) {
			code = engine.CodeTimedOut
		}
		e.failJoin(code)
		return
	}

	e.mu.Lock()
	if e.released || e.state != stateJoining || ctx.Err() != nil {
		e.mu.Unlock()
		_ = sig.close()
		return
	}
	e.sig = sig
	e.mu.Unlock()

	if err := sig.send(join); err != nil {
		log.WithError(err).Warn("Failed to send join request")
		e.closeTransport()
		e.failJoin(engine.CodeConnectionLost)
		return
	}

	for {
		msg, err := sig.read()
		if err != nil {
			e.signalLost(ctx, err)
			return
		}
		if done := e.handleMessage(ctx, sig, msg); done {
			e.closeTransport()
			return
		}
	}
}

func (e *Engine) failJoin(reason int) {
	e.mu.Lock()
	if e.state != stateJoining {
		e.mu.Unlock()
		return
	}
	e.state = stateIdle
	ev := engine.JoinFailureEvent{
		Connection: e.conn,
		Elapsed:    time.Since(e.joinStart),
		Reason:     reason,
	}
	e.mu.Unlock()

	e.emit(ev)
}

// signalLost handles an unexpected end of the signaling connection.
func (e *Engine) signalLost(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	e.closeTransport()

	e.mu.Lock()
	prev := e.state
	e.state = stateIdle
	conn := e.conn
	stats := e.baseStatsLocked()
	joinStart := e.joinStart
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.signalLost",
		"channel":  conn.ChannelID,
		"error":    err.Error(),
	}).Warn("Signaling connection lost")

	switch prev {
	case stateJoining:
		e.emit(engine.JoinFailureEvent{Connection: conn, Elapsed: time.Since(joinStart), Reason: engine.CodeConnectionLost})
	case stateJoined:
		e.emit(engine.ErrorEvent{Code: engine.CodeConnectionLost, Message: "signaling connection lost"})
		e.emit(engine.LeftEvent{Connection: conn, Stats: stats})
	case stateLeaving:
		e.emit(engine.LeftEvent{Connection: conn, Stats: stats})
	}
}

// handleMessage processes one server message and reports whether the
// session is over.
func (e *Engine) handleMessage(ctx context.Context, sig *signalClient, msg Message) bool {
	switch msg.Type {
	case MsgRoomState:
		e.onRoomState(ctx, sig, msg)
	case MsgError:
		return e.onServerError(msg)
	case MsgAnswer:
		e.onAnswer(msg)
	case MsgCandidate:
		e.onCandidate(msg)
	case MsgMemberJoined:
		e.onMemberJoined(msg.UID)
	case MsgMemberLeft:
		e.onMemberLeft(msg.UID, parseReason(msg.Reason))
	case MsgLeft:
		e.onLeft()
		return true
	case MsgPong:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Engine.handleMessage",
			"type":     msg.Type,
		}).Debug("Ignoring unknown signaling message")
	}
	return false
}

func (e *Engine) onRoomState(ctx context.Context, sig *signalClient, msg Message) {
	e.mu.Lock()
	if e.state != stateJoining {
		e.mu.Unlock()
		return
	}
	e.state = stateJoined
	if msg.UID != 0 {
		e.conn.LocalUID = msg.UID
	}
	local := e.conn.LocalUID
	e.members = make(map[uint32]struct{}, len(msg.Members))
	e.ssrcUID = make(map[webrtc.SSRC]uint32)
	e.mapper = newStatsMapper()
	var members []uint32
	for _, uid := range msg.Members {
		if _, dup := e.members[uid]; uid == 0 || uid == local || dup {
			continue
		}
		e.members[uid] = struct{}{}
		members = append(members, uid)
	}
	conn := e.conn
	elapsed := time.Since(e.joinStart)
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.onRoomState",
		"channel":  conn.ChannelID,
		"uid":      conn.LocalUID,
		"members":  len(members),
	}).Info("Joined channel")

	e.emit(engine.JoinSuccessEvent{Connection: conn, Elapsed: elapsed})
	for _, uid := range members {
		e.emit(engine.UserJoinedEvent{Connection: conn, RemoteUID: uid, Elapsed: elapsed})
	}

	if e.opts.StatsInterval > 0 {
		e.wg.Go(func() { e.statsLoop(ctx) })
	}
	if e.opts.PingInterval > 0 {
		e.wg.Go(func() { e.keepalive(ctx, sig) })
	}
	if err := e.startMedia(ctx, sig, local); err != nil && ctx.Err() == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.onRoomState",
			"error":    err.Error(),
		}).Error("Failed to start media")
		e.emit(engine.ErrorEvent{Code: engine.CodeLoadMediaEngine, Message: err.Error()})
	}
}

func (e *Engine) onServerError(msg Message) bool {
	code := msg.Code
	if code == 0 {
		code = engine.CodeJoinChannelRejected
	}

	e.mu.Lock()
	joining := e.state == stateJoining
	e.mu.Unlock()

	if joining {
		e.failJoin(code)
		return true
	}
	e.emit(engine.ErrorEvent{Code: code, Message: msg.Error})
	return false
}

func (e *Engine) onLeft() {
	e.mu.Lock()
	if e.state == stateIdle {
		e.mu.Unlock()
		return
	}
	e.state = stateIdle
	ev := engine.LeftEvent{Connection: e.conn, Stats: e.baseStatsLocked()}
	e.mu.Unlock()

	e.emit(ev)
}

func (e *Engine) onMemberJoined(uid uint32) {
	e.mu.Lock()
	if e.state != stateJoined || uid == 0 || uid == e.conn.LocalUID {
		e.mu.Unlock()
		return
	}
	if _, ok := e.members[uid]; ok {
		e.mu.Unlock()
		return
	}
	e.members[uid] = struct{}{}
	ev := engine.UserJoinedEvent{Connection: e.conn, RemoteUID: uid, Elapsed: time.Since(e.joinStart)}
	e.mu.Unlock()

	e.emit(ev)
}

func (e *Engine) onMemberLeft(uid uint32, reason engine.OfflineReason) {
	e.mu.Lock()
	if _, ok := e.members[uid]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.members, uid)
	for ssrc, owner := range e.ssrcUID {
		if owner == uid {
			delete(e.ssrcUID, ssrc)
		}
	}
	ev := engine.UserOfflineEvent{Connection: e.conn, RemoteUID: uid, Reason: reason}
	e.mu.Unlock()

	e.emit(ev)
}

func (e *Engine) onAnswer(msg Message) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		e.emit(engine.ErrorEvent{Code: engine.CodeFailed, Message: fmt.Sprintf("apply answer: %v", err)})
	}
}

func (e *Engine) onCandidate(msg Message) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return
	}
	candidate := webrtc.ICECandidateInit{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	}
	if err := pc.AddICECandidate(candidate); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.onCandidate",
			"error":    err.Error(),
		}).Warn("Failed to add remote ICE candidate")
	}
}

// startMedia creates the PeerConnection, publishes the local tracks and
// sends the offer once ICE gathering completes.
func (e *Engine) startMedia(ctx context.Context, sig *signalClient, local uint32) error {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: e.opts.ICEServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	audio, video, err := newLocalTracks(local)
	if err != nil {
		_ = pc.Close()
		return err
	}
	for _, track := range []webrtc.TrackLocal{audio, video} {
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		go drainRTCP(sender)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		uid, ok := parseStreamUID(track.StreamID())
		if ok {
			e.mu.Lock()
			e.ssrcUID[track.SSRC()] = uid
			e.mu.Unlock()
		}
		logrus.WithFields(logrus.Fields{
			"function": "Engine.OnTrack",
			"kind":     track.Kind().String(),
			"stream":   track.StreamID(),
			"uid":      uid,
		}).Debug("Remote track received")
		go drainRemote(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.OnConnectionStateChange",
			"state":    state.String(),
		}).Debug("Peer connection state changed")
		if state == webrtc.PeerConnectionStateFailed {
			e.emit(engine.ErrorEvent{Code: engine.CodeConnectionLost, Message: "media transport failed"})
		}
	})

	e.mu.Lock()
	if e.released || e.state != stateJoined {
		e.mu.Unlock()
		_ = pc.Close()
		return nil
	}
	e.pc = pc
	e.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(e.opts.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		logrus.WithFields(logrus.Fields{
			"function": "Engine.startMedia",
			"timeout":  e.opts.GatherTimeout,
		}).Warn("ICE gathering timed out, sending partial offer")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := sig.send(Message{Type: MsgOffer, SDP: pc.LocalDescription().SDP}); err != nil {
		return err
	}

	if src := e.opts.Source; src != nil {
		e.wg.Go(func() { pump(ctx, "audio", src.ReadAudio, audio, e.publishingAudio) })
		e.wg.Go(func() { pump(ctx, "video", src.ReadVideo, video, e.publishingVideo) })
	}
	return nil
}

func (e *Engine) publishingAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.audioMuted
}

func (e *Engine) publishingVideo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoEnabled && e.localVideo
}

func (e *Engine) keepalive(ctx context.Context, sig *signalClient) {
	ticker := time.NewTicker(e.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sig.send(Message{Type: MsgPing}); err != nil {
				return
			}
		}
	}
}

func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range e.collectStats() {
				e.emit(ev)
			}
		}
	}
}

func (e *Engine) collectStats() []engine.Event {
	e.mu.Lock()
	if e.state != stateJoined {
		e.mu.Unlock()
		return nil
	}
	pc, mapper, conn := e.pc, e.mapper, e.conn
	base := e.baseStatsLocked()
	e.mu.Unlock()

	if pc == nil {
		return []engine.Event{engine.RtcStatsEvent{Connection: conn, Stats: base}}
	}
	return mapper.mapReport(pc.GetStats(), conn, base, e.uidOf)
}

// uidOf attributes an inbound stream to a remote user still in the channel.
func (e *Engine) uidOf(ssrc webrtc.SSRC) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	uid, ok := e.ssrcUID[ssrc]
	if !ok {
		return 0, false
	}
	_, present := e.members[uid]
	return uid, present
}

func parseReason(reason string) engine.OfflineReason {
	switch reason {
	case ReasonDropped:
		return engine.OfflineDropped
	case ReasonAudience:
		return engine.OfflineBecameAudience
	default:
		return engine.OfflineQuit
	}
}

// String returns a short description of the engine state.
func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("peer.Engine{channel=%q uid=%d members=%d}", e.conn.ChannelID, e.conn.LocalUID, len(e.members))
}
