package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/rtcsession/engine"
	"github.com/opd-ai/rtcsession/token"
)

// PlaceholderAppIDs are app ids shipped in sample configuration. Starting a
// session with one of them fails with a ConfigurationError.
var PlaceholderAppIDs = []string{
	"YOUR_AGORA_APP_ID",
	"YOUR_NEW_AGORA_APP_ID",
	"YOUR_APP_ID",
}

// PermissionRequester asks the platform for camera and microphone access.
// RequestPermissions blocks until the user answers or ctx is done.
type PermissionRequester interface {
	RequestPermissions(ctx context.Context) (bool, error)
}

// PermissionFunc adapts a function to PermissionRequester.
type PermissionFunc func(ctx context.Context) (bool, error)

// RequestPermissions calls f(ctx).
func (f PermissionFunc) RequestPermissions(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Callbacks are invoked outside the controller lock, on the goroutine that
// caused the change. They may call back into the controller.
type Callbacks struct {
	OnStateChange   func(prev, next ConnectionState)
	OnError         func(err error)
	OnQualityChange func(level QualityLevel)
	// OnEnded fires exactly once, when the session first reaches Left or
	// Failed.
	OnEnded func(snap Snapshot)
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	AppID   string
	Profile engine.ChannelProfile
	// Role defaults to engine.RoleBroadcaster.
	Role engine.ClientRole

	// EngineFactory creates the session's engine on entry to Joining.
	EngineFactory engine.Factory
	// Permissions is optional; without it permissions count as granted.
	Permissions PermissionRequester
	// Tokens is optional; it is consulted only when Start gets no token.
	Tokens token.Provider

	Callbacks Callbacks

	// StaleStatsTimeout evicts remote statistics not refreshed for this
	// long. Zero keeps them until the participant leaves.
	StaleStatsTimeout time.Duration
	// LeaveTimeout forces Left when the engine does not confirm a leave in
	// time. Zero waits indefinitely.
	LeaveTimeout time.Duration

	QualityThresholds *QualityThresholds
	TimeProvider      TimeProvider
}

// Controller drives one call session. All methods are safe for concurrent
// use.
type Controller struct {
	cfg     ControllerConfig
	tp      TimeProvider
	log     *logrus.Entry
	quality *QualityMonitor
	queue   *eventQueue

	mu           sync.Mutex
	id           string
	state        ConnectionState
	channelID    string
	localUID     uint32
	token        string
	participants participantSet
	media        LocalMediaState
	stats        Statistics
	joinStart    time.Time
	joinElapsed  time.Duration
	err          error

	eng        engine.MediaEngine
	endPending bool
	leaveTimer Timer
	// cancelStart aborts the permission request and token lookup of a
	// running Start.
	cancelStart context.CancelFunc
	ended      bool
	closed     bool

	// notes are callbacks queued under mu and run by unlock.
	notes []func()

	statsLog rate.Sometimes
	done     chan struct{}
	stop     chan struct{}
	loopDone chan struct{}
}

// NewController creates an idle controller and starts its event loop. The
// loop stops by itself once the session reaches Left or Failed; Close is
// only needed to abandon a session that is still running.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.EngineFactory == nil {
		return nil, ErrNoEngineFactory
	}
	if cfg.Role == 0 {
		cfg.Role = engine.RoleBroadcaster
	}
	tp := cfg.TimeProvider
	if tp == nil {
		tp = DefaultTimeProvider{}
	}

	id := uuid.NewString()
	c := &Controller{
		cfg:          cfg,
		tp:           tp,
		log:          logrus.WithField("session_id", id),
		quality:      NewQualityMonitor(cfg.QualityThresholds),
		queue:        newEventQueue(),
		id:           id,
		state:        StateIdle,
		participants: participantSet{},
		media:        defaultMediaState(),
		stats:        newStatistics(),
		statsLog:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	c.log.WithFields(logrus.Fields{
		"function": "NewController",
		"profile":  cfg.Profile.String(),
		"role":     cfg.Role.String(),
	}).Debug("Call session controller created")

	go c.run()
	return c, nil
}

// ValidateAppID rejects empty and placeholder app ids.
func ValidateAppID(appID string) error {
	trimmed := strings.TrimSpace(appID)
	if trimmed == "" {
		return &ConfigurationError{AppID: appID, Reason: "app id is empty"}
	}
	if slices.Contains(PlaceholderAppIDs, trimmed) {
		return &ConfigurationError{AppID: appID, Reason: fmt.Sprintf("app id %q is a placeholder", trimmed)}
	}
	return nil
}

// Start runs the session from Idle up to the join command. It returns nil
// once the engine accepted the join; the outcome is reported through the
// callbacks, Snapshot and Wait. Configuration, permission and engine setup
// failures move the session to Failed and are also returned.
func (c *Controller) Start(ctx context.Context, channelID, tok string, uid uint32) error {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.unlock()
		return ErrAlreadyStarted
	}
	if channelID == "" {
		c.unlock()
		return ErrInvalidChannel
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelStart = cancel
	defer c.clearCancelStart()

	c.channelID = channelID
	c.localUID = uid
	c.token = tok
	c.transitionLocked(StateInitializing)

	c.log.WithFields(logrus.Fields{
		"function":   "Start",
		"channel_id": channelID,
		"uid":        uid,
		"token":      token.Inspect(tok).Preview,
	}).Info("Starting call session")

	if err := ValidateAppID(c.cfg.AppID); err != nil {
		c.failLocked(err)
		c.unlock()
		return err
	}
	c.transitionLocked(StatePermissionsPending)
	c.unlock()

	granted, err := c.requestPermissions(ctx)

	c.mu.Lock()
	if c.state != StatePermissionsPending {
		c.unlock()
		return ErrClosed
	}
	if err != nil || !granted {
		perr := &PermissionError{Err: err}
		c.failLocked(perr)
		c.unlock()
		return perr
	}
	c.transitionLocked(StateJoining)
	c.joinStart = c.tp.Now()
	c.unlock()

	resolved := c.resolveToken(ctx, channelID, uid, tok)

	c.mu.Lock()
	defer c.unlock()

	if c.state != StateJoining {
		return ErrClosed
	}
	if c.endPending {
		c.log.WithFields(logrus.Fields{
			"function": "Start",
		}).Info("End requested before join was issued, settling in Left")
		c.settleLeftLocked()
		return nil
	}
	c.token = resolved
	return c.joinLocked()
}

func (c *Controller) clearCancelStart() {
	c.mu.Lock()
	c.cancelStart = nil
	c.mu.Unlock()
}

func (c *Controller) requestPermissions(ctx context.Context) (bool, error) {
	if c.cfg.Permissions == nil {
		return true, nil
	}

	granted, err := c.cfg.Permissions.RequestPermissions(ctx)

	entry := c.log.WithFields(logrus.Fields{
		"function": "requestPermissions",
		"granted":  granted,
	})
	if err != nil {
		entry.WithError(err).Warn("Permission request failed")
	} else {
		entry.Debug("Permission request answered")
	}
	return granted, err
}

// resolveToken returns the supplied token unless it is empty and a
// configured provider can generate one. Provider failures fall back to the
// supplied token.
func (c *Controller) resolveToken(ctx context.Context, channelID string, uid uint32, supplied string) string {
	if supplied != "" || c.cfg.Tokens == nil || !c.cfg.Tokens.IsConfigured() {
		return supplied
	}

	generated, err := c.cfg.Tokens.Generate(ctx, channelID, uid)
	if err != nil || generated == "" {
		c.log.WithFields(logrus.Fields{
			"function":   "resolveToken",
			"channel_id": channelID,
			"error":      err,
		}).Warn("Token generation failed, joining with the supplied token")
		return supplied
	}

	c.log.WithFields(logrus.Fields{
		"function": "resolveToken",
		"token":    token.Inspect(generated).Preview,
	}).Debug("Token generated")
	return generated
}

// joinLocked creates the engine and issues the setup commands.
func (c *Controller) joinLocked() error {
	eng, err := c.cfg.EngineFactory()
	if err != nil {
		jerr := &JoinError{Code: engine.CodeFailed, Reason: Guidance(engine.CodeFailed), Err: fmt.Errorf("create engine: %w", err)}
		c.failLocked(jerr)
		return jerr
	}
	c.eng = eng

	steps := []struct {
		op  string
		run func() error
	}{
		{"Initialize", func() error { return eng.Initialize(c.cfg.AppID, c.cfg.Profile) }},
		{"RegisterEventHandler", func() error { return eng.RegisterEventHandler(c.queue.push) }},
		{"EnableVideo", eng.EnableVideo},
		{"StartPreview", eng.StartPreview},
		{"JoinChannel", func() error {
			return eng.JoinChannel(c.token, c.channelID, c.localUID, engine.JoinOptions{Role: c.cfg.Role})
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			code, ok := engine.CodeOf(err)
			if !ok {
				code = engine.CodeFailed
			}
			jerr := &JoinError{Code: code, Reason: Guidance(code), Err: fmt.Errorf("%s: %w", step.op, err)}
			c.failLocked(jerr)
			return jerr
		}
	}

	c.log.WithFields(logrus.Fields{
		"function":   "joinLocked",
		"channel_id": c.channelID,
		"uid":        c.localUID,
		"role":       c.cfg.Role.String(),
	}).Info("Join requested")
	return nil
}

// End leaves the call. From Joined it issues the leave command; from
// Joining it defers teardown until the join resolves. In every other state
// it does nothing.
func (c *Controller) End() error {
	c.mu.Lock()
	defer c.unlock()

	switch c.state {
	case StateJoined:
		return c.leaveLocked()
	case StateJoining:
		if !c.endPending {
			c.endPending = true
			c.log.WithFields(logrus.Fields{
				"function": "End",
			}).Info("End requested while joining, leaving once the join resolves")
		}
		return nil
	default:
		c.log.WithFields(logrus.Fields{
			"function": "End",
			"state":    c.state.String(),
		}).Debug("End ignored")
		return nil
	}
}

func (c *Controller) leaveLocked() error {
	c.transitionLocked(StateLeaving)

	if c.eng == nil {
		c.settleLeftLocked()
		return nil
	}

	if err := c.eng.LeaveChannel(); err != nil {
		cerr := &CommandError{Op: "LeaveChannel", Err: err}
		c.log.WithFields(logrus.Fields{
			"function": "leaveLocked",
			"error":    err.Error(),
		}).Error("Leave command failed, forcing teardown")
		c.notifyError(cerr)
		c.settleLeftLocked()
		return cerr
	}

	if c.cfg.LeaveTimeout > 0 {
		c.leaveTimer = c.tp.AfterFunc(c.cfg.LeaveTimeout, c.onLeaveTimeout)
	}
	return nil
}

func (c *Controller) onLeaveTimeout() {
	c.mu.Lock()
	defer c.unlock()

	if c.state != StateLeaving {
		return
	}
	c.log.WithFields(logrus.Fields{
		"function": "onLeaveTimeout",
		"timeout":  c.cfg.LeaveTimeout,
	}).Warn("Leave not confirmed in time, forcing teardown")
	c.settleLeftLocked()
}

// ToggleMute flips local audio publishing.
func (c *Controller) ToggleMute() error {
	return c.mediaCommand("MuteLocalAudioStream", func(eng engine.MediaEngine, m *LocalMediaState) error {
		if err := eng.MuteLocalAudioStream(!m.AudioMuted); err != nil {
			return err
		}
		m.AudioMuted = !m.AudioMuted
		return nil
	})
}

// ToggleVideo flips local video capture.
func (c *Controller) ToggleVideo() error {
	return c.mediaCommand("EnableLocalVideo", func(eng engine.MediaEngine, m *LocalMediaState) error {
		if err := eng.EnableLocalVideo(!m.VideoEnabled); err != nil {
			return err
		}
		m.VideoEnabled = !m.VideoEnabled
		return nil
	})
}

// SwitchCamera flips between the front and back camera.
func (c *Controller) SwitchCamera() error {
	return c.mediaCommand("SwitchCamera", func(eng engine.MediaEngine, m *LocalMediaState) error {
		if err := eng.SwitchCamera(); err != nil {
			return err
		}
		if m.Camera == CameraFront {
			m.Camera = CameraBack
		} else {
			m.Camera = CameraFront
		}
		return nil
	})
}

// mediaCommand runs a local media command in Joined. The media state is
// only updated when the engine accepted the command.
func (c *Controller) mediaCommand(op string, fn func(engine.MediaEngine, *LocalMediaState) error) error {
	c.mu.Lock()
	defer c.unlock()

	if c.state != StateJoined {
		return ErrNotJoined
	}
	if c.eng == nil {
		cerr := &CommandError{Op: op, Err: ErrEngineLifecycle}
		c.log.WithFields(logrus.Fields{
			"function": "mediaCommand",
			"op":       op,
		}).Error("Joined session has no engine")
		return cerr
	}

	media := c.media
	if err := fn(c.eng, &media); err != nil {
		cerr := &CommandError{Op: op, Err: err}
		c.log.WithFields(logrus.Fields{
			"function": "mediaCommand",
			"op":       op,
			"error":    err.Error(),
		}).Warn("Media command failed, state unchanged")
		c.notifyError(cerr)
		return cerr
	}
	c.media = media

	c.log.WithFields(logrus.Fields{
		"function":      "mediaCommand",
		"op":            op,
		"audio_muted":   media.AudioMuted,
		"video_enabled": media.VideoEnabled,
		"camera":        media.Camera.String(),
	}).Debug("Local media state updated")
	return nil
}

// Dispatch applies one engine event to the session. Events that do not
// apply to the current state are logged and dropped.
func (c *Controller) Dispatch(ev engine.Event) {
	c.mu.Lock()
	defer c.unlock()

	switch e := ev.(type) {
	case engine.ErrorEvent:
		c.onEngineError(e)
	case engine.JoinSuccessEvent:
		c.onJoinSuccess(e)
	case engine.JoinFailureEvent:
		c.onJoinFailure(e)
	case engine.LeftEvent:
		c.onLeft(e)
	case engine.UserJoinedEvent:
		c.onUserJoined(e)
	case engine.UserOfflineEvent:
		c.onUserOffline(e)
	case engine.RtcStatsEvent:
		c.onRtcStats(e)
	case engine.LocalVideoStatsEvent:
		if c.acceptStats(ev) {
			c.stats.mergeLocalVideo(e.Stats)
		}
	case engine.LocalAudioStatsEvent:
		if c.acceptStats(ev) {
			c.stats.mergeLocalAudio(e.Stats)
		}
	case engine.RemoteVideoStatsEvent:
		if c.acceptRemoteStats(ev, e.Stats.UID) {
			c.stats.mergeRemoteVideo(e.Stats, c.tp.Now())
		}
	case engine.RemoteAudioStatsEvent:
		if c.acceptRemoteStats(ev, e.Stats.UID) {
			c.stats.mergeRemoteAudio(e.Stats, c.tp.Now())
		}
	default:
		c.log.WithFields(logrus.Fields{
			"function": "Dispatch",
			"type":     fmt.Sprintf("%T", ev),
		}).Warn("Unknown engine event")
	}
}

func (c *Controller) onEngineError(e engine.ErrorEvent) {
	eerr := &EngineError{Code: e.Code, Message: e.Message}
	c.log.WithFields(logrus.Fields{
		"function": "onEngineError",
		"code":     e.Code,
		"message":  e.Message,
		"state":    c.state.String(),
	}).Error("Engine reported an error")
	c.notifyError(eerr)
}

func (c *Controller) onJoinSuccess(e engine.JoinSuccessEvent) {
	if c.state != StateJoining {
		c.ignore("onJoinSuccess", e)
		return
	}

	c.joinElapsed = e.Elapsed
	if c.joinElapsed == 0 {
		c.joinElapsed = c.tp.Since(c.joinStart)
	}
	if e.Connection.LocalUID != 0 {
		c.localUID = e.Connection.LocalUID
		c.participants.remove(c.localUID)
	}
	c.transitionLocked(StateJoined)

	c.log.WithFields(logrus.Fields{
		"function":   "onJoinSuccess",
		"channel_id": e.Connection.ChannelID,
		"uid":        c.localUID,
		"elapsed":    c.joinElapsed,
	}).Info("Joined channel")

	if c.endPending {
		c.endPending = false
		_ = c.leaveLocked()
	}
}

func (c *Controller) onJoinFailure(e engine.JoinFailureEvent) {
	if c.state != StateJoining {
		c.ignore("onJoinFailure", e)
		return
	}

	if c.endPending {
		c.log.WithFields(logrus.Fields{
			"function": "onJoinFailure",
			"reason":   e.Reason,
		}).Info("Join failed after End, settling in Left")
		c.settleLeftLocked()
		return
	}

	c.failLocked(&JoinError{Code: e.Reason, Reason: Guidance(e.Reason)})
}

func (c *Controller) onLeft(e engine.LeftEvent) {
	switch c.state {
	case StateLeaving:
		c.log.WithFields(logrus.Fields{
			"function": "onLeft",
			"duration": e.Stats.Duration,
		}).Info("Left channel")
		c.settleLeftLocked()
	case StateJoined:
		c.log.WithFields(logrus.Fields{
			"function":   "onLeft",
			"channel_id": e.Connection.ChannelID,
		}).Warn("Removed from channel by the engine")
		c.settleLeftLocked()
	default:
		c.ignore("onLeft", e)
	}
}

func (c *Controller) onUserJoined(e engine.UserJoinedEvent) {
	if c.state != StateJoined {
		c.ignore("onUserJoined", e)
		return
	}
	if e.RemoteUID == c.localUID {
		return
	}
	if c.participants.add(e.RemoteUID) {
		c.log.WithFields(logrus.Fields{
			"function":     "onUserJoined",
			"remote_uid":   e.RemoteUID,
			"participants": len(c.participants),
		}).Info("Remote user joined")
	}
}

func (c *Controller) onUserOffline(e engine.UserOfflineEvent) {
	if c.state != StateJoined {
		c.ignore("onUserOffline", e)
		return
	}
	removed := c.participants.remove(e.RemoteUID)
	delete(c.stats.Remote, e.RemoteUID)
	if removed {
		c.log.WithFields(logrus.Fields{
			"function":     "onUserOffline",
			"remote_uid":   e.RemoteUID,
			"reason":       e.Reason.String(),
			"participants": len(c.participants),
		}).Info("Remote user left")
	}
}

func (c *Controller) onRtcStats(e engine.RtcStatsEvent) {
	if !c.acceptStats(e) {
		return
	}
	c.stats.mergeRtc(e.Stats)

	if c.cfg.StaleStatsTimeout > 0 {
		if evicted := c.stats.evictStale(c.tp.Now(), c.cfg.StaleStatsTimeout); len(evicted) > 0 {
			c.log.WithFields(logrus.Fields{
				"function": "onRtcStats",
				"uids":     evicted,
			}).Info("Evicted stale remote statistics")
		}
	}

	if level, changed := c.quality.Observe(c.stats.Network); changed {
		if cb := c.cfg.Callbacks.OnQualityChange; cb != nil {
			c.notes = append(c.notes, func() { cb(level) })
		}
	}

	network := c.stats.Network
	c.statsLog.Do(func() {
		c.log.WithFields(logrus.Fields{
			"function":       "onRtcStats",
			"lastmile_delay": network.LastmileDelay,
			"cpu_app":        network.CPUAppUsage,
			"cpu_total":      network.CPUTotalUsage,
			"tx_loss":        network.TxPacketLossRate,
			"users":          network.UserCount,
		}).Debug("Connection statistics")
	})
}

func (c *Controller) acceptStats(ev engine.Event) bool {
	if c.state != StateJoined {
		c.ignore("acceptStats", ev)
		return false
	}
	return true
}

// acceptRemoteStats admits remote statistics only for present, non-zero
// uids so that no entry outlives its participant.
func (c *Controller) acceptRemoteStats(ev engine.Event, uid uint32) bool {
	if !c.acceptStats(ev) {
		return false
	}
	return uid != 0 && c.participants.has(uid)
}

func (c *Controller) ignore(fn string, ev engine.Event) {
	c.log.WithFields(logrus.Fields{
		"function": fn,
		"kind":     ev.Kind().String(),
		"state":    c.state.String(),
	}).Trace("Event ignored in current state")
}

// Snapshot returns a consistent copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:    c.id,
		ChannelID:    c.channelID,
		LocalUID:     c.localUID,
		Token:        c.token,
		State:        c.state,
		Participants: c.participants.sorted(),
		Media:        c.media,
		Stats:        c.stats.clone(),
		Quality:      c.quality.Level(),
		JoinElapsed:  c.joinElapsed,
		Err:          c.err,
	}
}

// State returns the current connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasEngine reports whether the session currently owns an engine.
func (c *Controller) HasEngine() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng != nil
}

// Done is closed when the session reaches Left or Failed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the session ends or ctx is done and returns the
// snapshot at that point together with the terminal error.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-c.done:
		snap := c.Snapshot()
		return snap, snap.Err
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Close disposes of the controller: an active call is left without waiting
// for confirmation, the engine is released and the event loop stops.
// Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return nil
	}
	c.closed = true
	if c.cancelStart != nil {
		c.cancelStart()
	}

	switch c.state {
	case StateJoined:
		if c.eng != nil {
			if err := c.eng.LeaveChannel(); err != nil {
				c.log.WithFields(logrus.Fields{
					"function": "Close",
					"error":    err.Error(),
				}).Warn("Leave on close failed")
			}
		}
		c.settleLeftLocked()
	case StateJoining, StateLeaving:
		c.settleLeftLocked()
	case StateInitializing, StatePermissionsPending:
		c.failLocked(ErrClosed)
	}
	c.releaseEngineLocked()
	c.unlock()

	close(c.stop)

	c.log.WithFields(logrus.Fields{
		"function": "Close",
	}).Debug("Call session controller closed")
	return nil
}

// run drains the event queue until the session ends or Close is called.
// Events still queued at that point are dropped; a finished session ignores
// them anyway.
func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-c.queue.notify:
			for _, ev := range c.queue.drain() {
				c.Dispatch(ev)
			}
		}
	}
}

// transitionLocked moves to next if the state machine allows it.
func (c *Controller) transitionLocked(next ConnectionState) bool {
	prev := c.state
	if !prev.CanTransitionTo(next) {
		c.log.WithFields(logrus.Fields{
			"function": "transitionLocked",
			"from":     prev.String(),
			"to":       next.String(),
		}).Error("Invalid state transition")
		return false
	}
	c.state = next

	c.log.WithFields(logrus.Fields{
		"function": "transitionLocked",
		"from":     prev.String(),
		"to":       next.String(),
	}).Debug("State changed")

	if cb := c.cfg.Callbacks.OnStateChange; cb != nil {
		c.notes = append(c.notes, func() { cb(prev, next) })
	}
	return true
}

// failLocked ends the session in Failed with err.
func (c *Controller) failLocked(err error) {
	c.log.WithFields(logrus.Fields{
		"function": "failLocked",
		"state":    c.state.String(),
		"error":    err.Error(),
	}).Error("Call session failed")

	c.err = err
	c.transitionLocked(StateFailed)
	c.releaseEngineLocked()
	c.notifyError(err)
	c.finishLocked()
}

// settleLeftLocked ends the session in Left.
func (c *Controller) settleLeftLocked() {
	c.endPending = false
	c.transitionLocked(StateLeft)
	c.participants = participantSet{}
	c.stats = newStatistics()
	c.quality.Reset()
	c.releaseEngineLocked()
	c.finishLocked()
}

func (c *Controller) finishLocked() {
	if c.leaveTimer != nil {
		c.leaveTimer.Stop()
		c.leaveTimer = nil
	}
	if c.ended {
		return
	}
	c.ended = true
	close(c.done)

	if cb := c.cfg.Callbacks.OnEnded; cb != nil {
		snap := c.snapshotLocked()
		c.notes = append(c.notes, func() { cb(snap) })
	}
}

// releaseEngineLocked releases the engine, if any. Safe to call repeatedly.
func (c *Controller) releaseEngineLocked() {
	if c.eng == nil {
		return
	}
	eng := c.eng
	c.eng = nil

	if err := eng.UnregisterEventHandler(); err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "releaseEngineLocked",
			"error":    err.Error(),
		}).Warn("Failed to unregister engine handler")
	}
	if err := eng.Release(); err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "releaseEngineLocked",
			"error":    err.Error(),
		}).Warn("Failed to release engine")
	}
}

func (c *Controller) notifyError(err error) {
	if cb := c.cfg.Callbacks.OnError; cb != nil {
		c.notes = append(c.notes, func() { cb(err) })
	}
}

// unlock releases mu and runs the callbacks queued while it was held.
func (c *Controller) unlock() {
	notes := c.notes
	c.notes = nil
	c.mu.Unlock()

	for _, fn := range notes {
		fn()
	}
}
