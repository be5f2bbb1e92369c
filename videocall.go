package rtcsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtcsession/engine"
	"github.com/opd-ai/rtcsession/engine/peer"
	"github.com/opd-ai/rtcsession/session"
	"github.com/opd-ai/rtcsession/token"
)

// VideoCall is the high level API for one call.
//
// It owns a session.Controller configured from Options and forwards the
// controller callbacks to the handlers registered with the On methods.
// Handlers may be replaced at any time, including while a call is active.
type VideoCall struct {
	options *Options
	ctrl    *session.Controller

	mu        sync.RWMutex
	loopback  *engine.Loopback
	stateCb   func(prev, next session.ConnectionState)
	errorCb   func(err error)
	qualityCb func(level session.QualityLevel)
	endedCb   func(snap session.Snapshot)
}

// NewVideoCall creates an idle call. A nil options value selects NewOptions.
func NewVideoCall(options *Options) (*VideoCall, error) {
	if options == nil {
		options = NewOptions()
	}

	vc := &VideoCall{options: options}
	factory, err := vc.engineFactory()
	if err != nil {
		return nil, err
	}

	ctrl, err := session.NewController(session.ControllerConfig{
		AppID:         options.AppID,
		Profile:       options.Profile,
		Role:          options.Role,
		EngineFactory: factory,
		Permissions:   options.Permissions,
		Tokens:        options.tokenProvider(),
		Callbacks: session.Callbacks{
			OnStateChange:   vc.fireStateChange,
			OnError:         vc.fireError,
			OnQualityChange: vc.fireQualityChange,
			OnEnded:         vc.fireEnded,
		},
		StaleStatsTimeout: options.StaleStatsTimeout,
		LeaveTimeout:      options.LeaveTimeout,
		QualityThresholds: options.QualityThresholds,
	})
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	vc.ctrl = ctrl

	logrus.WithFields(logrus.Fields{
		"function": "NewVideoCall",
		"engine":   options.Engine.String(),
		"profile":  options.Profile.String(),
		"role":     options.Role.String(),
	}).Info("Video call created")
	return vc, nil
}

func (vc *VideoCall) engineFactory() (engine.Factory, error) {
	switch vc.options.Engine {
	case EngineLoopback:
		opts := vc.options.Loopback
		return func() (engine.MediaEngine, error) {
			lb := engine.NewLoopback(opts)
			vc.mu.Lock()
			vc.loopback = lb
			vc.mu.Unlock()
			return lb, nil
		}, nil
	case EngineWebRTC:
		if vc.options.Peer.SignalURL == "" {
			return nil, ErrNoSignalURL
		}
		return peer.Factory(vc.options.Peer), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, vc.options.Engine)
	}
}

// Join starts the call in channelID. An empty tok lets the configured token
// provider supply one; uid 0 lets the server assign the local uid.
//
// Join returns once the join command was issued. Whether the join succeeded
// is reported through OnStateChange, State and Snapshot.
func (vc *VideoCall) Join(ctx context.Context, channelID, tok string, uid uint32) error {
	return vc.ctrl.Start(ctx, channelID, tok, uid)
}

// Leave ends the call. It does nothing when no call is active.
func (vc *VideoCall) Leave() error {
	return vc.ctrl.End()
}

// ToggleMute flips the local audio mute state.
func (vc *VideoCall) ToggleMute() error {
	return vc.ctrl.ToggleMute()
}

// ToggleVideo flips local video capture.
func (vc *VideoCall) ToggleVideo() error {
	return vc.ctrl.ToggleVideo()
}

// SwitchCamera toggles between the front and back camera.
func (vc *VideoCall) SwitchCamera() error {
	return vc.ctrl.SwitchCamera()
}

// Snapshot returns a copy of the call state.
func (vc *VideoCall) Snapshot() session.Snapshot {
	return vc.ctrl.Snapshot()
}

// State returns the connection state.
func (vc *VideoCall) State() session.ConnectionState {
	return vc.ctrl.State()
}

// TokenInfo describes the token the call joined with, safe for logging.
func (vc *VideoCall) TokenInfo() token.Info {
	return token.Inspect(vc.ctrl.Snapshot().Token)
}

// Done is closed when the call reaches Left or Failed.
func (vc *VideoCall) Done() <-chan struct{} {
	return vc.ctrl.Done()
}

// Wait blocks until the call ends or ctx is done.
func (vc *VideoCall) Wait(ctx context.Context) (session.Snapshot, error) {
	return vc.ctrl.Wait(ctx)
}

// Loopback returns the loopback engine of the current call, or nil when the
// call uses another engine or has not created its engine yet.
func (vc *VideoCall) Loopback() *engine.Loopback {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.loopback
}

// Close leaves any active call without waiting for confirmation and
// releases all resources. A call that already ended holds no resources, so
// Close is then a no-op.
func (vc *VideoCall) Close() error {
	logrus.WithFields(logrus.Fields{
		"function":   "VideoCall.Close",
		"session_id": vc.ctrl.Snapshot().SessionID,
	}).Debug("Closing video call")
	return vc.ctrl.Close()
}

// OnStateChange sets the handler for connection state changes.
func (vc *VideoCall) OnStateChange(callback func(prev, next session.ConnectionState)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.stateCb = callback
}

// OnError sets the handler for non-fatal and fatal call errors.
func (vc *VideoCall) OnError(callback func(err error)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.errorCb = callback
}

// OnQualityChange sets the handler for call quality changes.
func (vc *VideoCall) OnQualityChange(callback func(level session.QualityLevel)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.qualityCb = callback
}

// OnEnded sets the handler invoked once when the call ends.
func (vc *VideoCall) OnEnded(callback func(snap session.Snapshot)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.endedCb = callback
}

func (vc *VideoCall) fireStateChange(prev, next session.ConnectionState) {
	vc.mu.RLock()
	cb := vc.stateCb
	vc.mu.RUnlock()
	if cb != nil {
		cb(prev, next)
	}
}

func (vc *VideoCall) fireError(err error) {
	vc.mu.RLock()
	cb := vc.errorCb
	vc.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

func (vc *VideoCall) fireQualityChange(level session.QualityLevel) {
	vc.mu.RLock()
	cb := vc.qualityCb
	vc.mu.RUnlock()
	if cb != nil {
		cb(level)
	}
}

func (vc *VideoCall) fireEnded(snap session.Snapshot) {
	vc.mu.RLock()
	cb := vc.endedCb
	vc.mu.RUnlock()
	if cb != nil {
		cb(snap)
	}
}
