package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtcsession/engine"
)

// joinCall records the arguments of one JoinChannel call.
type joinCall struct {
	token     string
	channelID string
	uid       uint32
	opts      engine.JoinOptions
}

// fakeEngine is a scriptable MediaEngine. It never emits events on its own;
// tests drive the controller with Dispatch or through emit.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	joins    []joinCall
	muted    []bool
	video    []bool
	failures map[string]error
	handler  engine.Handler
	releases int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failures: make(map[string]error)}
}

func (f *fakeEngine) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *fakeEngine) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failures[op]
}

func (f *fakeEngine) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) emit(ev engine.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeEngine) Initialize(appID string, profile engine.ChannelProfile) error {
	return f.record("Initialize")
}

func (f *fakeEngine) RegisterEventHandler(h engine.Handler) error {
	if err := f.record("RegisterEventHandler"); err != nil {
		return err
	}
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) UnregisterEventHandler() error {
	if err := f.record("UnregisterEventHandler"); err != nil {
		return err
	}
	f.mu.Lock()
	f.handler = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) EnableVideo() error  { return f.record("EnableVideo") }
func (f *fakeEngine) StartPreview() error { return f.record("StartPreview") }
func (f *fakeEngine) LeaveChannel() error { return f.record("LeaveChannel") }
func (f *fakeEngine) SwitchCamera() error { return f.record("SwitchCamera") }

func (f *fakeEngine) JoinChannel(tok, channelID string, uid uint32, opts engine.JoinOptions) error {
	if err := f.record("JoinChannel"); err != nil {
		return err
	}
	f.mu.Lock()
	f.joins = append(f.joins, joinCall{token: tok, channelID: channelID, uid: uid, opts: opts})
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) MuteLocalAudioStream(muted bool) error {
	if err := f.record("MuteLocalAudioStream"); err != nil {
		return err
	}
	f.mu.Lock()
	f.muted = append(f.muted, muted)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) EnableLocalVideo(enabled bool) error {
	if err := f.record("EnableLocalVideo"); err != nil {
		return err
	}
	f.mu.Lock()
	f.video = append(f.video, enabled)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Release() error {
	_ = f.record("Release")
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
	return nil
}

// fakeClock is a manually advanced TimeProvider. Timers fire from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// pending returns the number of timers that have neither fired nor been
// stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock and runs due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	kept := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			t.stopped = true
			due = append(due, t.fn)
		default:
			kept = append(kept, t)
		}
	}
	c.timers = kept
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// fakeTokens is a scriptable token.Provider.
type fakeTokens struct {
	configured bool
	token      string
	err        error
	calls      int
}

func (p *fakeTokens) Generate(ctx context.Context, channelID string, uid uint32) (string, error) {
	p.calls++
	return p.token, p.err
}

func (p *fakeTokens) IsConfigured() bool { return p.configured }

// callbackLog records controller callbacks.
type callbackLog struct {
	mu          sync.Mutex
	transitions []ConnectionState
	errors      []error
	ended       []Snapshot
	quality     []QualityLevel
}

func (l *callbackLog) callbacks() Callbacks {
	return Callbacks{
		OnStateChange: func(prev, next ConnectionState) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.transitions = append(l.transitions, next)
		},
		OnError: func(err error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.errors = append(l.errors, err)
		},
		OnEnded: func(snap Snapshot) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.ended = append(l.ended, snap)
		},
		OnQualityChange: func(level QualityLevel) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.quality = append(l.quality, level)
		},
	}
}

func (l *callbackLog) endedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ended)
}

func (l *callbackLog) errorList() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errors...)
}

func (l *callbackLog) states() []ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConnectionState(nil), l.transitions...)
}

// harness bundles a controller with its fakes.
type harness struct {
	ctrl      *Controller
	eng       *fakeEngine
	clock     *fakeClock
	log       *callbackLog
	factories int
}

func newHarness(t *testing.T, mutate func(*ControllerConfig)) *harness {
	t.Helper()

	h := &harness{
		eng:   newFakeEngine(),
		clock: newFakeClock(),
		log:   &callbackLog{},
	}
	cfg := ControllerConfig{
		AppID:   "test-app-id",
		Profile: engine.ProfileLiveBroadcasting,
		EngineFactory: func() (engine.MediaEngine, error) {
			h.factories++
			return h.eng, nil
		},
		Callbacks:    h.log.callbacks(),
		TimeProvider: h.clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctrl, err := NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })
	h.ctrl = ctrl
	return h
}

// joined starts the session and delivers a join success for uid.
func (h *harness) joined(t *testing.T, uid uint32) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))
	h.ctrl.Dispatch(engine.JoinSuccessEvent{
		Connection: engine.Connection{ChannelID: "room-42", LocalUID: uid},
		Elapsed:    120 * time.Millisecond,
	})
	require.Equal(t, StateJoined, h.ctrl.State())
}

func conn() engine.Connection {
	return engine.Connection{ChannelID: "room-42", LocalUID: 1}
}
