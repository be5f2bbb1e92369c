package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtcsession/engine"
)

func TestNewControllerRequiresFactory(t *testing.T) {
	_, err := NewController(ControllerConfig{AppID: "app"})
	assert.ErrorIs(t, err, ErrNoEngineFactory)
}

func TestStartJoinsWithSuppliedToken(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.Tokens = &fakeTokens{configured: false, token: "unused"}
	})

	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))

	assert.Equal(t, StateJoining, h.ctrl.State())
	assert.Equal(t, []string{"Initialize", "RegisterEventHandler", "EnableVideo", "StartPreview", "JoinChannel"}, h.eng.callLog())
	require.Len(t, h.eng.joins, 1)
	assert.Equal(t, joinCall{
		token:     "",
		channelID: "room-42",
		uid:       0,
		opts:      engine.JoinOptions{Role: engine.RoleBroadcaster},
	}, h.eng.joins[0])
	assert.Equal(t, []ConnectionState{StateInitializing, StatePermissionsPending, StateJoining}, h.log.states())
}

func TestStartValidatesArguments(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.ctrl.Start(context.Background(), "", "", 0), ErrInvalidChannel)
	assert.Equal(t, StateIdle, h.ctrl.State())

	require.NoError(t, h.ctrl.Start(context.Background(), "room", "", 0))
	assert.ErrorIs(t, h.ctrl.Start(context.Background(), "room", "", 0), ErrAlreadyStarted)
}

func TestStartRejectsPlaceholderAppID(t *testing.T) {
	for _, appID := range []string{"", "   ", "YOUR_AGORA_APP_ID", "YOUR_NEW_AGORA_APP_ID", "YOUR_APP_ID"} {
		t.Run(appID, func(t *testing.T) {
			h := newHarness(t, func(cfg *ControllerConfig) { cfg.AppID = appID })

			err := h.ctrl.Start(context.Background(), "room-42", "", 0)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, StateFailed, h.ctrl.State())
			assert.Zero(t, h.factories, "engine must not be created")
			assert.Zero(t, h.eng.count("JoinChannel"))
			assert.Equal(t, 1, h.log.endedCount())
		})
	}
}

func TestStartPermissionDenied(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.Permissions = PermissionFunc(func(ctx context.Context) (bool, error) { return false, nil })
	})

	err := h.ctrl.Start(context.Background(), "room-42", "", 0)

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Zero(t, h.factories)
	assert.Equal(t, 1, h.log.endedCount())
}

func TestStartPermissionRequestCanceled(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.Permissions = PermissionFunc(func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.ctrl.Start(ctx, "room-42", "", 0)

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, h.ctrl.State())
}

func TestTokenResolution(t *testing.T) {
	tests := []struct {
		name     string
		supplied string
		provider *fakeTokens
		expected string
		calls    int
	}{
		{"no provider", "", nil, "", 0},
		{"unconfigured provider", "", &fakeTokens{token: "gen"}, "", 0},
		{"generated", "", &fakeTokens{configured: true, token: "gen"}, "gen", 1},
		{"supplied wins", "mine", &fakeTokens{configured: true, token: "gen"}, "mine", 0},
		{"generation error", "", &fakeTokens{configured: true, err: errors.New("boom")}, "", 1},
		{"empty generation", "", &fakeTokens{configured: true}, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *ControllerConfig) {
				if tt.provider != nil {
					cfg.Tokens = tt.provider
				}
			})

			require.NoError(t, h.ctrl.Start(context.Background(), "room-42", tt.supplied, 0))
			require.Len(t, h.eng.joins, 1)
			assert.Equal(t, tt.expected, h.eng.joins[0].token)
			assert.Equal(t, tt.expected, h.ctrl.Snapshot().Token)
			if tt.provider != nil {
				assert.Equal(t, tt.calls, tt.provider.calls)
			}
		})
	}
}

func TestEngineSetupFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.fail("Initialize", &engine.Error{Op: "Initialize", Code: engine.CodeInvalidAppID, Message: "bad app"})

	err := h.ctrl.Start(context.Background(), "room-42", "", 0)

	var jerr *JoinError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, engine.CodeInvalidAppID, jerr.Code)
	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.False(t, h.ctrl.HasEngine())
	assert.Equal(t, 1, h.eng.releases)
	assert.Zero(t, h.eng.count("JoinChannel"))
}

func TestEngineFactoryFailure(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.EngineFactory = func() (engine.MediaEngine, error) { return nil, errors.New("no device") }
	})

	err := h.ctrl.Start(context.Background(), "room-42", "", 0)
	assert.ErrorIs(t, err, ErrJoinFailed)
	assert.Equal(t, StateFailed, h.ctrl.State())
}

func TestJoinSuccessAdoptsAssignedUID(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 4242)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, uint32(4242), snap.LocalUID)
	assert.Equal(t, 120*time.Millisecond, snap.JoinElapsed)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, defaultMediaState(), snap.Media)
}

func TestJoinFailureInvalidArgument(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))

	h.ctrl.Dispatch(engine.JoinFailureEvent{Connection: conn(), Reason: 110})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	require.ErrorIs(t, snap.Err, ErrJoinFailed)
	assert.Contains(t, snap.Err.Error(), GuidanceInvalidArgument)
	assert.False(t, h.ctrl.HasEngine())

	errs := h.log.errorList()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "use an empty token for an insecure project")
	assert.Equal(t, 1, h.log.endedCount())
}

func TestParticipantsAddRemove(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 7})
	h.ctrl.Dispatch(engine.RemoteVideoStatsEvent{Connection: conn(), Stats: engine.RemoteVideoStats{UID: 7, Width: 640}})
	h.ctrl.Dispatch(engine.RemoteAudioStatsEvent{Connection: conn(), Stats: engine.RemoteAudioStats{UID: 7, ReceivedBitrate: 48}})
	require.Contains(t, h.ctrl.Snapshot().Stats.Remote, uint32(7))

	h.ctrl.Dispatch(engine.UserOfflineEvent{Connection: conn(), RemoteUID: 7, Reason: engine.OfflineQuit})

	snap := h.ctrl.Snapshot()
	assert.Empty(t, snap.Participants)
	assert.NotContains(t, snap.Stats.Remote, uint32(7))
}

func TestParticipantsIgnoreLocalUIDAndDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 5)

	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 5})
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 9})
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 9})
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 3})

	assert.Equal(t, []uint32{3, 9}, h.ctrl.Snapshot().Participants)
}

func TestParticipantsMatchMembershipModel(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	rng := rand.New(rand.NewSource(42))
	model := map[uint32]bool{}

	for i := 0; i < 500; i++ {
		uid := uint32(rng.Intn(10) + 2)
		if rng.Intn(2) == 0 {
			h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: uid})
			model[uid] = true
		} else {
			h.ctrl.Dispatch(engine.UserOfflineEvent{Connection: conn(), RemoteUID: uid})
			delete(model, uid)
		}

		snap := h.ctrl.Snapshot()
		require.Len(t, snap.Participants, len(model))
		for uid := range model {
			require.True(t, snap.HasParticipant(uid))
		}
	}
}

func TestRemoteStatsRequirePresentParticipant(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	h.ctrl.Dispatch(engine.RemoteVideoStatsEvent{Connection: conn(), Stats: engine.RemoteVideoStats{UID: 8}})
	h.ctrl.Dispatch(engine.RemoteAudioStatsEvent{Connection: conn(), Stats: engine.RemoteAudioStats{UID: 0}})

	assert.Empty(t, h.ctrl.Snapshot().Stats.Remote)
}

func TestStatsIgnoredOutsideJoined(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))

	h.ctrl.Dispatch(engine.RtcStatsEvent{Connection: conn(), Stats: engine.RtcStats{CPUAppUsage: 5}})
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 2})

	snap := h.ctrl.Snapshot()
	assert.Zero(t, snap.Stats.Network)
	assert.Empty(t, snap.Participants)
}

func TestStatsMergeIsCommutative(t *testing.T) {
	rtc := engine.RtcStatsEvent{Connection: conn(), Stats: engine.RtcStats{
		LastmileDelay:    30 * time.Millisecond,
		CPUAppUsage:      4.5,
		CPUTotalUsage:    20,
		TxPacketLossRate: 0.5,
	}}
	video := engine.LocalVideoStatsEvent{Connection: conn(), Stats: engine.LocalVideoStats{
		SentBitrate:            800,
		EncodedFrameWidth:      1280,
		EncodedFrameHeight:     720,
		EncoderOutputFrameRate: 30,
	}}
	audio := engine.LocalAudioStatsEvent{Connection: conn(), Stats: engine.LocalAudioStats{SentBitrate: 48}}

	a := newHarness(t, nil)
	a.joined(t, 1)
	a.ctrl.Dispatch(rtc)
	a.ctrl.Dispatch(video)
	a.ctrl.Dispatch(audio)

	b := newHarness(t, nil)
	b.joined(t, 1)
	b.ctrl.Dispatch(audio)
	b.ctrl.Dispatch(video)
	b.ctrl.Dispatch(rtc)

	assert.Equal(t, a.ctrl.Snapshot().Stats, b.ctrl.Snapshot().Stats)
	assert.Equal(t, uint32(1280), a.ctrl.Snapshot().Stats.LocalVideo.EncodedFrameWidth)
	assert.Equal(t, 30*time.Millisecond, a.ctrl.Snapshot().Stats.Network.LastmileDelay)
}

func TestStaleRemoteStatsEviction(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) { cfg.StaleStatsTimeout = 10 * time.Second })
	h.joined(t, 1)

	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 7})
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 8})
	h.ctrl.Dispatch(engine.RemoteVideoStatsEvent{Connection: conn(), Stats: engine.RemoteVideoStats{UID: 7}})
	h.ctrl.Dispatch(engine.RemoteVideoStatsEvent{Connection: conn(), Stats: engine.RemoteVideoStats{UID: 8}})

	h.clock.Advance(8 * time.Second)
	h.ctrl.Dispatch(engine.RemoteAudioStatsEvent{Connection: conn(), Stats: engine.RemoteAudioStats{UID: 8}})
	h.clock.Advance(5 * time.Second)
	h.ctrl.Dispatch(engine.RtcStatsEvent{Connection: conn()})

	snap := h.ctrl.Snapshot()
	assert.NotContains(t, snap.Stats.Remote, uint32(7))
	assert.Contains(t, snap.Stats.Remote, uint32(8))
	assert.Equal(t, []uint32{7, 8}, snap.Participants, "eviction keeps participants")
}

func TestToggleMuteTwice(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	before := h.ctrl.Snapshot().Media

	require.NoError(t, h.ctrl.ToggleMute())
	mid := h.ctrl.Snapshot().Media
	assert.True(t, mid.AudioMuted)
	assert.Equal(t, before.VideoEnabled, mid.VideoEnabled)
	assert.Equal(t, before.Camera, mid.Camera)

	require.NoError(t, h.ctrl.ToggleMute())
	assert.Equal(t, before, h.ctrl.Snapshot().Media)
	assert.Equal(t, []bool{true, false}, h.eng.muted)
}

func TestToggleVideoAndCamera(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	require.NoError(t, h.ctrl.ToggleVideo())
	require.NoError(t, h.ctrl.SwitchCamera())

	media := h.ctrl.Snapshot().Media
	assert.False(t, media.VideoEnabled)
	assert.Equal(t, CameraBack, media.Camera)
	assert.False(t, media.AudioMuted)
	assert.Equal(t, []bool{false}, h.eng.video)
}

func TestMediaCommandFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	h.eng.fail("SwitchCamera", errors.New("camera busy"))

	err := h.ctrl.SwitchCamera()

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "SwitchCamera", cerr.Op)
	assert.ErrorIs(t, err, ErrCommand)
	assert.Equal(t, CameraFront, h.ctrl.Snapshot().Media.Camera)
	assert.Equal(t, StateJoined, h.ctrl.State())
	assert.Len(t, h.log.errorList(), 1)
}

func TestMediaCommandsRequireJoined(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.ctrl.ToggleMute(), ErrNotJoined)
	assert.ErrorIs(t, h.ctrl.ToggleVideo(), ErrNotJoined)
	assert.ErrorIs(t, h.ctrl.SwitchCamera(), ErrNotJoined)
	assert.Zero(t, h.eng.count("MuteLocalAudioStream"))
}

func TestEndFromIdleAndFailedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.End())
	assert.Equal(t, StateIdle, h.ctrl.State())

	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))
	h.ctrl.Dispatch(engine.JoinFailureEvent{Connection: conn(), Reason: 17})
	require.Equal(t, StateFailed, h.ctrl.State())

	require.NoError(t, h.ctrl.End())
	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Zero(t, h.eng.count("LeaveChannel"))
	assert.Equal(t, 1, h.log.endedCount())
}

func TestEndFromJoined(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 2})

	require.NoError(t, h.ctrl.End())
	assert.Equal(t, StateLeaving, h.ctrl.State())
	assert.Equal(t, 1, h.eng.count("LeaveChannel"))
	assert.True(t, h.ctrl.HasEngine())

	h.ctrl.Dispatch(engine.LeftEvent{Connection: conn()})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateLeft, snap.State)
	assert.NoError(t, snap.Err)
	assert.False(t, h.ctrl.HasEngine())
	assert.Equal(t, 1, h.eng.count("UnregisterEventHandler"))
	assert.Equal(t, 1, h.eng.releases)

	require.NoError(t, h.ctrl.End())
	assert.Equal(t, 1, h.eng.count("LeaveChannel"))
	assert.Equal(t, 1, h.log.endedCount())

	select {
	case <-h.ctrl.Done():
	default:
		t.Fatal("Done not closed after Left")
	}
}

func TestEndWhileJoiningLeavesAfterSuccess(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))

	require.NoError(t, h.ctrl.End())
	assert.Equal(t, StateJoining, h.ctrl.State())
	assert.Zero(t, h.eng.count("LeaveChannel"))

	h.ctrl.Dispatch(engine.JoinSuccessEvent{Connection: conn()})
	assert.Equal(t, StateLeaving, h.ctrl.State())
	assert.Equal(t, 1, h.eng.count("LeaveChannel"))

	h.ctrl.Dispatch(engine.LeftEvent{Connection: conn()})
	assert.Equal(t, StateLeft, h.ctrl.State())
	assert.False(t, h.ctrl.HasEngine())
}

func TestEndWhileJoiningSettlesLeftOnFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))
	require.NoError(t, h.ctrl.End())

	h.ctrl.Dispatch(engine.JoinFailureEvent{Connection: conn(), Reason: 110})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateLeft, snap.State)
	assert.NoError(t, snap.Err)
	assert.False(t, h.ctrl.HasEngine())
	assert.Equal(t, 1, h.log.endedCount())
}

func TestKickedWhileJoined(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	h.ctrl.Dispatch(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 2})
	h.ctrl.Dispatch(engine.RtcStatsEvent{Connection: conn(), Stats: engine.RtcStats{CPUAppUsage: 3}})

	h.ctrl.Dispatch(engine.LeftEvent{Connection: conn()})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateLeft, snap.State)
	assert.Empty(t, snap.Participants)
	assert.Zero(t, snap.Stats.Network)
	assert.Empty(t, snap.Stats.Remote)
	assert.Zero(t, h.eng.count("LeaveChannel"))
	assert.False(t, h.ctrl.HasEngine())
}

func TestLeaveCommandFailureForcesLeft(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	h.eng.fail("LeaveChannel", &engine.Error{Op: "LeaveChannel", Code: engine.CodeLeaveChannelRejected})

	err := h.ctrl.End()

	assert.ErrorIs(t, err, ErrCommand)
	assert.Equal(t, StateLeft, h.ctrl.State())
	assert.False(t, h.ctrl.HasEngine())
	assert.Equal(t, 1, h.log.endedCount())
}

func TestLeaveTimeoutForcesLeft(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) { cfg.LeaveTimeout = 5 * time.Second })
	h.joined(t, 1)

	require.NoError(t, h.ctrl.End())
	require.Equal(t, 1, h.clock.pending())

	h.clock.Advance(4 * time.Second)
	assert.Equal(t, StateLeaving, h.ctrl.State())

	h.clock.Advance(time.Second)
	assert.Equal(t, StateLeft, h.ctrl.State())
	assert.False(t, h.ctrl.HasEngine())
	assert.Equal(t, 1, h.log.endedCount())
}

func TestLeaveConfirmationStopsLeaveTimer(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) { cfg.LeaveTimeout = 5 * time.Second })
	h.joined(t, 1)

	require.NoError(t, h.ctrl.End())
	h.ctrl.Dispatch(engine.LeftEvent{Connection: conn()})
	assert.Equal(t, StateLeft, h.ctrl.State())
	assert.Zero(t, h.clock.pending())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, h.log.endedCount())
}

func TestEventLoopStopsWhenSessionEnds(t *testing.T) {
	tests := []struct {
		name string
		end  func(t *testing.T, h *harness)
	}{
		{"left", func(t *testing.T, h *harness) {
			h.joined(t, 1)
			require.NoError(t, h.ctrl.End())
			h.ctrl.Dispatch(engine.LeftEvent{Connection: conn()})
		}},
		{"failed", func(t *testing.T, h *harness) {
			require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))
			h.ctrl.Dispatch(engine.JoinFailureEvent{Connection: conn(), Reason: engine.CodeInvalidToken})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.end(t, h)
			require.True(t, h.ctrl.State().IsTerminal())

			select {
			case <-h.ctrl.loopDone:
			case <-time.After(time.Second):
				t.Fatal("event loop still running after the session ended")
			}
		})
	}
}

func TestEngineErrorIsNotTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	h.ctrl.Dispatch(engine.ErrorEvent{Code: engine.CodeCameraNotAuthorized, Message: "camera"})

	assert.Equal(t, StateJoined, h.ctrl.State())
	errs := h.log.errorList()
	require.Len(t, errs, 1)

	var eerr *EngineError
	require.ErrorAs(t, errs[0], &eerr)
	assert.ErrorIs(t, errs[0], ErrEngine)
	assert.Contains(t, eerr.Error(), GuidanceCamera)
}

func TestQualityFollowsConnectionStats(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)
	assert.Equal(t, QualityUnknown, h.ctrl.Snapshot().Quality)

	h.ctrl.Dispatch(engine.RtcStatsEvent{Connection: conn(), Stats: engine.RtcStats{LastmileDelay: 10 * time.Millisecond}})
	assert.Equal(t, QualityExcellent, h.ctrl.Snapshot().Quality)

	h.ctrl.Dispatch(engine.RtcStatsEvent{Connection: conn(), Stats: engine.RtcStats{TxPacketLossRate: 20}})
	assert.Equal(t, QualityUnacceptable, h.ctrl.Snapshot().Quality)

	assert.Equal(t, []QualityLevel{QualityExcellent, QualityUnacceptable}, h.log.quality)
}

func TestCloseReleasesEngineOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.joined(t, 1)

	require.NoError(t, h.ctrl.Close())
	require.NoError(t, h.ctrl.Close())

	assert.Equal(t, StateLeft, h.ctrl.State())
	assert.Equal(t, 1, h.eng.releases)
	assert.Equal(t, 1, h.log.endedCount())
	assert.ErrorIs(t, h.ctrl.Start(context.Background(), "room", "", 0), ErrClosed)
}

func TestCloseWhilePermissionPending(t *testing.T) {
	entered := make(chan struct{})
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.Permissions = PermissionFunc(func(ctx context.Context) (bool, error) {
			close(entered)
			<-ctx.Done()
			return false, ctx.Err()
		})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(context.Background(), "room-42", "", 0) }()

	<-entered
	require.NoError(t, h.ctrl.Close())

	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Zero(t, h.factories)
}

func TestEventsFromEngineAreQueued(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))

	h.eng.emit(engine.JoinSuccessEvent{Connection: engine.Connection{ChannelID: "room-42", LocalUID: 11}})
	h.eng.emit(engine.UserJoinedEvent{Connection: conn(), RemoteUID: 12})

	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().HasParticipant(12)
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint32(11), h.ctrl.Snapshot().LocalUID)
}

func TestCallbackMayCallBackIntoController(t *testing.T) {
	var h *harness
	h = newHarness(t, func(cfg *ControllerConfig) {
		cfg.Callbacks.OnStateChange = func(prev, next ConnectionState) {
			if next == StateJoined {
				_ = h.ctrl.End()
			}
		}
	})

	require.NoError(t, h.ctrl.Start(context.Background(), "room-42", "", 0))
	h.ctrl.Dispatch(engine.JoinSuccessEvent{Connection: conn()})

	assert.Equal(t, StateLeaving, h.ctrl.State())
}
