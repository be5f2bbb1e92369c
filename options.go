package rtcsession

import (
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/rtcsession/engine"
	"github.com/opd-ai/rtcsession/engine/peer"
	"github.com/opd-ai/rtcsession/session"
	"github.com/opd-ai/rtcsession/token"
)

// EngineKind selects the media engine implementation.
type EngineKind int

const (
	// EngineLoopback is the in-process engine.
	EngineLoopback EngineKind = iota
	// EngineWebRTC is the pion/webrtc engine.
	EngineWebRTC
)

// String returns the string representation of the engine kind.
func (k EngineKind) String() string {
	switch k {
	case EngineLoopback:
		return "loopback"
	case EngineWebRTC:
		return "webrtc"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ParseEngineKind parses the names returned by EngineKind.String.
func ParseEngineKind(s string) (EngineKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loopback", "":
		return EngineLoopback, nil
	case "webrtc":
		return EngineWebRTC, nil
	default:
		return 0, fmt.Errorf("unknown engine %q", s)
	}
}

// Options contains configuration for a VideoCall.
type Options struct {
	AppID   string
	Profile engine.ChannelProfile
	Role    engine.ClientRole

	Engine   EngineKind
	Loopback engine.LoopbackOptions
	Peer     peer.Options

	// Certificate enables local development tokens when TokenServerURL is
	// empty.
	Certificate string
	// TokenServerURL is the base URL of a token issuing server.
	TokenServerURL string
	TokenTTL       time.Duration

	StaleStatsTimeout time.Duration
	LeaveTimeout      time.Duration
	QualityThresholds *session.QualityThresholds

	// Permissions is asked for camera and microphone access before
	// joining. Nil grants access.
	Permissions session.PermissionRequester
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Profile:           engine.ProfileLiveBroadcasting,
		Role:              engine.RoleBroadcaster,
		Engine:            EngineLoopback,
		Loopback:          engine.DefaultLoopbackOptions(),
		Peer:              peer.DefaultOptions(""),
		TokenTTL:          token.DefaultTTL,
		StaleStatsTimeout: 10 * time.Second,
		LeaveTimeout:      5 * time.Second,
	}
}

func (o *Options) tokenRole() token.Role {
	if o.Role == engine.RoleAudience {
		return token.RoleSubscriber
	}
	return token.RolePublisher
}

// tokenProvider returns the provider used when Join gets no token, or nil
// when tokens are not configured.
func (o *Options) tokenProvider() token.Provider {
	switch {
	case o.TokenServerURL != "":
		p := token.NewHTTPProvider(o.TokenServerURL)
		p.Role = o.tokenRole()
		return p
	case o.Certificate != "":
		b := token.NewDevBuilder(o.AppID, o.Certificate)
		b.Role = o.tokenRole()
		if o.TokenTTL > 0 {
			b.TTL = o.TokenTTL
		}
		return b
	default:
		return nil
	}
}
