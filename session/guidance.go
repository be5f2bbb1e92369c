package session

import (
	"fmt"

	"github.com/opd-ai/rtcsession/engine"
)

// Remediation texts for well-known engine codes.
const (
	GuidanceInvalidArgument = "Invalid argument: use an empty token for an insecure project, or obtain a fresh token, and check the App ID"
	GuidanceNotReady        = "Engine not ready: check the internet connection and the App ID, and make sure the channel name is valid"
	GuidanceCamera          = "Camera not authorized: grant camera permission and check the camera device, then restart the app"
	GuidanceTokenExpired    = "Token expired: obtain a fresh token and join again"
)

// Guidance returns remediation text for an engine error or join failure
// code. Unknown codes get a generic message naming the code.
func Guidance(code int) string {
	switch code {
	case engine.CodeInvalidArgument, engine.CodeInvalidToken:
		return GuidanceInvalidArgument
	case engine.CodeNotReady, engine.CodeLoadMediaEngine:
		return GuidanceNotReady
	case engine.CodeCameraNotAuthorized:
		return GuidanceCamera
	case engine.CodeTokenExpired:
		return GuidanceTokenExpired
	default:
		return fmt.Sprintf("Unexpected engine error (code %d)", code)
	}
}
