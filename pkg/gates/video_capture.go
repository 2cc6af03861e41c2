package gates

import "strings"

// VideoCaptureFailureClass enumerates the deterministic failure buckets a
// video-capture error message is classified into.
type VideoCaptureFailureClass string

const (
	FailureAuth  VideoCaptureFailureClass = "auth"
	FailureQuota VideoCaptureFailureClass = "quota"
	FailureScript VideoCaptureFailureClass = "script"
	FailureInfra  VideoCaptureFailureClass = "infra"
)

var authMarkers = []string{"401", "403", "unauthorised", "unauthorized", "forbidden", "auth", "token", "permission denied"}
var quotaMarkers = []string{"429", "quota", "rate limit", "insufficient credits", "billing"}
var scriptMarkers = []string{"script", "selector", "assert", "dom", "playwright", "puppeteer", "navigation failed"}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

// ClassifyVideoCaptureFailure deterministically classifies a video-capture
// error message by lowercased substring match, checked in precedence order
// auth → quota → script → infra (the default).
func ClassifyVideoCaptureFailure(errorMessage string) VideoCaptureFailureClass {
	lower := strings.ToLower(errorMessage)
	switch {
	case containsAny(lower, authMarkers):
		return FailureAuth
	case containsAny(lower, quotaMarkers):
		return FailureQuota
	case containsAny(lower, scriptMarkers):
		return FailureScript
	default:
		return FailureInfra
	}
}
