// Package detector decides when a statically fetched listing page has to be
// handed to the headless browser strategy instead.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Heuristic flags bot-challenge interstitials and script-only shells.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 4096
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// challengeMarkers appear on anti-bot pages served with a 200 status.
var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("just a moment..."),
	[]byte("attention required!"),
	[]byte("enable javascript and cookies to continue"),
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
}

// ShouldPromote reports whether a 200 response is not the real listing.
func (h *Heuristic) ShouldPromote(resp tracker.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	body := bytes.ToLower(resp.Body)
	if len(body) == 0 {
		return true
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(string(body))
}

func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		var nextSearch int
		if relativeEnd := strings.Index(lower[contentStart:], closeTag); relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage > 0 && scriptCoverage*100/total >= 25
}
