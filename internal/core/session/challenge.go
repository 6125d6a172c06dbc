package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrChallenge is returned when a bot challenge blocks the flow.
var ErrChallenge = errors.New("bot challenge not resolved")

// challengeMarkers are lower-case phrases of interstitial challenge pages.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"verifying you are human",
	"verify you are human",
	"attention required",
	"cf-challenge",
	"cf-browser-verification",
	"challenge-platform",
	"enable javascript and cookies to continue",
	"vérification que vous êtes humain",
	"ddos protection by",
}

// IsChallenge reports whether text looks like an anti-bot interstitial.
func IsChallenge(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "ray id") {
		return true
	}
	return false
}

// TextSource yields the currently rendered text of a page.
type TextSource interface {
	VisibleText(ctx context.Context) (string, error)
}

type TextSourceFunc func(ctx context.Context) (string, error)

func (f TextSourceFunc) VisibleText(ctx context.Context) (string, error) { return f(ctx) }

type ChallengeWait struct {
	Timeout  time.Duration
	Interval time.Duration
	// Strict turns a timeout into ErrChallenge instead of proceeding.
	Strict bool
}

// Wait polls src until no challenge marker is visible or the timeout
// elapses. It reports whether the challenge was seen to resolve; on timeout
// it returns (false, nil) unless Strict is set. Read errors count as "still
// challenged" for that poll.
func (w ChallengeWait) Wait(ctx context.Context, src TextSource) (bool, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if text, err := src.VisibleText(ctx); err == nil && !IsChallenge(text) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			if w.Strict {
				return false, ErrChallenge
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
