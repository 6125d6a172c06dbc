package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsChallenge(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"Just a moment...", true},
		{"Checking your browser before accessing", true},
		{"Performance & security by Cloudflare · Ray ID: 8a1b", true},
		{"Bienvenue sur votre espace revendeur", false},
		{"", false},
	}
	for _, test := range tests {
		if got := IsChallenge(test.text); got != test.expected {
			t.Errorf("IsChallenge(%q) = %v, expected %v", test.text, got, test.expected)
		}
	}
}

func TestWaitReturnsAsSoonAsChallengeClears(t *testing.T) {
	var polls int32
	src := TextSourceFunc(func(context.Context) (string, error) {
		if atomic.AddInt32(&polls, 1) < 3 {
			return "Just a moment...", nil
		}
		return "Commande rapide", nil
	})

	resolved, err := ChallengeWait{Timeout: time.Second, Interval: time.Millisecond}.Wait(context.Background(), src)
	if err != nil || !resolved {
		t.Fatalf("Wait = (%v, %v), expected (true, nil)", resolved, err)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
}

func TestWaitTimeoutIsOptimisticByDefault(t *testing.T) {
	src := TextSourceFunc(func(context.Context) (string, error) { return "Just a moment...", nil })

	resolved, err := ChallengeWait{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond}.Wait(context.Background(), src)
	if err != nil {
		t.Fatalf("expected no error on timeout, got %v", err)
	}
	if resolved {
		t.Error("timeout must not report the challenge as resolved")
	}
}

func TestWaitStrictTimeoutFails(t *testing.T) {
	src := TextSourceFunc(func(context.Context) (string, error) { return "", errors.New("page gone") })

	_, err := ChallengeWait{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond, Strict: true}.Wait(context.Background(), src)
	if !errors.Is(err, ErrChallenge) {
		t.Fatalf("expected ErrChallenge, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := TextSourceFunc(func(context.Context) (string, error) { return "just a moment", nil })

	if _, err := (ChallengeWait{Timeout: time.Minute}).Wait(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHeadersApplyKeepsExplicitValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://portal.example.com/login", nil)
	req.Header.Set("Accept", "application/json")
	DesktopChrome.Apply(req, FetchSiteSameOrigin)

	if req.Header.Get("Accept") != "application/json" {
		t.Errorf("Apply overwrote an explicit header")
	}
	if req.Header.Get("User-Agent") != DesktopChrome.UserAgent {
		t.Errorf("User-Agent not applied")
	}
	if req.Header.Get("Sec-Fetch-Site") != "same-origin" {
		t.Errorf("Sec-Fetch-Site = %q", req.Header.Get("Sec-Fetch-Site"))
	}
}

func TestNewClientDoesNotFollowRedirectsAndKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	client, err := NewClient(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get(srv.URL + "/start")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/next" {
		t.Errorf("redirect was followed: status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	names := CookieNames(client, srv.URL)
	if len(names) != 1 || names[0] != "PHPSESSID" {
		t.Errorf("CookieNames = %v", names)
	}
}
