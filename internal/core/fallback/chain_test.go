package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeDOM exposes a fixed set of matching selectors.
type fakeDOM struct {
	present map[string]bool
	tried   []string
}

func (d *fakeDOM) strategy(selector string) Strategy {
	return Strategy{Name: selector, Try: func(context.Context) error {
		d.tried = append(d.tried, selector)
		if d.present[selector] {
			return nil
		}
		return errors.New("not found")
	}}
}

func (d *fakeDOM) chain(selectors ...string) Chain {
	c := Chain{Target: "login submit"}
	for _, s := range selectors {
		c.Strategies = append(c.Strategies, d.strategy(s))
	}
	return c
}

func TestRunTriesInOrderUntilLastCandidate(t *testing.T) {
	dom := &fakeDOM{present: map[string]bool{"text:se connecter": true}}
	chain := dom.chain("button[type='submit']", "input[type='submit']", "text:se connecter")

	winner, err := chain.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if winner != "text:se connecter" {
		t.Errorf("winner = %q", winner)
	}
	expected := []string{"button[type='submit']", "input[type='submit']", "text:se connecter"}
	if strings.Join(dom.tried, ",") != strings.Join(expected, ",") {
		t.Errorf("tried %v, expected %v", dom.tried, expected)
	}
}

func TestRunStopsAtFirstSuccess(t *testing.T) {
	dom := &fakeDOM{present: map[string]bool{"#a": true, "#b": true}}
	winner, err := dom.chain("#a", "#b").Run(context.Background())
	if err != nil || winner != "#a" {
		t.Fatalf("Run = (%q, %v)", winner, err)
	}
	if len(dom.tried) != 1 {
		t.Errorf("expected a single attempt, got %v", dom.tried)
	}
}

func TestRunExhaustedReturnsNoControlFound(t *testing.T) {
	dom := &fakeDOM{}
	_, err := dom.chain("#a", "#b").Run(context.Background())
	if !errors.Is(err, ErrNoControlFound) {
		t.Fatalf("expected ErrNoControlFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "login submit") || !strings.Contains(err.Error(), "#b: not found") {
		t.Errorf("error should name the target and each failure: %v", err)
	}
}

func TestRunBoundsEachAttempt(t *testing.T) {
	slow := Strategy{Name: "slow", Try: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	fast := Strategy{Name: "fast", Try: func(context.Context) error { return nil }}

	var observed []string
	chain := Chain{
		Target:     "x",
		Strategies: []Strategy{slow, fast},
		PerAttempt: 10 * time.Millisecond,
		OnAttempt:  func(name string, err error) { observed = append(observed, name) },
	}
	start := time.Now()
	winner, err := chain.Run(context.Background())
	if err != nil || winner != "fast" {
		t.Fatalf("Run = (%q, %v)", winner, err)
	}
	if time.Since(start) > time.Second {
		t.Error("slow strategy was not bounded")
	}
	if len(observed) != 2 {
		t.Errorf("OnAttempt saw %v", observed)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dom := &fakeDOM{present: map[string]bool{"#a": true}}
	if _, err := dom.chain("#a").Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dom.tried) != 0 {
		t.Error("no strategy should run after cancellation")
	}
}
