package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"orderbridge/internal/logger"

	"github.com/gofiber/fiber/v2"
)

func getHealth(t *testing.T, h *HealthHandler) (int, OverallHealth) {
	t.Helper()
	app := fiber.New()
	app.Get("/v1/health", h.HandleHealth)
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body OverallHealth
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]Check
		ready      bool
		wantStatus int
		wantState  string
	}{
		{"starting", map[string]Check{"redis": ok}, false, 503, "starting"},
		{"healthy", map[string]Check{"redis": ok}, true, 200, "ok"},
		{"component down", map[string]Check{"redis": down, "storage": ok}, true, 503, "error"},
		{"down while starting", map[string]Check{"redis": down}, false, 503, "starting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, logger.Nop(nil))
			if tt.ready {
				h.SetReady()
			}
			status, body := getHealth(t, h)
			if status != tt.wantStatus || body.OverallStatus != tt.wantState {
				t.Errorf("got %d %q, expected %d %q", status, body.OverallStatus, tt.wantStatus, tt.wantState)
			}
			if len(body.Components) != len(tt.checks) {
				t.Errorf("components = %v", body.Components)
			}
		})
	}
}
