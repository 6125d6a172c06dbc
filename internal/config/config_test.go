package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("ORDER_BACKEND", "")
	t.Setenv("BROWSER_HEADLESS", "")

	cfg := Load()
	if cfg.Backend != "http" {
		t.Errorf("Backend = %q, expected http", cfg.Backend)
	}
	if cfg.Headless {
		t.Error("browser should be visible in development by default")
	}
	if cfg.LogCapacity != 1000 {
		t.Errorf("LogCapacity = %d, expected 1000", cfg.LogCapacity)
	}
}

func TestLoadProductionIsHeadless(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BROWSER_HEADLESS", "")
	if !Load().Headless {
		t.Error("browser should be headless in production")
	}
}

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", 5 * time.Second},
		{"45s", 45 * time.Second},
		{"250", 250 * time.Millisecond},
		{"garbage", 5 * time.Second},
	}
	for _, test := range tests {
		t.Setenv("TEST_DURATION", test.value)
		if got := getenvDuration("TEST_DURATION", 5*time.Second); got != test.expected {
			t.Errorf("getenvDuration(%q) = %v, expected %v", test.value, got, test.expected)
		}
	}
}

func TestLoadInvalidBackendPanics(t *testing.T) {
	t.Setenv("ORDER_BACKEND", "carrier-pigeon")
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown backend")
		}
	}()
	Load()
}

func TestLoadSiteMissingFileUsesDefaults(t *testing.T) {
	site, err := LoadSite(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	if site.Paths.Completed != "/smartorder/completed" {
		t.Errorf("unexpected default completed path %q", site.Paths.Completed)
	}
}

func TestLoadSiteOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	yaml := `
base_url: https://portal.example.com/
paths:
  completed: /done
selectors:
  login_submit: ["#go"]
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	site, err := LoadSite(path)
	if err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	if site.Paths.Completed != "/done" {
		t.Errorf("Completed = %q", site.Paths.Completed)
	}
	if site.Paths.Login != "/login" {
		t.Errorf("unset path should keep default, got %q", site.Paths.Login)
	}
	if len(site.Selectors.LoginSubmit) != 1 || site.Selectors.LoginSubmit[0] != "#go" {
		t.Errorf("LoginSubmit = %v", site.Selectors.LoginSubmit)
	}
	if got := site.URL("/done"); got != "https://portal.example.com/done" {
		t.Errorf("URL = %q", got)
	}
}

func TestLoadSiteRejectsRelativeBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := os.WriteFile(path, []byte("base_url: portal.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSite(path); err == nil {
		t.Error("expected error for relative base_url")
	}
}

func TestSiteSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	in := DefaultSite()
	in.BaseURL = "https://staging.portal.test"
	in.Paths.Completed = "/smartorder/done"
	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	site, err := LoadSite(path)
	if err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	if site.ShippingChoice != "client" {
		t.Errorf("ShippingChoice = %q", site.ShippingChoice)
	}
	if site.BaseURL != in.BaseURL || site.Paths.Completed != "/smartorder/done" {
		t.Errorf("saved profile read back as %s %s", site.BaseURL, site.Paths.Completed)
	}
}
