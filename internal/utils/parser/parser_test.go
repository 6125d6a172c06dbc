package parser

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type query struct {
	N       int           `form:"n" default:"100"`
	Level   string        `form:"level"`
	Async   *bool         `form:"async"`
	Timeout time.Duration `form:"timeout"`
	Ignored string
}

func parse(t *testing.T, target string) (query, int) {
	t.Helper()
	var got query
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if err := ParseQuery(c, &got); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	if err != nil {
		t.Fatal(err)
	}
	return got, resp.StatusCode
}

func TestParseQuery(t *testing.T) {
	got, status := parse(t, "/?level=error&async=true&timeout=2s&Ignored=x")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if got.N != 100 || got.Level != "error" || got.Async == nil || !*got.Async || got.Timeout != 2*time.Second {
		t.Errorf("parsed %+v", got)
	}
	if got.Ignored != "" {
		t.Errorf("untagged field was set")
	}
}

func TestParseQueryRejectsBadValues(t *testing.T) {
	for _, target := range []string{"/?n=ten", "/?async=maybe", "/?timeout=soon"} {
		if _, status := parse(t, target); status != 400 {
			t.Errorf("%s: status = %d", target, status)
		}
	}
}
