package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderbridge/internal/core/job"
	"orderbridge/internal/core/order"
	"orderbridge/internal/telemetry"

	"github.com/gofiber/fiber/v2"
)

func newApp(f *fixture) *fiber.App {
	app := fiber.New()
	h := NewHandler(f.svc, f.logs)
	app.Post("/v1/orders", h.HandleCreate)
	app.Get("/v1/orders/connection", h.HandleConnection)
	app.Get("/v1/orders/:id", h.HandleGet)
	app.Get("/v1/logs", h.HandleLogs)
	app.Get("/v1/logs/stats", h.HandleLogStats)
	app.Delete("/v1/logs", h.HandleClearLogs)
	return app
}

func call(t *testing.T, app *fiber.App, method, target string, body interface{}, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, target, err)
		}
	}
	return resp.StatusCode
}

func TestHandleCreateSync(t *testing.T) {
	f := newFixture()
	app := newApp(f)

	var res order.AutomationResult
	if status := call(t, app, "POST", "/v1/orders", validRequest(), &res); status != http.StatusOK {
		t.Fatalf("status = %d, result = %+v", status, res)
	}
	if !res.Success || res.ChoganLink == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestHandleCreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*order.OrderRequest)
		failAt string
		want   int
	}{
		{"missing password", func(r *order.OrderRequest) { r.Credentials.Password = "" }, "", http.StatusBadRequest},
		{"unknown backend", func(r *order.OrderRequest) { r.Backend = "fax" }, "", http.StatusBadRequest},
		{"remote failure", func(*order.OrderRequest) {}, "finalize", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.http.failAt = tt.failAt
			req := validRequest()
			tt.mutate(&req)

			var res order.AutomationResult
			if status := call(t, newApp(f), "POST", "/v1/orders", req, &res); status != tt.want {
				t.Errorf("status = %d, expected %d (%+v)", status, tt.want, res)
			}
			if res.Success || res.Error == "" {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestHandleCreateAsync(t *testing.T) {
	f := newFixture()
	app := newApp(f)

	var accepted struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}
	if status := call(t, app, "POST", "/v1/orders?async=true", validRequest(), &accepted); status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	if !accepted.Success || accepted.JobID == "" {
		t.Fatalf("response = %+v", accepted)
	}

	var j job.Job
	if status := call(t, app, "GET", "/v1/orders/"+accepted.JobID, nil, &j); status != http.StatusAccepted || j.Status != job.StatusPending {
		t.Fatalf("pending job: status %d, %+v", status, j)
	}

	if err := f.svc.HandleTask(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatal(err)
	}
	if status := call(t, app, "GET", "/v1/orders/"+accepted.JobID, nil, &j); status != http.StatusOK || j.Status != job.StatusCompleted {
		t.Fatalf("finished job: status %d, %+v", status, j)
	}

	if status := call(t, app, "GET", "/v1/orders/nope", nil, nil); status != http.StatusNotFound {
		t.Errorf("unknown job status = %d", status)
	}
}

func TestHandleConnection(t *testing.T) {
	f := newFixture()
	var body struct {
		Success bool `json:"success"`
	}
	if status := call(t, newApp(f), "GET", "/v1/orders/connection", nil, &body); status != http.StatusOK || !body.Success {
		t.Errorf("status = %d, body = %+v", status, body)
	}
	if status := call(t, newApp(f), "GET", "/v1/orders/connection?backend=gopher", nil, nil); status != http.StatusBadRequest {
		t.Errorf("unknown backend status = %d", status)
	}
}

func TestHandleLogs(t *testing.T) {
	f := newFixture()
	app := newApp(f)
	f.logs.Clear()
	f.logs.Append(telemetry.Entry{Level: telemetry.LevelError, Module: "Pipeline", Message: "run failed"})
	f.logs.Append(telemetry.Entry{Level: telemetry.LevelInfo, Module: "Pipeline", Message: "run started"})
	f.logs.Append(telemetry.Entry{Level: telemetry.LevelError, Module: "Browser", Message: "launch failed"})

	var list struct {
		Count int               `json:"count"`
		Logs  []telemetry.Entry `json:"logs"`
	}
	if status := call(t, app, "GET", "/v1/logs?level=error&module=Pipeline", nil, &list); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if list.Count != 1 || list.Logs[0].Message != "run failed" {
		t.Errorf("logs = %+v", list)
	}

	if status := call(t, app, "GET", "/v1/logs?level=loud", nil, nil); status != http.StatusBadRequest {
		t.Errorf("bad level status = %d", status)
	}

	var stats struct {
		Total  int                     `json:"total"`
		Levels map[telemetry.Level]int `json:"levels"`
	}
	call(t, app, "GET", "/v1/logs/stats", nil, &stats)
	if stats.Total != 3 || stats.Levels[telemetry.LevelError] != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if status := call(t, app, "DELETE", "/v1/logs", nil, nil); status != http.StatusNoContent {
		t.Errorf("clear status = %d", status)
	}
	if f.logs.Len() != 0 {
		t.Errorf("%d entries left after clear", f.logs.Len())
	}
}
