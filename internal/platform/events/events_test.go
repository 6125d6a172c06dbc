package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"orderbridge/internal/core/order"
	"orderbridge/internal/logger"
)

func sampleRequest() order.OrderRequest {
	return order.OrderRequest{
		Credentials: order.Credentials{Email: "reseller@example.com", Password: "hunter2"},
		Client:      order.Client{Prenom: "Jeanne", Nom: "Martin"},
		Produits:    []order.Product{{Ref: "C-101", Quantite: 2}, {Ref: "C-202", Quantite: 1}},
	}
}

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name     string
		res      order.AutomationResult
		wantType string
	}{
		{"success", order.AutomationResult{Success: true, ChoganLink: "https://portal.test/smartorder/completed/abc"}, TypeCompleted},
		{"failure", order.AutomationResult{Error: "link not found"}, TypeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvent("job-1", "http", sampleRequest(), tt.res)
			if e.Type != tt.wantType {
				t.Errorf("type = %s, want %s", e.Type, tt.wantType)
			}
			if strings.Join(e.Refs, ",") != "C-101,C-202" || e.Client != "Jeanne Martin" {
				t.Errorf("event = %+v", e)
			}
			b, err := json.Marshal(e)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(b), "hunter2") || strings.Contains(string(b), "reseller@example.com") {
				t.Errorf("credentials leaked into event: %s", b)
			}
		})
	}
}

func TestDisabledBus(t *testing.T) {
	b, err := New(Config{}, logger.Nop(nil))
	if err != nil {
		t.Fatal(err)
	}
	if b.Enabled() {
		t.Fatal("bus without brokers must be disabled")
	}
	if err := b.Publish(context.Background(), NewEvent("job-1", "http", sampleRequest(), order.AutomationResult{})); err != nil {
		t.Errorf("Publish: %v", err)
	}
	b.Close()
}
