package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"orderbridge/internal/telemetry"
)

func TestSinkReceivesComponentAndLevel(t *testing.T) {
	sink := telemetry.New(10)
	var console bytes.Buffer
	log := NewWithConfig("Pipeline", Config{AppEnv: "development", Out: &console, Sink: sink})

	log.Info().Str("state", "init").Msg("step started")
	log.LogError("step failed", errors.New("boom"))
	log.Named("FormClient").LogWarnf("status %d", 503)

	entries := sink.Recent(0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 telemetry entries, got %d", len(entries))
	}
	if entries[0].Module != "Pipeline" || entries[0].Level != telemetry.LevelInfo || entries[0].Data["state"] != "init" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != telemetry.LevelError || entries[1].Error != "boom" {
		t.Errorf("unexpected error entry: %+v", entries[1])
	}
	if entries[2].Module != "FormClient" || entries[2].Message != "status 503" {
		t.Errorf("Named logger did not share the sink: %+v", entries[2])
	}
	if !strings.Contains(console.String(), "[Pipeline] step started") {
		t.Errorf("console output missing component prefix: %q", console.String())
	}
}

func TestProductionLevelDropsDebug(t *testing.T) {
	sink := telemetry.New(10)
	log := NewWithConfig("x", Config{IsProduction: true, AppEnv: "production", Out: &bytes.Buffer{}, Sink: sink})
	log.LogDebug("hidden")
	log.LogInfo("shown")
	if sink.Len() != 1 {
		t.Fatalf("expected only the info entry, got %d", sink.Len())
	}
}

func TestErrorWithFields(t *testing.T) {
	sink := telemetry.New(10)
	log := Nop(sink)
	log.ErrorWithFields(map[string]interface{}{"state": "finalized", "attempt": 2}).Msg("run failed")

	entries := sink.Recent(0)
	if len(entries) != 1 || entries[0].Level != telemetry.LevelError {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Data["state"] != "finalized" || entries[0].Data["attempt"] != float64(2) {
		t.Errorf("data = %v", entries[0].Data)
	}
}
