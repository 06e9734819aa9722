// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponentField(t *testing.T) {
	Configure(Config{}) // make sure the once has fired before overriding
	var buf bytes.Buffer
	base = zerolog.New(&buf) // Override global for this test
	defer Configure(Config{})

	l := WithComponent("hub")
	l.Info().Str(FieldEvent, "test.component").Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry["component"] != "hub" {
		t.Errorf("expected component hub, got %v", entry["component"])
	}
	if entry["event"] != "test.component" {
		t.Errorf("expected event test.component, got %v", entry["event"])
	}
}

func TestLMatchesBase(t *testing.T) {
	if L().GetLevel() != Base().GetLevel() {
		t.Error("L() and Base() should return the same logger")
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	Configure(Config{Level: "debug"})
	first := Base()
	Configure(Config{Level: "error"})
	second := Base()
	if first.GetLevel() != second.GetLevel() {
		t.Error("Configure must only apply once")
	}
}

func TestSetLevelAfterConfigure(t *testing.T) {
	Configure(Config{})
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel(warn) error = %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("global level = %v, want warn", zerolog.GlobalLevel())
	}

	if err := SetLevel("not-a-level"); err == nil {
		t.Error("SetLevel should reject an unknown level")
	}
}
