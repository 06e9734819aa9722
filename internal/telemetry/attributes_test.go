// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestMessageAttributes(t *testing.T) {
	tests := []struct {
		name      string
		msgType   string
		sessionID string
		deviceID  string
		wantLen   int
	}{
		{
			name:      "all fields",
			msgType:   "intent_send",
			sessionID: "sess-1",
			deviceID:  "dev-1",
			wantLen:   3,
		},
		{
			name:    "pre-registration frame",
			msgType: "device_register",
			wantLen: 1,
		},
		{
			name:     "device only",
			msgType:  "session_invitation",
			deviceID: "dev-1",
			wantLen:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := MessageAttributes(tt.msgType, tt.sessionID, tt.deviceID)

			if len(attrs) != tt.wantLen {
				t.Fatalf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			verifyAttribute(t, attrs, MessageTypeKey, tt.msgType)
			if tt.sessionID != "" {
				verifyAttribute(t, attrs, SessionIDKey, tt.sessionID)
			}
			if tt.deviceID != "" {
				verifyAttribute(t, attrs, DeviceIDKey, tt.deviceID)
			}
		})
	}
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
