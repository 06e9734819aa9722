// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for protocol frame spans. HTTP spans get their
// attributes from otelhttp; these cover the websocket side. Session
// codes are join secrets and never appear in traces.
const (
	MessageTypeKey = "message.type"
	SessionIDKey   = "session.id"
	DeviceIDKey    = "device.id"
)

// MessageAttributes creates span attributes for one protocol frame.
// Empty envelope fields are left off the span.
func MessageAttributes(msgType, sessionID, deviceID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.String(MessageTypeKey, msgType))
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	return attrs
}
