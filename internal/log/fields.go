// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldSessionCode = "session_code"
	FieldDeviceID    = "device_id"
	FieldConnID      = "conn_id"
	FieldGroupID     = "group_id"
	FieldUsername    = "username"
	FieldRequestID   = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldMsgType   = "msg_type"

	// Delivery fields
	FieldTarget    = "target"
	FieldDelivered = "delivered"
	FieldSkipped   = "skipped"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldRemoteAddr = "remote_addr"
	FieldCloseCode  = "close_code"
)
