package bus

import "encoding/json"

// Reply is the generic envelope every request/reply subject uses (§6):
// `{success: bool, error?: string, <payload-key>: <value>}`. Since Go
// lacks a dynamic payload key, callers marshal Payload under a
// service-documented field name via MarshalJSON below.
type Reply[T any] struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	PayloadKey string `json:"-"`
	Payload    T      `json:"-"`
}

// OK builds a successful reply.
func OK[T any](payloadKey string, payload T) Reply[T] {
	return Reply[T]{Success: true, PayloadKey: payloadKey, Payload: payload}
}

// Err builds a failed reply; Payload is the zero value.
func Err[T any](payloadKey string, err error) Reply[T] {
	return Reply[T]{Success: false, Error: err.Error(), PayloadKey: payloadKey}
}

// MarshalJSON emits {"success":..., "error":..., "<payload_key>": ...}.
func (r Reply[T]) MarshalJSON() ([]byte, error) {
	m := map[string]any{"success": r.Success}
	if r.Error != "" {
		m["error"] = r.Error
	}
	key := r.PayloadKey
	if key == "" {
		key = "payload"
	}
	m[key] = r.Payload
	return json.Marshal(m)
}
