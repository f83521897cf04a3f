// SPDX-License-Identifier: MIT

// Package transport fans detected-key changes out to interested
// consumers: the log, WebSocket subscribers, and UDP listeners. A Monitor
// polls the detector on the control path and pushes a KeyUpdate to every
// registered Transport when the key changes; the audio path is never
// involved.
package transport

// KeyUpdate is one observed change of the detected key.
type KeyUpdate struct {
	Key       string  `json:"key"`    // Canonical display string, "---" for no key.
	KeyID     int     `json:"key_id"` // Key identifier 0-23, 24 for the sentinel.
	Window    float64 `json:"window"` // Analysis window length in seconds.
	Timestamp int64   `json:"ts"`     // Unix nanoseconds at observation.
}

// Transport delivers key updates to one kind of consumer.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(update KeyUpdate) error
	Close() error
}
