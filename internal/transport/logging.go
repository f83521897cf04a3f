// SPDX-License-Identifier: MIT
package transport

import (
	applog "keydetect/internal/log"
)

// LoggingTransport writes key changes to the application log. It is the
// default transport for headless runs.
type LoggingTransport struct{}

// NewLoggingTransport returns a ready transport; it holds no state.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{}
}

// Send logs the update. It never fails.
func (lt *LoggingTransport) Send(update KeyUpdate) error {
	applog.Infof("key: %s (window %.1fs)", update.Key, update.Window)
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
