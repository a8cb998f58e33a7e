// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "audiohost/internal/log"
)

// LoggingTransport writes every message to the debug log.
type LoggingTransport struct {
	name string
}

// NewLoggingTransport creates a transport that logs under name.
func NewLoggingTransport(name string) *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport for %s", name)
	return &LoggingTransport{name: name}
}

// Send logs data as JSON. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		applog.WithComponent(lt.name).Debugf("(%T) %+v", data, data)
		return nil
	}
	applog.WithComponent(lt.name).Debug(string(b))
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
