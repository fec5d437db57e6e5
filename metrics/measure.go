// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import "sync"

// Measurement tracks one in-flight call opened with [Collector.Begin].
type Measurement struct {
	collector *Collector
	callID    string
	once      sync.Once
}

// Begin starts tracking a call and returns its measurement. End it
// exactly once; extra End calls are no-ops.
func (c *Collector) Begin(tool string, info CallInfo) *Measurement {
	return &Measurement{
		collector: c,
		callID:    c.Start(tool, info),
	}
}

// CallID returns the identifier assigned by Start.
func (m *Measurement) CallID() string {
	return m.callID
}

// End completes the measurement. A nil err records success.
func (m *Measurement) End(err error) {
	m.once.Do(func() {
		m.collector.End(m.callID, err)
	})
}

// Measure runs fn as a tracked call of tool and returns fn's error.
func (c *Collector) Measure(tool string, info CallInfo, fn func() error) error {
	m := c.Begin(tool, info)
	err := fn()
	m.End(err)
	return err
}
