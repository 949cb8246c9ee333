package services

import (
	"sync/atomic"
	"time"
)

// Metrics aggregates pipeline and transport counters. All fields are
// atomics, safe for concurrent detection requests.
type Metrics struct {
	detections    atomic.Int64
	alerts        atomic.Int64
	totalErrors   atomic.Int64
	totalLatency  atomic.Int64
	lastDetection atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64

	startedAt time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) IncrementDetections() {
	m.detections.Add(1)
	m.lastDetection.Store(time.Now().Unix())
}

func (m *Metrics) IncrementAlerts() {
	m.alerts.Add(1)
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
}

func (m *Metrics) IncrementWebSocketConnections() { m.wsConnections.Add(1) }
func (m *Metrics) DecrementWebSocketConnections() { m.wsConnections.Add(-1) }
func (m *Metrics) IncrementWebSocketMessages()    { m.wsMessages.Add(1) }
func (m *Metrics) IncrementWebSocketErrors()      { m.wsErrors.Add(1) }

func (m *Metrics) TotalDetections() int64 { return m.detections.Load() }
func (m *Metrics) TotalAlerts() int64     { return m.alerts.Load() }
func (m *Metrics) TotalErrors() int64     { return m.totalErrors.Load() }

// AvgLatencyMs is the mean pipeline latency over all processed detections.
func (m *Metrics) AvgLatencyMs() float64 {
	n := m.detections.Load()
	if n == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(n)
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// Snapshot renders all counters for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"total_detections":  m.detections.Load(),
		"alerts_published":  m.alerts.Load(),
		"total_errors":      m.totalErrors.Load(),
		"avg_latency_ms":    m.AvgLatencyMs(),
		"last_detection":    m.lastDetection.Load(),
		"ws_connections":    m.wsConnections.Load(),
		"ws_messages":       m.wsMessages.Load(),
		"ws_errors":         m.wsErrors.Load(),
		"system_uptime_sec": int(m.Uptime().Seconds()),
	}
}
