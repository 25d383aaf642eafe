package model

import (
	"sync"
	"time"
)

// ConnectionState describes the agent's link to the server. It is mutated
// only by the connection supervisor; others receive copies.
type ConnectionState struct {
	AgentID           string    `json:"agentId"`
	RestaurantID      string    `json:"restauranteId"`
	AuthToken         string    `json:"-"`
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastHeartbeatAt   time.Time `json:"lastHeartbeatAt"`
}

// AgentCounters are process-lifetime job totals. The orchestrator is the
// only writer.
type AgentCounters struct {
	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	startTime  time.Time
}

func NewAgentCounters(start time.Time) *AgentCounters {
	return &AgentCounters{startTime: start}
}

func (c *AgentCounters) RecordSuccess() {
	c.mu.Lock()
	c.total++
	c.successful++
	c.mu.Unlock()
}

func (c *AgentCounters) RecordFailure() {
	c.mu.Lock()
	c.total++
	c.failed++
	c.mu.Unlock()
}

func (c *AgentCounters) Snapshot() JobStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return JobStats{Total: c.total, Successful: c.successful, Failed: c.failed}
}

func (c *AgentCounters) StartTime() time.Time {
	return c.startTime
}

func (c *AgentCounters) Uptime(now time.Time) time.Duration {
	return now.Sub(c.startTime)
}
