package model

// --- Outbound Payloads ---

type AgentReady struct {
	AgentID      string   `json:"agentId"`
	RestaurantID string   `json:"restauranteId"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version,omitempty"`
	Host         string   `json:"host,omitempty"`
}

type Heartbeat struct {
	AgentID   string `json:"agentId"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

type PrintCompleted struct {
	AgentID   string `json:"agentId"`
	TicketID  string `json:"ticketId"`
	Success   bool   `json:"success"`
	PrintID   string `json:"printId"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type AgentStatus struct {
	AgentID   string         `json:"agentId"`
	Status    StatusSnapshot `json:"status"`
	Timestamp int64          `json:"timestamp"`
}

type AgentShutdown struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason"`
}

// StatusSnapshot is the periodic telemetry of the agent.
type StatusSnapshot struct {
	AgentID        string        `json:"agentId"`
	Connected      bool          `json:"connected"`
	PrinterStatus  PrinterStatus `json:"printerStatus"`
	QueueLength    int           `json:"queueLength"`
	Stats          JobStats      `json:"stats"`
	UptimeMillis   int64         `json:"uptime"`
	DiskUsageBytes int64         `json:"diskUsageBytes,omitempty"`
}

type JobStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}
