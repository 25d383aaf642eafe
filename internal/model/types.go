package model

import "encoding/json"

type MessageType string

// Inbound (server → agent).
const (
	MessageTypePrintRequest       MessageType = "print_request"
	MessageTypePrintRequestLegacy MessageType = "imprimir-comanda"
	MessageTypeServerStatus       MessageType = "server-status"
	MessageTypeServerStatusAlt    MessageType = "server_status"
	MessageTypeConfigUpdate       MessageType = "config-update"
	MessageTypeConfigUpdateAlt    MessageType = "config_update"
)

// Outbound (agent → server).
const (
	MessageTypeAgentReady     MessageType = "agent-ready"
	MessageTypeHeartbeat      MessageType = "agent-heartbeat"
	MessageTypePrintCompleted MessageType = "impresion-completada"
	MessageTypeAgentStatus    MessageType = "agent-status"
	MessageTypeAgentShutdown  MessageType = "agent-shutdown"
)

// --- WebSocket Messages ---

// WSMessage is the envelope of every frame on the agent channel.
type WSMessage struct {
	Event MessageType     `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"` // Keep raw to parse into specific structs
}
