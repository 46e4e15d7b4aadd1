package httpserver

import (
	"calassist/internal/config"
	"calassist/internal/dispatch"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// StatusResponse reports configuration without exposing secrets.
type StatusResponse struct {
	Version     string                    `json:"version,omitempty"`
	Classifier  string                    `json:"classifier"`
	Timezone    string                    `json:"timezone"`
	BaseURL     string                    `json:"base_url"`
	Credentials []config.CredentialStatus `json:"credentials"`
}

// Websocket message types.
const (
	msgUserMessage = "user_message"
	msgReset       = "reset"

	msgReady = "ready"
	msgReply = "reply"
	msgError = "error"
)

// wsIncoming is a client to server frame.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsOutgoing is a server to client frame.
type wsOutgoing struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Reply          *dispatch.Reply `json:"reply,omitempty"`
	Pending        string          `json:"pending,omitempty"`
	Message        string          `json:"message,omitempty"`
}
