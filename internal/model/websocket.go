package model

// WebSocket message types for the report status stream
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the minimal envelope clients send (ping/pong keep-alive).
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports which pipeline stage a report is in.
type WSProgressMessage struct {
	Type     string `json:"type"`
	ReportID string `json:"reportId"`
	Stage    string `json:"stage"`
}

// WSCompleteMessage signals that a report reached its final state.
type WSCompleteMessage struct {
	Type     string      `json:"type"`
	ReportID string      `json:"reportId"`
	Report   interface{} `json:"report,omitempty"`
}

// WSErrorMessage signals a failed processing attempt.
type WSErrorMessage struct {
	Type     string  `json:"type"`
	ReportID string  `json:"reportId"`
	Error    WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
