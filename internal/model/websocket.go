package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeProjects = "projects"
	WSMessageTypeError    = "error"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeToken    = "token"
	WSMessageTypeDelete   = "delete"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message. Clients send
// {"type":"token","token":"..."} to rotate the credential a session polls with
// and, on the dashboard, {"type":"delete","projectId":"42"} to remove a project.
type WSMessage struct {
	Type      string    `json:"type"`
	Token     string    `json:"token,omitempty"`
	ProjectID ProjectID `json:"projectId,omitempty"`
}

// WSStatusMessage carries one tracker transition for a project
type WSStatusMessage struct {
	Type     string        `json:"type"`
	Snapshot TrackSnapshot `json:"snapshot"`
}

// WSProjectsMessage carries a refreshed dashboard collection
type WSProjectsMessage struct {
	Type     string           `json:"type"`
	Projects []ProjectSummary `json:"projects"`
	Active   int              `json:"active"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type      string    `json:"type"`
	ProjectID ProjectID `json:"projectId,omitempty"`
	Error     WSError   `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSProgressMessage represents a report export progress update
type WSProgressMessage struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	Progress    int       `json:"progress"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"currentStep,omitempty"`
}

// WSCompleteMessage represents export completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}
