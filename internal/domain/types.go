package domain

import "time"

// OpenDiagramsURI is the uri of the pseudo-solution holding diagrams opened
// outside any solution. It is never persisted.
const OpenDiagramsURI = "Open Diagrams"

type ConnectorState string

const (
	ConnectorPending ConnectorState = "pending"
	ConnectorReady   ConnectorState = "ready"
	ConnectorFailed  ConnectorState = "failed"
)

type EventType string

const (
	EventSolutionAdded           EventType = "solution.added"
	EventSolutionRemoved         EventType = "solution.removed"
	EventSolutionConnectorFailed EventType = "solution.connector_failed"
	EventSolutionLogin           EventType = "solution.login"
	EventSolutionLogout          EventType = "solution.logout"
	EventDiagramSaved            EventType = "diagram.saved"
	EventDiagramClosed           EventType = "diagram.closed"
)

type Identity struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// SolutionEntry is one open solution. Service and the connector fields are
// attached at runtime and never serialized.
type SolutionEntry struct {
	URI        string    `json:"uri"`
	Identity   *Identity `json:"identity,omitempty"`
	IsLoggedIn bool      `json:"isLoggedIn"`
	UserName   string    `json:"userName,omitempty"`
	Authority  string    `json:"authority,omitempty"`

	Service        Connector      `json:"-"`
	ConnectorState ConnectorState `json:"-"`
	ConnectorError string         `json:"-"`
}

// IsRemote reports whether the entry points at a process engine rather than a
// local folder.
func (e SolutionEntry) IsRemote() bool {
	return IsRemoteURI(e.URI)
}

type OpenDiagram struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	XML       string    `json:"xml"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Solution is the listing a connector returns for an opened solution.
type Solution struct {
	Name     string        `json:"name"`
	URI      string        `json:"uri"`
	Diagrams []OpenDiagram `json:"diagrams"`
}

type Event struct {
	ID        string                 `json:"event_id"`
	Type      EventType              `json:"event_type"`
	URI       string                 `json:"uri"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
