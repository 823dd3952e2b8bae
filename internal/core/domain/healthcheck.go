package domain

import "time"

// Status classifies the outcome of a single health check.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Source tells where a health check came from.
type Source string

const (
	SourceCheck  Source = "check"  // executed by this monitor
	SourceGossip Source = "gossip" // received from a peer
)

// HealthCheck is one observation of a member's service. Rows are append-only:
// a check is created once and never mutated.
type HealthCheck struct {
	ID        string    `json:"id"`
	MonitorID string    `json:"monitorId"`
	MemberID  string    `json:"memberId"`
	ServiceID string    `json:"serviceId"`
	Status    Status    `json:"status"`
	Source    Source    `json:"source"`
	Level     string    `json:"level"`
	Record    Record    `json:"record"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record carries the structured payload of a health check. Optional sections
// are nil when the probe that produces them did not run.
type Record struct {
	Chain          string        `json:"chain,omitempty"`
	ChainType      string        `json:"chainType,omitempty"`
	Version        string        `json:"version,omitempty"`
	PeerID         string        `json:"peerId,omitempty"`
	Performance    int64         `json:"performance"` // primary probe time in ms, -1 on error
	FinalizedBlock uint64        `json:"finalizedBlock,omitempty"`
	SyncState      *SyncState    `json:"syncState,omitempty"`
	Archive        *ArchiveProbe `json:"archiveState,omitempty"`
	Error          *ErrorInfo    `json:"error,omitempty"`
}

// SyncState is the service's reported chain head position.
type SyncState struct {
	CurrentBlock uint64 `json:"currentBlock"`
	HighestBlock uint64 `json:"highestBlock"`
	IsSyncing    bool   `json:"isSyncing"`
}

// ArchiveProbe records a historical-state query used to verify archive depth.
type ArchiveProbe struct {
	Block       uint64 `json:"blockNumber"`
	SpecVersion uint32 `json:"specVersion"`
}

// ErrorInfo is the serialized form of a check failure.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// LevelInfo is the default severity hint for gossiped health checks.
const LevelInfo = "info"
