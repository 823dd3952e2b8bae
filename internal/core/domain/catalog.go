package domain

import "time"

// Monitor is a participating node in the peer network, keyed by its network
// identity. Services holds the most recently announced catalog snapshot.
type Monitor struct {
	ID        string    `json:"monitorId"`
	Services  []Service `json:"services,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service is a named, chain-specific RPC endpoint announced by a member.
// Identity is the service URL; announcements are idempotent.
type Service struct {
	URL     string `json:"serviceUrl"`
	ChainID string `json:"chainId"`
}

// Peer links a monitor to a service it serves. Many-to-many join entity,
// upserted alongside service announcements.
type Peer struct {
	MonitorID  string `json:"peerId"`
	ServiceURL string `json:"serviceUrl"`
}

// Member is the operator-owned identity a local check job targets.
type Member struct {
	ID               string `json:"id"`
	ServiceIPAddress string `json:"serviceIpAddress"`
}

// CheckedService is the RPC endpoint definition a check job targets.
type CheckedService struct {
	ID      string `json:"id"`
	URL     string `json:"serviceUrl"`
	ChainID string `json:"chainId"`
}
