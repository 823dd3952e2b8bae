package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/memberlist"
)

// Handler receives inbound events from the gossip substrate. Implementations
// must not block for long; memberlist delivers messages on its own goroutines.
type Handler interface {
	// OnPeerDiscovered is called when a peer joins the overlay.
	OnPeerDiscovered(peerID string)

	// OnMessage is called for every broadcast received from a peer.
	OnMessage(topic, from string, payload []byte)
}

// Config holds gossip overlay configuration.
type Config struct {
	NodeID         string        `yaml:"node_id"`
	BindAddr       string        `yaml:"bind_addr"`
	BindPort       int           `yaml:"bind_port"`
	Seeds          []string      `yaml:"seeds"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// envelope is the wire frame for topic broadcasts.
type envelope struct {
	Topic   string          `json:"topic"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Node is a memberlist-backed publish/subscribe node. Broadcasts carry a
// topic-tagged JSON envelope; delivery is best-effort gossip.
type Node struct {
	cfg     Config
	list    *memberlist.Memberlist
	queue   *memberlist.TransmitLimitedQueue
	handler Handler
	log     *slog.Logger
}

// NewNode creates the overlay node and joins the configured seeds.
func NewNode(cfg Config, handler Handler) (*Node, error) {
	n := &Node{
		cfg:     cfg,
		handler: handler,
		log:     slog.Default(),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort > 0 {
		mlConfig.BindPort = cfg.BindPort
		mlConfig.AdvertisePort = cfg.BindPort
	}
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	mlConfig.Delegate = n
	mlConfig.Events = &eventDelegate{node: n}

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	n.list = list
	n.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       func() int { return list.NumMembers() },
		RetransmitMult: mlConfig.RetransmitMult,
	}

	if len(cfg.Seeds) > 0 {
		if _, err := list.Join(cfg.Seeds); err != nil {
			n.log.Warn("failed to join some seed nodes", "error", err)
		}
	}

	return n, nil
}

// Publish broadcasts a payload on a topic. Fire-and-forget: the queue hands
// the frame to the gossip layer and returns.
func (n *Node) Publish(ctx context.Context, topic string, payload []byte) error {
	frame, err := json.Marshal(envelope{
		Topic:   topic,
		From:    n.cfg.NodeID,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode gossip envelope: %w", err)
	}
	n.queue.QueueBroadcast(&broadcast{msg: frame})
	return nil
}

// Peers returns the IDs of all connected peers, excluding this node.
func (n *Node) Peers() []string {
	members := n.list.Members()
	peers := make([]string, 0, len(members))
	for _, m := range members {
		if m.Name == n.cfg.NodeID {
			continue
		}
		peers = append(peers, m.Name)
	}
	return peers
}

// Shutdown leaves the overlay.
func (n *Node) Shutdown() error {
	if err := n.list.Leave(time.Second); err != nil {
		n.log.Warn("failed to leave overlay cleanly", "error", err)
	}
	return n.list.Shutdown()
}

// NodeMeta implements memberlist.Delegate.
func (n *Node) NodeMeta(limit int) []byte {
	return nil
}

// NotifyMsg implements memberlist.Delegate.
func (n *Node) NotifyMsg(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		n.log.Warn("failed to decode gossip envelope", "error", err)
		return
	}
	if env.From == n.cfg.NodeID {
		return // Own broadcast echoed back
	}
	n.handler.OnMessage(env.Topic, env.From, env.Payload)
}

// GetBroadcasts implements memberlist.Delegate.
func (n *Node) GetBroadcasts(overhead, limit int) [][]byte {
	return n.queue.GetBroadcasts(overhead, limit)
}

// LocalState implements memberlist.Delegate.
func (n *Node) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate.
func (n *Node) MergeRemoteState(buf []byte, join bool) {
}

// broadcast adapts an envelope frame to memberlist's broadcast interface.
type broadcast struct {
	msg []byte
}

func (b *broadcast) Invalidates(other memberlist.Broadcast) bool { return false }
func (b *broadcast) Message() []byte                             { return b.msg }
func (b *broadcast) Finished()                                   {}

// eventDelegate forwards membership events to the handler.
type eventDelegate struct {
	node *Node
}

// NotifyJoin is called when a node joins the overlay.
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	if node.Name == d.node.cfg.NodeID {
		return
	}
	d.node.log.Info("peer joined", "peer", node.Name, "addr", node.Addr.String())
	d.node.handler.OnPeerDiscovered(node.Name)
}

// NotifyLeave is called when a node leaves the overlay.
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.node.log.Info("peer left", "peer", node.Name)
}

// NotifyUpdate is called when a node's metadata changes.
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.node.log.Debug("peer updated", "peer", node.Name)
}
