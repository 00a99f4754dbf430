// Package membership discovers secondary replicas via gossip, so a
// primary knows who is available to receive a catch-up stream and how
// far behind each one is.
package membership

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// ReplicaState is what each member gossips about itself: its own view of
// how far it has replicated.
type ReplicaState struct {
	NodeID           string `json:"node_id"`
	HighestKnownSeq  uint64 `json:"highest_known_seq"`
	HighestCommitted uint64 `json:"highest_committed_seq"`
	Timestamp        int64  `json:"timestamp"`
}

// Config configures the gossip membership layer.
type Config struct {
	NodeID         string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// SeqReporter supplies the local node's current replication position.
// Satisfied by table.StateTable's HighestKnownSeq/HighestCommittedSeq.
type SeqReporter interface {
	HighestKnownSeq() uint64
	HighestCommittedSeq() uint64
}

// Membership tracks cluster members and their gossiped replication
// state through a memberlist instance.
type Membership struct {
	nodeID   string
	ml       *memberlist.Memberlist
	logger   *zap.Logger
	reporter SeqReporter

	mu    sync.RWMutex
	peers map[string]ReplicaState
}

// New joins (or starts) a gossip cluster. reporter may be nil, in which
// case this node advertises zero for both sequence numbers.
func New(cfg Config, reporter SeqReporter, logger *zap.Logger) (*Membership, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = noopReporter{}
	}

	m := &Membership{
		nodeID:   cfg.NodeID,
		logger:   logger,
		reporter: reporter,
		peers:    make(map[string]ReplicaState),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = m
	mlConfig.Events = &eventDelegate{m: m}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	m.ml = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	return m, nil
}

func (m *Membership) localState() ReplicaState {
	return ReplicaState{
		NodeID:           m.nodeID,
		HighestKnownSeq:  m.reporter.HighestKnownSeq(),
		HighestCommitted: m.reporter.HighestCommittedSeq(),
		Timestamp:        time.Now().Unix(),
	}
}

// NodeMeta implements memberlist.Delegate.
func (m *Membership) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(m.localState())
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (m *Membership) NotifyMsg(data []byte) {
	var state ReplicaState
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.peers[state.NodeID] = state
	m.mu.Unlock()
}

// GetBroadcasts implements memberlist.Delegate.
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate.
func (m *Membership) LocalState(join bool) []byte {
	data, _ := json.Marshal(m.localState())
	return data
}

// MergeRemoteState implements memberlist.Delegate.
func (m *Membership) MergeRemoteState(buf []byte, join bool) {
	var state ReplicaState
	if err := json.Unmarshal(buf, &state); err != nil {
		return
	}
	m.mu.Lock()
	m.peers[state.NodeID] = state
	m.mu.Unlock()
}

// Peers returns a snapshot of every known peer's last gossiped state.
func (m *Membership) Peers() []ReplicaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReplicaState, 0, len(m.peers))
	for _, s := range m.peers {
		out = append(out, s)
	}
	return out
}

// LaggingPeers returns peers whose gossiped HighestCommitted is behind
// localCommitted by more than threshold — candidates a catch-up stream
// should target.
func (m *Membership) LaggingPeers(localCommitted uint64, threshold uint64) []ReplicaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReplicaState
	for _, s := range m.peers {
		if localCommitted > s.HighestCommitted && localCommitted-s.HighestCommitted > threshold {
			out = append(out, s)
		}
	}
	return out
}

// AliveCount returns the number of members memberlist currently
// considers alive, including this node.
func (m *Membership) AliveCount() int {
	return m.ml.NumMembers()
}

// Shutdown leaves the cluster and releases memberlist's resources.
func (m *Membership) Shutdown() error {
	if err := m.ml.Leave(5 * time.Second); err != nil {
		m.logger.Warn("error leaving memberlist cluster", zap.Error(err))
	}
	return m.ml.Shutdown()
}

type noopReporter struct{}

func (noopReporter) HighestKnownSeq() uint64     { return 0 }
func (noopReporter) HighestCommittedSeq() uint64 { return 0 }

type eventDelegate struct {
	m *Membership
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.m.logger.Info("member joined", zap.String("node", node.Name), zap.String("addr", node.Addr.String()))
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.m.logger.Info("member left", zap.String("node", node.Name))
	d.m.mu.Lock()
	delete(d.m.peers, node.Name)
	d.m.mu.Unlock()
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.m.logger.Debug("member updated", zap.String("node", node.Name))
}
