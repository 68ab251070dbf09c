// Package cluster provides distributed coordination for multiple orchestrator
// instances using the alan UDP peer discovery library. It wraps alan to
// provide:
//   - A distributed lock so only one instance re-runs discovery at a time
//   - Broadcasting the resulting knowledge-graph generation to all peers, so
// every instance serves queries against the same graph snapshot
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

const (
	// lockDiscover is the distributed lock name for POST /discover, so only
	// one instance rediscovers child tools and rebuilds the graph at a time.
	lockDiscover = "graph-discover"

	// lockScheduler is the distributed lock name for any periodic
	// rediscovery scheduler an operator wires in.
	lockScheduler = "cron-scheduler"

	// msgTypeGraphGeneration identifies a graph-rebuild broadcast message.
	msgTypeGraphGeneration = "graph-generation"
)

// clusterMessage is the JSON envelope for messages sent between peers.
type clusterMessage struct {
	Type string `json:"type"`
	// Generation is the monotonically increasing knowledge-graph rebuild
	// counter; peers receiving a lower generation than they already hold ignore
	// the message.
	Generation uint64 `json:"generation"`
}

// Cluster wraps an alan instance with orchestrator-specific distributed
// coordination.
type Cluster struct {
	alan *alan.Alan
}

// New creates a Cluster from the server's alan configuration.
// Returns nil, nil if cfg is nil (clustering disabled).
func New(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	return &Cluster{alan: a}, nil
}

// Start begins the alan peer discovery system in the background.
// The onGeneration callback is invoked when this instance receives a graph
// generation broadcast from a peer that just finished a POST /discover.
//
// Start blocks until the context is cancelled. It should be run in a goroutine.
func (c *Cluster) Start(ctx context.Context, onGeneration func(generation uint64)) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("cluster peer joined", "addr", addr.String())
	})

	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("cluster peer left", "addr", addr.String())
	})

	handler := func(_ context.Context, msg alan.Message) {
		var cm clusterMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			slog.Warn("cluster: invalid message", "from", msg.Addr, "error", err)
			return
		}

		switch cm.Type {
		case msgTypeGraphGeneration:
			slog.Info("cluster: received graph generation from peer", "from", msg.Addr, "generation", cm.Generation)

			if onGeneration != nil {
				onGeneration(cm.Generation)
			}

			// Reply with ack if this is a request.
			if msg.IsRequest() {
				c.alan.Reply(msg, []byte("ok")) //nolint:errcheck
			}

		default:
			slog.Debug("cluster: unknown message type", "type", cm.Type, "from", msg.Addr)
		}
	}

	return c.alan.Start(ctx, handler)
}

// Stop gracefully leaves the cluster.
func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// Lock acquires the distributed lock guarding POST /discover.
// Blocks until the lock is acquired or the context is cancelled.
func (c *Cluster) Lock(ctx context.Context) error {
	return c.alan.Lock(ctx, lockDiscover)
}

// Unlock releases the distributed discover lock.
func (c *Cluster) Unlock() error {
	return c.alan.Unlock(lockDiscover)
}

// LockScheduler acquires the distributed lock for a periodic rediscovery
// scheduler. Blocks until the lock is acquired or the context is cancelled.
func (c *Cluster) LockScheduler(ctx context.Context) error {
	return c.alan.Lock(ctx, lockScheduler)
}

// UnlockScheduler releases the distributed lock for the scheduler.
func (c *Cluster) UnlockScheduler() error {
	return c.alan.Unlock(lockScheduler)
}

// BroadcastGeneration sends the new knowledge-graph generation number to all
// peers and waits for their acknowledgements, over alan's (optionally
// ChaCha20-encrypted) UDP channel.
func (c *Cluster) BroadcastGeneration(ctx context.Context, generation uint64) error {
	peers := c.alan.Peers()
	if len(peers) == 0 {
		slog.Info("cluster: no peers to broadcast graph generation to")
		return nil
	}

	cm := clusterMessage{
		Type:       msgTypeGraphGeneration,
		Generation: generation,
	}

	data, err := json.Marshal(cm)
	if err != nil {
		return fmt.Errorf("marshal cluster message: %w", err)
	}

	// Use a timeout so we don't wait forever for unresponsive peers.
	broadcastCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	replies, err := c.alan.SendAndWaitReply(broadcastCtx, data)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("broadcast graph generation: %w", err)
	}

	slog.Info("cluster: graph generation broadcast complete",
		"generation", generation,
		"peers", len(peers),
		"acks", len(replies),
	)

	if len(replies) < len(peers) {
		slog.Warn("cluster: not all peers acknowledged graph generation",
			"expected", len(peers),
			"received", len(replies),
		)
	}

	return nil
}

// Ready returns a channel that is closed when the cluster is ready.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
