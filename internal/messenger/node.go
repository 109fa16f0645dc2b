package messenger

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"

	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// DHTPrefix is the Kademlia protocol prefix of the bridge network.
const DHTPrefix = "/psybridge"

// NodeConfig holds the gossip node's network settings.
type NodeConfig struct {
	KeyFile        string
	DataDir        string
	ListenAddrs    []string
	BootstrapPeers []string
	EnableDHT      bool

	ConnLowWater  int
	ConnHighWater int
	ConnGrace     time.Duration
}

// DefaultNodeConfig returns sensible defaults for the gossip node.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		KeyFile:       "node.key",
		ListenAddrs:   []string{"/ip4/0.0.0.0/tcp/4101", "/ip4/0.0.0.0/udp/4101/quic-v1"},
		EnableDHT:     true,
		ConnLowWater:  50,
		ConnHighWater: 200,
		ConnGrace:     time.Minute,
	}
}

// Node is the libp2p gossip node carrying withdrawal broadcasts.
type Node struct {
	host   host.Host
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	config *NodeConfig
	log    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode creates the gossip node and joins the transaction topic.
func NewNode(ctx context.Context, cfg *NodeConfig) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.GetDefault().Component("messenger"),
	}

	privKey, err := n.loadOrCreateKey()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load/create key: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen address %s: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	cm, err := connmgr.NewConnManager(
		cfg.ConnLowWater,
		cfg.ConnHighWater,
		connmgr.WithGracePeriod(cfg.ConnGrace),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.ConnectionManager(cm),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	n.host = h

	if cfg.EnableDHT {
		if err := n.initDHT(ctx); err != nil {
			h.Close()
			cancel()
			return nil, fmt.Errorf("failed to initialize DHT: %w", err)
		}
	}

	n.pubsub, err = pubsub.NewGossipSub(ctx, h,
		pubsub.WithPeerExchange(true),
		pubsub.WithFloodPublish(true),
	)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
	}

	n.topic, err = n.pubsub.Join(TxTopic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to join topic: %w", err)
	}

	return n, nil
}

// loadOrCreateKey loads an existing node identity key or generates one.
func (n *Node) loadOrCreateKey() (crypto.PrivKey, error) {
	keyPath := n.config.KeyFile
	if !filepath.IsAbs(keyPath) {
		keyPath = filepath.Join(n.config.DataDir, keyPath)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return crypto.UnmarshalPrivateKey(data)
	}

	privKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	data, err := crypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, err
	}

	n.log.Info("Generated new node identity")
	return privKey, nil
}

// initDHT initializes the Kademlia DHT.
func (n *Node) initDHT(ctx context.Context) error {
	var err error
	n.dht, err = dht.New(ctx, n.host,
		dht.Mode(dht.ModeAutoServer),
		dht.ProtocolPrefix(protocol.ID(DHTPrefix)),
	)
	if err != nil {
		return err
	}
	return n.dht.Bootstrap(ctx)
}

// Start connects to the configured bootstrap peers.
func (n *Node) Start() error {
	for _, addrStr := range n.config.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			n.log.Warn("Invalid bootstrap address", "addr", addrStr, "error", err)
			continue
		}

		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			n.log.Warn("Invalid bootstrap peer info", "addr", addrStr, "error", err)
			continue
		}

		go func(pi peer.AddrInfo) {
			ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
			defer cancel()
			if err := n.host.Connect(ctx, pi); err != nil {
				n.log.Warn("Failed to connect to bootstrap peer", "peer", shortID(pi.ID), "error", err)
			} else {
				n.log.Info("Connected to bootstrap peer", "peer", shortID(pi.ID))
			}
		}(*pi)
	}
	return nil
}

// Publish broadcasts raw envelope bytes on the transaction topic.
func (n *Node) Publish(ctx context.Context, data []byte) error {
	return n.topic.Publish(ctx, data)
}

// Subscribe delivers every received envelope to the handler until the node
// context is cancelled. Malformed envelopes and self-messages are dropped.
func (n *Node) Subscribe(handler func(*Envelope)) error {
	sub, err := n.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		defer sub.Cancel()
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			env, err := DecodeEnvelope(msg.Data)
			if err != nil {
				n.log.Debug("Dropping malformed envelope", "from", shortID(msg.ReceivedFrom), "error", err)
				continue
			}
			handler(env)
		}
	}()
	return nil
}

// Stop stops the node gracefully.
func (n *Node) Stop() error {
	n.cancel()
	if n.topic != nil {
		n.topic.Close()
	}
	if n.dht != nil {
		n.dht.Close()
	}
	return n.host.Close()
}

// ID returns the node's peer ID.
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// Addrs returns the node's listen addresses.
func (n *Node) Addrs() []multiaddr.Multiaddr {
	return n.host.Addrs()
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	return len(n.host.Network().Peers())
}

// shortID returns a truncated peer ID for logging.
func shortID(p peer.ID) string {
	s := p.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
