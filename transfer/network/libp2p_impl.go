package network

import (
	"bufio"
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/xerrors"
)

var log = logging.Logger("transfer-net")

const defaultMaxStreamOpenAttempts = 5
const defaultMinAttemptDuration = 1 * time.Second
const defaultMaxAttemptDuration = 5 * time.Minute
const defaultBackoffFactor = 5

// Option modifies a libp2p transfer network.
type Option func(*libp2pTransferNetwork)

// RetryParameters changes the stream-open retry schedule.
func RetryParameters(minDuration time.Duration, maxDuration time.Duration, attempts float64, backoffFactor float64) Option {
	return func(n *libp2pTransferNetwork) {
		n.maxStreamOpenAttempts = attempts
		n.minAttemptDuration = minDuration
		n.maxAttemptDuration = maxDuration
		n.backoffFactor = backoffFactor
	}
}

// NewFromLibp2pHost wraps a libp2p host in a TransferNetwork.
func NewFromLibp2pHost(h host.Host, options ...Option) TransferNetwork {
	n := &libp2pTransferNetwork{
		host:                  h,
		maxStreamOpenAttempts: defaultMaxStreamOpenAttempts,
		minAttemptDuration:    defaultMinAttemptDuration,
		maxAttemptDuration:    defaultMaxAttemptDuration,
		backoffFactor:         defaultBackoffFactor,
	}
	for _, option := range options {
		option(n)
	}
	return n
}

type libp2pTransferNetwork struct {
	host     host.Host
	receiver Receiver

	maxStreamOpenAttempts float64
	minAttemptDuration    time.Duration
	maxAttemptDuration    time.Duration
	backoffFactor         float64
}

var _ TransferNetwork = (*libp2pTransferNetwork)(nil)

func (n *libp2pTransferNetwork) NewRequestStream(ctx context.Context, to peer.ID) (RequestStream, error) {
	s, err := n.openStream(ctx, to)
	if err != nil {
		return nil, err
	}
	return &requestStream{p: to, rw: s, buffered: bufio.NewReaderSize(s, 16)}, nil
}

func (n *libp2pTransferNetwork) openStream(ctx context.Context, id peer.ID) (network.Stream, error) {
	b := &backoff.Backoff{
		Min:    n.minAttemptDuration,
		Max:    n.maxAttemptDuration,
		Factor: n.backoffFactor,
		Jitter: true,
	}

	for {
		s, err := n.host.NewStream(ctx, id, TransferProtocolID)
		if err == nil {
			return s, nil
		}

		nAttempts := b.Attempt() + 1
		if nAttempts >= n.maxStreamOpenAttempts {
			return nil, xerrors.Errorf("exhausted %d attempts but failed to open stream to %s: %w", int(n.maxStreamOpenAttempts), id, err)
		}

		d := b.Duration()
		log.Warnf("failed to open stream to %s on attempt %.0f of %.0f, waiting %s", id, nAttempts, n.maxStreamOpenAttempts, d)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}

func (n *libp2pTransferNetwork) SetDelegate(r Receiver) error {
	n.receiver = r
	n.host.SetStreamHandler(TransferProtocolID, n.handleNewRequestStream)
	return nil
}

func (n *libp2pTransferNetwork) StopHandlingRequests() error {
	n.receiver = nil
	n.host.RemoveStreamHandler(TransferProtocolID)
	return nil
}

func (n *libp2pTransferNetwork) handleNewRequestStream(s network.Stream) {
	if n.receiver == nil {
		log.Warn("no receiver set for inbound transfer stream")
		_ = s.Reset()
		return
	}
	remotePID := s.Conn().RemotePeer()
	n.receiver.HandleRequestStream(&requestStream{
		p:        remotePID,
		rw:       s,
		buffered: bufio.NewReaderSize(s, 16),
	})
}

func (n *libp2pTransferNetwork) ID() peer.ID {
	return n.host.ID()
}

func (n *libp2pTransferNetwork) AddAddrs(p peer.ID, addrs []ma.Multiaddr) {
	n.host.Peerstore().AddAddrs(p, addrs, peerstore.TempAddrTTL)
}
