package interfaces

import "context"

// Peer is the part of a remote node's advertised state consensus is computed from.
type Peer struct {
	ID        string
	Broadhash string
	Height    int64
}

// Peers exposes the active peer set. Transport lives outside the node core.
type Peers interface {
	ActivePeers(ctx context.Context) ([]Peer, error)
}

// StaticPeers is a fixed peer list, used when the node runs without a transport.
type StaticPeers []Peer

func (p StaticPeers) ActivePeers(context.Context) ([]Peer, error) {
	return p, nil
}
