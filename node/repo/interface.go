package repo

import (
	"context"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/xerrors"
)

var (
	ErrNoAPIEndpoint     = xerrors.New("no API Endpoint set")
	ErrRepoAlreadyLocked = xerrors.New("repo is already locked")
	ErrClosedRepo        = xerrors.New("repo is no longer open")

	ErrKeyInfoNotFound = xerrors.New("key info not found")
	ErrKeyExists       = xerrors.New("key already exists")
)

// KTLibp2pHost is the keystore name of the libp2p host identity key.
const KTLibp2pHost = "libp2p-host"

// KeyInfo is a named private key as persisted in the repo keystore.
type KeyInfo struct {
	Type       string
	PrivateKey []byte
}

type Repo interface {
	// APIEndpoint returns multiaddress for communication with the transferd API
	APIEndpoint() (multiaddr.Multiaddr, error)

	// Lock locks the repo for exclusive use.
	Lock() (LockedRepo, error)
}

type LockedRepo interface {
	// Close closes repo and removes lock.
	Close() error

	// Path returns absolute path of the repo.
	Path() string

	// Datastore returns the persistent datastore serving the given namespace.
	Datastore(ctx context.Context, namespace string) (datastore.Batching, error)

	// Config returns the config in this repo.
	Config() (interface{}, error)

	// SetConfig rewrites the config through the mutation function.
	SetConfig(func(interface{})) error

	// Libp2pIdentity returns the private key for the libp2p identity,
	// generating and persisting one on first use.
	Libp2pIdentity() (crypto.PrivKey, error)

	// SetAPIEndpoint records the endpoint client processes dial.
	SetAPIEndpoint(multiaddr.Multiaddr) error
}
