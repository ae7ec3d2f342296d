package repo

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	"github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataspace-labs/go-transfermgr/node/config"
)

func basicTest(t *testing.T, repo Repo) {
	apima, err := repo.APIEndpoint()
	if assert.Error(t, err) {
		assert.Nil(t, apima)
	}
	assert.Equal(t, ErrNoAPIEndpoint, err)

	lrepo, err := repo.Lock()
	assert.NoError(t, err)
	assert.NotNil(t, lrepo)

	lrepo2, err := repo.Lock()
	if assert.Error(t, err) {
		assert.Nil(t, lrepo2)
	}
	assert.Equal(t, ErrRepoAlreadyLocked, err)

	err = lrepo.Close()
	assert.NoError(t, err)

	lrepo, err = repo.Lock()
	assert.NoError(t, err)
	assert.NotNil(t, lrepo)

	ma, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/43244")
	assert.NoError(t, err)
	err = lrepo.SetAPIEndpoint(ma)
	assert.NoError(t, err)

	apima, err = repo.APIEndpoint()
	assert.NoError(t, err)
	assert.Equal(t, ma, apima)

	c, err := lrepo.Config()
	assert.NoError(t, err)
	cfg, ok := c.(*config.Transferd)
	require.True(t, ok)
	assert.Equal(t, config.DefaultTransferd().Transfer.BatchSize, cfg.Transfer.BatchSize)

	pk1, err := lrepo.Libp2pIdentity()
	require.NoError(t, err)
	require.NotNil(t, pk1)

	pk2, err := lrepo.Libp2pIdentity()
	require.NoError(t, err)
	assert.True(t, pk1.Equals(pk2), "identity must be stable across calls")

	ds, err := lrepo.Datastore(context.Background(), "metadata")
	require.NoError(t, err)

	k := datastore.NewKey("k")
	err = ds.Put(context.Background(), k, []byte("value"))
	assert.NoError(t, err)
	v, err := ds.Get(context.Background(), k)
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	err = lrepo.Close()
	assert.NoError(t, err)

	apima, err = repo.APIEndpoint()
	if assert.Error(t, err) {
		assert.Nil(t, apima)
	}
	assert.Equal(t, ErrNoAPIEndpoint, err)

	err = lrepo.SetAPIEndpoint(ma)
	assert.Equal(t, ErrClosedRepo, err)

	_, err = lrepo.Libp2pIdentity()
	assert.Equal(t, ErrClosedRepo, err)

	lrepo, err = repo.Lock()
	assert.NoError(t, err)
	assert.NotNil(t, lrepo)

	pk3, err := lrepo.Libp2pIdentity()
	require.NoError(t, err)
	assert.True(t, pk1.Equals(pk3), "identity must survive relocking")

	err = lrepo.Close()
	assert.NoError(t, err)
}
