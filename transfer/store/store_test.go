package store

import (
	"context"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/transfer"
)

func testStore() *Store {
	return NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))
}

func mockClock(t *testing.T) *clock.Mock {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(time.Hour)
	prev := build.Clock
	build.Clock = mock
	t.Cleanup(func() { build.Clock = prev })
	return mock
}

func testProcess(t *testing.T, requestID string) *transfer.TransferProcess {
	t.Helper()
	p, err := transfer.NewProcess(transfer.Client, &transfer.DataRequest{
		ID:          requestID,
		Protocol:    "dspace-libp2p",
		ConnectorID: "connector-b",
		DatasetID:   "dataset-1",
		Destination: &transfer.DataAddress{Type: "file", Properties: map[string]string{"path": "/tmp/out"}},
	})
	require.NoError(t, err)
	return p
}

func TestCreateAndGet(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	p := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, transfer.StateInitial, got.State)
	require.Equal(t, p.StateTimestamp, got.StateTimestamp)
	require.NotNil(t, got.DataRequest)
	require.Equal(t, "req-1", got.DataRequest.ID)
	require.Equal(t, "file", got.DataRequest.Destination.Type)
	require.Equal(t, "/tmp/out", got.DataRequest.Destination.Properties["path"])

	_, err = s.Get(ctx, "no-such-process")
	require.ErrorIs(t, err, transfer.ErrProcessNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	p := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p))
	require.Error(t, s.Create(ctx, p))
}

func TestCreateRejectsNonInitial(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	require.Error(t, s.Create(ctx, &transfer.TransferProcess{ID: "x", State: transfer.StateUnsaved}))

	p := testProcess(t, "req-1")
	require.NoError(t, p.TransitionProvisioning(&transfer.ResourceManifest{}))
	require.Error(t, s.Create(ctx, p))
}

func TestUpdate(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	p := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p))

	require.NoError(t, p.TransitionProvisioning(&transfer.ResourceManifest{
		Definitions: []transfer.ResourceDefinition{{ID: "d1", Type: "file"}},
	}))
	require.NoError(t, s.Update(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StateProvisioning, got.State)
	require.Len(t, got.ResourceManifest.Definitions, 1)

	err = s.Update(ctx, &transfer.TransferProcess{ID: "untracked"})
	require.ErrorIs(t, err, transfer.ErrProcessNotFound)
}

func TestMutate(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	p := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p))

	require.NoError(t, s.Mutate(ctx, p.ID, func(p *transfer.TransferProcess) error {
		return p.TransitionProvisioning(&transfer.ResourceManifest{})
	}))
	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StateProvisioning, got.State)

	// a failing mutator must not write
	sentinel := xerrors.New("nope")
	err = s.Mutate(ctx, p.ID, func(p *transfer.TransferProcess) error {
		p.ErrorDetail = "half-applied"
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	got, err = s.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, got.ErrorDetail)

	err = s.Mutate(ctx, "untracked", func(*transfer.TransferProcess) error { return nil })
	require.ErrorIs(t, err, transfer.ErrProcessNotFound)
}

func TestNextForState(t *testing.T) {
	mock := mockClock(t)
	ctx := context.Background()
	s := testStore()

	p1 := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p1))
	mock.Add(time.Second)
	p2 := testProcess(t, "req-2")
	require.NoError(t, s.Create(ctx, p2))
	mock.Add(time.Second)
	p3 := testProcess(t, "req-3")
	require.NoError(t, s.Create(ctx, p3))

	// a process in another state must not show up
	mock.Add(time.Second)
	p4 := testProcess(t, "req-4")
	require.NoError(t, s.Create(ctx, p4))
	require.NoError(t, p4.TransitionProvisioning(&transfer.ResourceManifest{}))
	require.NoError(t, s.Update(ctx, p4))

	next, err := s.NextForState(ctx, transfer.StateInitial, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	require.Equal(t, p1.ID, next[0].ID)
	require.Equal(t, p2.ID, next[1].ID)

	next, err = s.NextForState(ctx, transfer.StateInitial, 10)
	require.NoError(t, err)
	require.Len(t, next, 3)

	next, err = s.NextForState(ctx, transfer.StateProvisioning, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, p4.ID, next[0].ID)

	next, err = s.NextForState(ctx, transfer.StateRequested, 10)
	require.NoError(t, err)
	require.Empty(t, next)
}

func TestNextForStateOrdersByLastChange(t *testing.T) {
	mock := mockClock(t)
	ctx := context.Background()
	s := testStore()

	p1 := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p1))
	mock.Add(time.Second)
	p2 := testProcess(t, "req-2")
	require.NoError(t, s.Create(ctx, p2))

	// touching p1 moves it behind p2
	mock.Add(time.Second)
	require.NoError(t, p1.TransitionProvisioning(&transfer.ResourceManifest{}))
	require.NoError(t, s.Update(ctx, p1))
	mock.Add(time.Second)
	require.NoError(t, p2.TransitionProvisioning(&transfer.ResourceManifest{}))
	require.NoError(t, s.Update(ctx, p2))

	next, err := s.NextForState(ctx, transfer.StateProvisioning, 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, p1.ID, next[0].ID)
}

func TestGetForRequestID(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	p := testProcess(t, "req-42")
	require.NoError(t, s.Create(ctx, p))

	got, err := s.GetForRequestID(ctx, "req-42")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	_, err = s.GetForRequestID(ctx, "req-unknown")
	require.ErrorIs(t, err, transfer.ErrProcessNotFound)
}

func TestListAndDelete(t *testing.T) {
	mockClock(t)
	ctx := context.Background()
	s := testStore()

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	p1 := testProcess(t, "req-1")
	p2 := testProcess(t, "req-2")
	require.NoError(t, s.Create(ctx, p1))
	require.NoError(t, s.Create(ctx, p2))

	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, p1.ID))
	_, err = s.Get(ctx, p1.ID)
	require.ErrorIs(t, err, transfer.ErrProcessNotFound)

	require.ErrorIs(t, s.Delete(ctx, p1.ID), transfer.ErrProcessNotFound)

	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// A record that no longer decodes must not block the healthy ones from being
// listed or claimed.
func TestCorruptRecordIsSkipped(t *testing.T) {
	mockClock(t)
	ctx := context.Background()

	raw := ds_sync.MutexWrap(ds.NewMapDatastore())
	s := NewStore(raw)

	p := testProcess(t, "req-1")
	require.NoError(t, s.Create(ctx, p))
	require.NoError(t, raw.Put(ctx, ds.NewKey("/transfers/garbage"), []byte("not cbor")))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, p.ID, all[0].ID)

	next, err := s.NextForState(ctx, transfer.StateInitial, 0)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, p.ID, next[0].ID)
}
