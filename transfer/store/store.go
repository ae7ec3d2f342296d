package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/lib/cborutil"
	"github.com/dataspace-labs/go-transfermgr/transfer"
)

var log = logging.Logger("transfer-store")

// Store persists transfer processes in a datastore, one cbor record per
// process keyed by id. Safe for concurrent use.
type Store struct {
	lk sync.Mutex
	ds datastore.Batching
}

var _ transfer.ProcessStore = (*Store)(nil)

func NewStore(ds datastore.Batching) *Store {
	ds = namespace.Wrap(ds, datastore.NewKey("/transfers"))
	return &Store{ds: ds}
}

func keyForProcess(id string) datastore.Key {
	return datastore.NewKey(id)
}

func (s *Store) Create(ctx context.Context, p *transfer.TransferProcess) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if p.ID == "" {
		return xerrors.New("cannot track a process without an id")
	}
	if p.State != transfer.StateInitial {
		return xerrors.Errorf("cannot track process %s created in state %s", p.ID, p.State)
	}

	k := keyForProcess(p.ID)
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return err
	}
	if has {
		return xerrors.Errorf("already tracking process %s", p.ID)
	}

	return s.put(ctx, k, p)
}

func (s *Store) Update(ctx context.Context, p *transfer.TransferProcess) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	k := keyForProcess(p.ID)
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return err
	}
	if !has {
		return xerrors.Errorf("updating process %s: %w", p.ID, transfer.ErrProcessNotFound)
	}

	return s.put(ctx, k, p)
}

func (s *Store) put(ctx context.Context, k datastore.Key, p *transfer.TransferProcess) error {
	b, err := cborutil.Dump(p)
	if err != nil {
		return err
	}
	return s.ds.Put(ctx, k, b)
}

func (s *Store) Get(ctx context.Context, id string) (*transfer.TransferProcess, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	val, err := s.ds.Get(ctx, keyForProcess(id))
	if xerrors.Is(err, datastore.ErrNotFound) {
		return nil, xerrors.Errorf("getting process %s: %w", id, transfer.ErrProcessNotFound)
	}
	if err != nil {
		return nil, err
	}

	var p transfer.TransferProcess
	if err := cborutil.ReadCborRPC(bytes.NewReader(val), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Mutate loads, mutates and persists a process under the store lock. An
// error from the mutator aborts without writing.
func (s *Store) Mutate(ctx context.Context, id string, mutate func(*transfer.TransferProcess) error) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	k := keyForProcess(id)
	val, err := s.ds.Get(ctx, k)
	if xerrors.Is(err, datastore.ErrNotFound) {
		return xerrors.Errorf("mutating process %s: %w", id, transfer.ErrProcessNotFound)
	}
	if err != nil {
		return err
	}

	var p transfer.TransferProcess
	if err := cborutil.ReadCborRPC(bytes.NewReader(val), &p); err != nil {
		return err
	}
	if err := mutate(&p); err != nil {
		return err
	}
	return s.put(ctx, k, &p)
}

func (s *Store) GetForRequestID(ctx context.Context, requestID string) (*transfer.TransferProcess, error) {
	procs, err := s.find(ctx, func(p *transfer.TransferProcess) bool {
		return p.DataRequest != nil && p.DataRequest.ID == requestID
	})
	if err != nil {
		return nil, err
	}
	if len(procs) == 0 {
		return nil, xerrors.Errorf("getting process for request %s: %w", requestID, transfer.ErrProcessNotFound)
	}
	return procs[0], nil
}

func (s *Store) NextForState(ctx context.Context, state transfer.ProcessState, limit int) ([]*transfer.TransferProcess, error) {
	procs, err := s.find(ctx, func(p *transfer.TransferProcess) bool {
		return p.State == state
	})
	if err != nil {
		return nil, err
	}

	// oldest state change first
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].StateTimestamp < procs[j].StateTimestamp
	})
	if limit > 0 && len(procs) > limit {
		procs = procs[:limit]
	}
	return procs, nil
}

func (s *Store) List(ctx context.Context) ([]*transfer.TransferProcess, error) {
	return s.find(ctx, func(*transfer.TransferProcess) bool { return true })
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	k := keyForProcess(id)
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return err
	}
	if !has {
		return xerrors.Errorf("deleting process %s: %w", id, transfer.ErrProcessNotFound)
	}
	return s.ds.Delete(ctx, k)
}

func (s *Store) find(ctx context.Context, filter func(*transfer.TransferProcess) bool) ([]*transfer.TransferProcess, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	res, err := s.ds.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, err
	}
	defer res.Close() // nolint:errcheck

	var out []*transfer.TransferProcess
	var errs error
	for {
		r, ok := res.NextSync()
		if !ok {
			break
		}
		if r.Error != nil {
			return nil, r.Error
		}

		var p transfer.TransferProcess
		if err := cborutil.ReadCborRPC(bytes.NewReader(r.Value), &p); err != nil {
			errs = multierr.Append(errs, xerrors.Errorf("decoding process at key '%s': %w", r.Key, err))
			continue
		}
		if filter(&p) {
			out = append(out, &p)
		}
	}

	// A corrupt record must not starve the healthy ones; surface it in the
	// log and keep going.
	if errs != nil {
		log.Warnf("skipping undecodable process records: %s", errs)
	}
	return out, nil
}
