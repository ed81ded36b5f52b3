package kvtest

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/buildcache/kv"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior. Zero fields disable a fault.
type Fault struct {
	FailOpen    bool
	FailDestroy bool
	FailGet     bool
	FailPut     bool
	FailWrite   bool
	FailClose   bool

	// FailIterate fails iteration once IterateAfter entries were delivered,
	// or at the end of a shorter range.
	FailIterate  bool
	IterateAfter int

	Err error // defaults to ErrInjected
}

// NoFault returns a Fault that injects nothing.
func NoFault() Fault {
	return Fault{}
}

// FaultyBackend is a kv.Backend wrapper that can inject errors.
// The current fault applies to stores opened before and after SetFault.
type FaultyBackend struct {
	kv.Backend

	mu    sync.Mutex
	fault Fault
}

// NewFaultyBackend wraps b with no faults active.
func NewFaultyBackend(b kv.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: b, fault: NoFault()}
}

// SetFault replaces the active fault.
func (f *FaultyBackend) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.fault = fault
}

// Reset disables all faults.
func (f *FaultyBackend) Reset() {
	f.SetFault(NoFault())
}

func (f *FaultyBackend) current() Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fault
}

// Open opens the wrapped store unless FailOpen is set.
func (f *FaultyBackend) Open(ctx context.Context, location string) (kv.Store, error) {
	if fault := f.current(); fault.FailOpen {
		return nil, fault.Err
	}
	s, err := f.Backend.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	return &faultyStore{Store: s, backend: f}, nil
}

// Destroy destroys the location unless FailDestroy is set.
func (f *FaultyBackend) Destroy(ctx context.Context, location string) error {
	if fault := f.current(); fault.FailDestroy {
		return fault.Err
	}
	return f.Backend.Destroy(ctx, location)
}

type faultyStore struct {
	kv.Store
	backend *FaultyBackend
}

func (s *faultyStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if fault := s.backend.current(); fault.FailGet {
		return nil, fault.Err
	}
	return s.Store.Get(ctx, key)
}

func (s *faultyStore) Put(ctx context.Context, key, value []byte) error {
	if fault := s.backend.current(); fault.FailPut {
		return fault.Err
	}
	return s.Store.Put(ctx, key, value)
}

func (s *faultyStore) Write(ctx context.Context, b *kv.Batch) error {
	if fault := s.backend.current(); fault.FailWrite {
		return fault.Err
	}
	return s.Store.Write(ctx, b)
}

func (s *faultyStore) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	fault := s.backend.current()
	if !fault.FailIterate {
		return s.Store.Iterate(ctx, prefix, fn)
	}

	delivered := 0
	err := s.Store.Iterate(ctx, prefix, func(k, v []byte) error {
		if delivered >= fault.IterateAfter {
			return fault.Err
		}
		delivered++
		return fn(k, v)
	})
	if err == nil {
		err = fault.Err
	}
	return err
}

func (s *faultyStore) Close() error {
	if fault := s.backend.current(); fault.FailClose {
		_ = s.Store.Close()
		return fault.Err
	}
	return s.Store.Close()
}
