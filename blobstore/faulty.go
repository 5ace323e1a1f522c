package blobstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrInjected is the default error returned by FaultyStore rules.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior.
type Fault struct {
	FailPut    bool          // Fail Put calls
	FailGet    bool          // Fail Get calls
	FailAfter  int           // Let this many matching Puts succeed first
	PutLatency time.Duration // Delay every matching Put
	Err        error         // Returned error, ErrInjected when nil
}

// FaultyStore is a Store wrapper that can inject errors and latency.
type FaultyStore struct {
	Store Store

	mu    sync.Mutex
	rules map[string]Fault // Name substring -> Fault
	puts  map[string]int
}

var _ Store = (*FaultyStore)(nil)

// NewFaultyStore wraps store (a fresh MemoryStore if nil).
func NewFaultyStore(store Store) *FaultyStore {
	if store == nil {
		store = NewMemoryStore()
	}

	return &FaultyStore{
		Store: store,
		rules: make(map[string]Fault),
		puts:  make(map[string]int),
	}
}

// AddRule adds a fault injection rule for blob names containing pattern.
func (f *FaultyStore) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules[pattern] = fault
}

// Clear removes all rules.
func (f *FaultyStore) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = make(map[string]Fault)
	f.puts = make(map[string]int)
}

func (f *FaultyStore) match(name string) (string, Fault, bool) {
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			if rule.Err == nil {
				rule.Err = ErrInjected
			}
			return pattern, rule, true
		}
	}

	return "", Fault{}, false
}

// Put applies matching rules before delegating.
func (f *FaultyStore) Put(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	pattern, rule, ok := f.match(name)
	count := 0
	if ok {
		f.puts[pattern]++
		count = f.puts[pattern]
	}
	f.mu.Unlock()

	if ok && rule.PutLatency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rule.PutLatency):
		}
	}

	if ok && rule.FailPut && count > rule.FailAfter {
		return rule.Err
	}

	return f.Store.Put(ctx, name, data)
}

// Get applies matching rules before delegating.
func (f *FaultyStore) Get(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	_, rule, ok := f.match(name)
	f.mu.Unlock()

	if ok && rule.FailGet {
		return nil, rule.Err
	}

	return f.Store.Get(ctx, name)
}

// Delete delegates to the wrapped store.
func (f *FaultyStore) Delete(ctx context.Context, name string) error {
	return f.Store.Delete(ctx, name)
}

// List delegates to the wrapped store.
func (f *FaultyStore) List(ctx context.Context, prefix string) ([]string, error) {
	return f.Store.List(ctx, prefix)
}
