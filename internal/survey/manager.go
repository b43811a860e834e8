package survey

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/document"
)

// Manager owns the bounded cache of live surveys and drives the
// configuration lifecycle against the backing store. Every mutation
// writes the store first and touches the cache only after the store
// accepted the write, so a crash between the two leaves nothing
// stale that a reload would not fix.
type Manager struct {
	store  document.Store
	mailer Mailer
	cache  *lru.Cache[string, *Survey]
	flight singleflight.Group

	// genMu guards gens, the per-key mutation counter that lets a slow
	// Fetch load detect it raced a Create/Update/Delete. Counters only
	// grow and entries are never removed, so a deleted key can not be
	// confused with a never-seen one.
	genMu sync.Mutex
	gens  map[string]uint64

	clock      Clock
	newToken   tokenFunc
	retryLimit int
}

// NewManager wires a manager against its store and mailer.
func NewManager(store document.Store, m Mailer, cfg config.SurveyConfig) (*Manager, error) {
	size := cfg.CacheSize
	if size < 1 {
		size = 256
	}
	cache, err := lru.New[string, *Survey](size)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:      store,
		mailer:     m,
		cache:      cache,
		gens:       map[string]uint64{},
		clock:      defaultClock,
		newToken:   NewToken,
		retryLimit: cfg.TokenRetryLimit,
	}, nil
}

func (m *Manager) generation(key string) uint64 {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	return m.gens[key]
}

// cacheUnlessStale inserts s only if no mutation touched the key since
// gen was read, so a load that lost a race against Create/Update/Delete
// can never overwrite the fresher cache entry.
func (m *Manager) cacheUnlessStale(key string, gen uint64, s *Survey) {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	if m.gens[key] == gen {
		m.cache.Add(key, s)
	}
}

// swapCache records a mutation of key and applies its cache change
// atomically with respect to in-flight loads, then drops any shared
// load for the key so later fetches start fresh.
func (m *Manager) swapCache(key string, apply func()) {
	m.genMu.Lock()
	m.gens[key]++
	apply()
	m.genMu.Unlock()
	m.flight.Forget(key)
}

func (m *Manager) survey(owner string, cfg *Configuration) (*Survey, error) {
	return newSurvey(owner, cfg, m.store, m.mailer, m.clock, m.newToken, m.retryLimit)
}

// Fetch returns the live survey for owner and name, loading it from
// the store and caching it when absent. Concurrent fetches of the same
// key share one store read.
func (m *Manager) Fetch(ctx context.Context, owner, name string) (*Survey, error) {
	key := Key(owner, name)
	if s, ok := m.cache.Get(key); ok {
		return s, nil
	}
	v, err, _ := m.flight.Do(key, func() (any, error) {
		if s, ok := m.cache.Get(key); ok {
			return s, nil
		}
		gen := m.generation(key)
		// The load's result is shared by every waiter on this flight,
		// so one caller's cancellation must not fail the rest.
		doc, err := m.store.FindOne(context.WithoutCancel(ctx), configurationsCollection, key)
		if errors.Is(err, document.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, storeFailure(err)
		}
		cfg, err := configurationFromDoc(doc)
		if err != nil {
			return nil, storeFailure(err)
		}
		s, err := m.survey(owner, cfg)
		if err != nil {
			return nil, storeFailure(err)
		}
		m.cacheUnlessStale(key, gen, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Survey), nil
}

// Create validates and persists a new configuration, then caches the
// live survey. The path name must match the configuration's own name
// so a survey can never be filed under an identity it does not claim.
func (m *Manager) Create(ctx context.Context, owner, name string, cfg *Configuration) error {
	if cfg.Name != name {
		return ErrInvalidConfiguration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := m.survey(owner, cfg)
	if err != nil {
		return ErrInvalidConfiguration
	}
	doc, err := configurationDoc(owner, cfg)
	if err != nil {
		return storeFailure(err)
	}
	err = m.store.InsertOne(ctx, configurationsCollection, doc)
	if errors.Is(err, document.ErrDuplicateID) {
		return ErrAlreadyExists
	}
	if err != nil {
		return storeFailure(err)
	}
	key := Key(owner, name)
	m.swapCache(key, func() { m.cache.Add(key, s) })
	return nil
}

// Update replaces an existing configuration and swaps the cached
// survey so no request keeps validating against the old schema.
func (m *Manager) Update(ctx context.Context, owner, name string, cfg *Configuration) error {
	if cfg.Name != name {
		return ErrInvalidConfiguration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := m.survey(owner, cfg)
	if err != nil {
		return ErrInvalidConfiguration
	}
	doc, err := configurationDoc(owner, cfg)
	if err != nil {
		return storeFailure(err)
	}
	key := Key(owner, name)
	matched, err := m.store.ReplaceOne(ctx, configurationsCollection, key, doc, false)
	if err != nil {
		return storeFailure(err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	m.swapCache(key, func() { m.cache.Add(key, s) })
	return nil
}

// Reset drops all submission data and any memoized aggregate but keeps
// the configuration in place.
func (m *Manager) Reset(ctx context.Context, owner, name string) error {
	key := Key(owner, name)
	if err := m.store.Drop(ctx, submissionsCollection(key)); err != nil {
		return storeFailure(err)
	}
	if err := m.store.Drop(ctx, verifiedCollection(key)); err != nil {
		return storeFailure(err)
	}
	if s, ok := m.cache.Get(key); ok {
		s.clearResults()
	}
	return nil
}

// Delete removes the configuration, every submission record and the
// cache entry. Deleting a survey that does not exist is not an error.
func (m *Manager) Delete(ctx context.Context, owner, name string) error {
	key := Key(owner, name)
	if err := m.store.DeleteOne(ctx, configurationsCollection, key); err != nil {
		return storeFailure(err)
	}
	m.swapCache(key, func() { m.cache.Remove(key) })
	if err := m.store.Drop(ctx, submissionsCollection(key)); err != nil {
		return storeFailure(err)
	}
	if err := m.store.Drop(ctx, verifiedCollection(key)); err != nil {
		return storeFailure(err)
	}
	return nil
}

// Close releases the backing store.
func (m *Manager) Close() error {
	return m.store.Close()
}
