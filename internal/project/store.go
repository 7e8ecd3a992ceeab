package project

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates the requested project does not exist in the store.
var ErrNotFound = errors.New("project not found")

// Store is the project table. Mutations run under a per-project lock so
// concurrent cache or vault operations on the same project serialize while
// different projects proceed in parallel. Readers always observe a complete
// snapshot, never a torn update.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*Project
	locks    map[string]*sync.Mutex
}

// NewStore creates an empty project store.
func NewStore() *Store {
	return &Store{
		projects: make(map[string]*Project),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Put inserts or replaces a project record.
func (s *Store) Put(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.projects[p.ID] = &cp
}

// Snapshot returns a value copy of the project, or ErrNotFound.
func (s *Store) Snapshot(id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}

	return *p, nil
}

// All returns value snapshots of every project, ordered by ID for
// deterministic iteration.
func (s *Store) All() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// FindByURL returns a snapshot of the project registered for repoURL.
func (s *Store) FindByURL(repoURL string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.RepoURL == repoURL {
			return *p, true
		}
	}

	return Project{}, false
}

// Delete removes a project record. Deleting a missing project is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.projects, id)
	delete(s.locks, id)
}

// Update applies fn to the stored project under the store lock, so the
// mutation is atomic with respect to readers. Returns ErrNotFound if the
// project does not exist.
func (s *Store) Update(id string, fn func(*Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}

	fn(p)

	return nil
}

// Lock acquires the per-project mutex, creating it on first use. The caller
// must invoke the returned unlock function. Long-running work (clone, pull)
// happens under this lock; the store lock itself is never held across I/O.
func (s *Store) Lock(id string) (unlock func()) {
	s.mu.Lock()

	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}

	s.mu.Unlock()

	m.Lock()

	return m.Unlock
}
