// Package store persists tool definitions as .tool.yaml files in a
// directory. Saves are validated, so a definition that reaches disk is
// executable; reads hand out deep-copied snapshots, so callers can
// never mutate what a concurrent run is executing.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/toolmint/toolmint/pkg/schema"
)

// Ext is the file extension for tool definitions.
const Ext = ".tool.yaml"

// ErrNotFound reports a lookup for a tool id the store does not hold.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("tool %q not found", e.ID)
}

// Store is a directory-backed tool repository with an in-memory index.
// Safe for concurrent use.
type Store struct {
	dir  string
	mu   sync.RWMutex
	defs map[string]*schema.Tool
	revs map[string]uint64
}

// Open creates the directory if needed and loads every tool definition
// in it. Files that fail validation are rejected with their errors so a
// corrupt definition is caught at startup, not mid-run.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &Store{
		dir:  dir,
		defs: make(map[string]*schema.Tool),
		revs: make(map[string]uint64),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read store directory: %w", err)
	}
	defs := make(map[string]*schema.Tool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Ext) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		t, errs := schema.ValidateFile(path)
		if len(errs) > 0 {
			var msgs []string
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			return fmt.Errorf("tool file %s invalid: %s", entry.Name(), strings.Join(msgs, "; "))
		}
		if prev, dup := defs[t.ID]; dup && prev != nil {
			return fmt.Errorf("duplicate tool id %q in store", t.ID)
		}
		defs[t.ID] = t
	}
	s.mu.Lock()
	s.defs = defs
	for id := range defs {
		s.revs[id]++
	}
	s.mu.Unlock()
	return nil
}

// Save validates and persists a tool definition, creating or replacing
// <id>.tool.yaml. Invalid definitions never reach disk.
func (s *Store) Save(t *schema.Tool) error {
	if errs := schema.Validate(t); len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("tool %q validation failed: %s", t.ID, strings.Join(msgs, "; "))
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tool %q: %w", t.ID, err)
	}
	path := filepath.Join(s.dir, t.ID+Ext)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write tool %q: %w", t.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit tool %q: %w", t.ID, err)
	}

	s.mu.Lock()
	s.defs[t.ID] = t.Clone()
	s.revs[t.ID]++
	s.mu.Unlock()
	return nil
}

// Revision reports how many times a tool definition has been loaded or
// saved. Callers use it to invalidate per-tool state when a new
// revision lands; ids the store has never held report zero. Counters
// survive Delete so a re-created id still reads as changed.
func (s *Store) Revision(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revs[id]
}

// Get returns a deep-copied snapshot of a tool in any lifecycle status.
func (s *Store) Get(id string) (*schema.Tool, error) {
	s.mu.RLock()
	t, ok := s.defs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return t.Clone(), nil
}

// GetPublished returns a snapshot of a tool only when its status is
// published. Drafts and testing tools are invisible to end users.
func (s *Store) GetPublished(id string) (*schema.Tool, error) {
	t, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != schema.StatusPublished {
		return nil, fmt.Errorf("tool %q is not published (status %q)", id, t.Status)
	}
	return t, nil
}

// List returns snapshots of every stored tool, ordered by id.
func (s *Store) List() []*schema.Tool {
	s.mu.RLock()
	out := make([]*schema.Tool, 0, len(s.defs))
	for _, t := range s.defs {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes a tool definition from disk and the index.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return &ErrNotFound{ID: id}
	}
	if err := os.Remove(filepath.Join(s.dir, id+Ext)); err != nil {
		return fmt.Errorf("remove tool %q: %w", id, err)
	}
	delete(s.defs, id)
	return nil
}

// Advance moves a tool one step along the draft → testing → published
// lifecycle and persists the change.
func (s *Store) Advance(id string) (*schema.Tool, error) {
	t, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case schema.StatusDraft:
		t.Status = schema.StatusTesting
	case schema.StatusTesting:
		t.Status = schema.StatusPublished
	case schema.StatusPublished:
		return nil, fmt.Errorf("tool %q is already published", id)
	default:
		return nil, fmt.Errorf("tool %q has unknown status %q", id, t.Status)
	}
	if err := s.Save(t); err != nil {
		return nil, err
	}
	return t, nil
}
