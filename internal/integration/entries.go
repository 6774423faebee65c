package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Domain is the integration's domain, used in service names and entries
const Domain = "energy_dashboard"

// ConfigEntry is one installed instance of the integration
type ConfigEntry struct {
	EntryID   string                 `json:"entry_id"`
	Domain    string                 `json:"domain"`
	Title     string                 `json:"title"`
	Data      map[string]interface{} `json:"data"`
	Options   map[string]interface{} `json:"options"`
	CreatedAt time.Time              `json:"created_at"`
}

// EntryStore keeps config entries in a JSON file
type EntryStore struct {
	path    string
	mu      sync.Mutex
	entries []ConfigEntry
}

// NewEntryStore opens (or starts) dataDir/entries.json
func NewEntryStore(dataDir string) (*EntryStore, error) {
	s := &EntryStore{path: filepath.Join(dataDir, "entries.json")}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	return s, nil
}

// List returns the stored entries in insertion order
func (s *EntryStore) List() []ConfigEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConfigEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given id
func (s *EntryStore) Get(entryID string) (ConfigEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.EntryID == entryID {
			return e, true
		}
	}
	return ConfigEntry{}, false
}

// Put inserts or replaces an entry and saves the file
func (s *EntryStore) Put(entry ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.entries {
		if s.entries[i].EntryID == entry.EntryID {
			s.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.entries = append(s.entries, entry)
	}
	return s.save()
}

// Delete removes an entry and saves the file. Unknown ids are ignored.
func (s *EntryStore) Delete(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.EntryID != entryID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return s.save()
}

// save writes the file. Caller holds mu.
func (s *EntryStore) save() error {
	entries := s.entries
	if entries == nil {
		entries = []ConfigEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
