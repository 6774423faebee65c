package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"energy_dashboard/internal/energy"

	"go.uber.org/zap"
)

// StateSource provides the live state store
type StateSource interface {
	GetAllStates(ctx context.Context) ([]*Entity, error)
}

// EntityRegistrySource provides the entity registry enumeration
type EntityRegistrySource interface {
	EntityRegistryList(ctx context.Context) ([]RegistryEntry, error)
}

// Snapshot is the entity view discovery and the chart builder run over
type Snapshot struct {
	Entities   []energy.Entity `json:"entities"`
	FromStates bool            `json:"fromStates"` // registry unavailable, enumerated states instead
	LastUpdate time.Time       `json:"lastUpdate"`
}

// RegistryManager builds entity snapshots and keeps the last one on disk
type RegistryManager struct {
	states       StateSource
	registry     EntityRegistrySource
	filePath     string
	logger       *zap.Logger
	mu           sync.RWMutex
	snapshot     *Snapshot
	refreshTimer *time.Timer
	stopped      bool
}

// NewRegistryManager creates a new registry manager. registry may be nil, in
// which case snapshots enumerate the state store.
func NewRegistryManager(states StateSource, registry EntityRegistrySource, dataDir string, logger *zap.Logger) *RegistryManager {
	rm := &RegistryManager{
		states:   states,
		registry: registry,
		filePath: filepath.Join(dataDir, "ha_entities.json"),
		logger:   logger.Named("registry"),
	}

	if err := rm.loadFromFile(); err != nil {
		rm.logger.Debug("no cached snapshot", zap.Error(err))
	} else {
		rm.logger.Info("loaded cached snapshot", zap.Int("entities", len(rm.snapshot.Entities)))
	}

	return rm
}

// Start re-runs fn every interval with a fresh snapshot. A zero interval
// disables periodic refresh.
func (rm *RegistryManager) Start(interval time.Duration, fn func(*Snapshot)) {
	if interval <= 0 {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped {
		return
	}
	rm.refreshTimer = time.AfterFunc(interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		snapshot, err := rm.Refresh(ctx)
		cancel()
		if err == nil && fn != nil {
			fn(snapshot)
		}
		rm.Start(interval, fn)
	})
}

// Stop stops the periodic refresh
func (rm *RegistryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.stopped = true
	if rm.refreshTimer != nil {
		rm.refreshTimer.Stop()
	}
}

// Refresh takes a fresh snapshot of the host: the entity registry in its own
// order, each entry joined with its live attributes. Registered entities
// without a state get no attributes.
func (rm *RegistryManager) Refresh(ctx context.Context) (*Snapshot, error) {
	states, err := rm.states.GetAllStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch states: %w", err)
	}

	snapshot := &Snapshot{LastUpdate: time.Now()}

	var entries []RegistryEntry
	if rm.registry != nil {
		entries, err = rm.registry.EntityRegistryList(ctx)
		if err != nil {
			rm.logger.Warn("entity registry unavailable, enumerating states", zap.Error(err))
			entries = nil
		}
	}

	if entries == nil {
		snapshot.FromStates = true
		snapshot.Entities = entitiesFromStates(states)
	} else {
		snapshot.Entities = joinRegistry(entries, states)
	}

	rm.mu.Lock()
	rm.snapshot = snapshot
	rm.mu.Unlock()

	if err := rm.saveToFile(); err != nil {
		rm.logger.Warn("failed to save snapshot cache", zap.Error(err))
	} else {
		rm.logger.Debug("snapshot refreshed", zap.Int("entities", len(snapshot.Entities)), zap.Bool("from_states", snapshot.FromStates))
	}

	return snapshot, nil
}

// Current returns the last snapshot taken (or loaded from cache), nil if none
func (rm *RegistryManager) Current() *Snapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.snapshot
}

func entitiesFromStates(states []*Entity) []energy.Entity {
	entities := make([]energy.Entity, 0, len(states))
	for _, s := range states {
		if s == nil {
			continue
		}
		entities = append(entities, energy.Entity{
			ID:         s.EntityID,
			Domain:     energy.DomainOf(s.EntityID),
			Attributes: s.Attributes,
		})
	}
	return entities
}

func joinRegistry(entries []RegistryEntry, states []*Entity) []energy.Entity {
	byID := make(map[string]*Entity, len(states))
	for _, s := range states {
		if s != nil {
			byID[s.EntityID] = s
		}
	}

	entities := make([]energy.Entity, 0, len(entries))
	for _, entry := range entries {
		e := energy.Entity{
			ID:     entry.EntityID,
			Domain: energy.DomainOf(entry.EntityID),
		}
		if s, ok := byID[entry.EntityID]; ok {
			e.Attributes = s.Attributes
		}
		entities = append(entities, e)
	}
	return entities
}

// loadFromFile loads the snapshot from the cache file
func (rm *RegistryManager) loadFromFile() error {
	data, err := os.ReadFile(rm.filePath)
	if err != nil {
		return err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	if time.Since(snapshot.LastUpdate) > 24*time.Hour {
		return fmt.Errorf("cache is stale")
	}

	rm.snapshot = &snapshot
	return nil
}

// saveToFile saves the snapshot to the cache file
func (rm *RegistryManager) saveToFile() error {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.snapshot == nil {
		return fmt.Errorf("no snapshot to save")
	}

	data, err := json.MarshalIndent(rm.snapshot, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(rm.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(rm.filePath, data, 0644)
}
