// Package integration is the Energy Dashboard integration proper: the
// lifecycle the host drives, the services it exposes and the per-entry
// state those services work on.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"energy_dashboard/internal/dashboard"
	"energy_dashboard/internal/energy"
	"energy_dashboard/internal/homeassistant"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInstanceID names the instance used by calls that carry no entry id
const DefaultInstanceID = "default"

// Lifecycle is what the host drives: once at setup, then per config entry
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Attach(ctx context.Context, entry ConfigEntry) error
	Detach(ctx context.Context, entryID string) error
}

// SnapshotSource takes a fresh snapshot of the host's entities
type SnapshotSource interface {
	Refresh(ctx context.Context) (*homeassistant.Snapshot, error)
}

// Publisher makes the derived lists visible to the outside world
type Publisher interface {
	PublishSensors(ctx context.Context, sensors []string) error
	PublishChart(ctx context.Context, series []energy.Series) error
}

// DashboardPublisher is implemented by publishers that also announce
// registered dashboards
type DashboardPublisher interface {
	PublishDashboard(ctx context.Context, doc dashboard.Document) error
}

// Options tunes setup and teardown behaviour
type Options struct {
	DashboardOnSetup        bool          // build the dashboard once after Initialize
	DashboardDelay          time.Duration // delay before that build
	RemoveDashboardOnUnload bool          // unregister when the last entry is detached
	InlineDashboard         bool          // embed lists instead of templated lookups
}

// Config wires an Integration to its collaborators
type Config struct {
	Snapshots  SnapshotSource
	Registrar  dashboard.Registrar // optional
	Entries    *EntryStore         // optional, entries are then kept in memory only
	Publishers []Publisher
	Options    Options
}

// Instance is the state scoped to one config entry: the last computed
// sensor list and chart config
type Instance struct {
	mu      sync.RWMutex
	entry   ConfigEntry
	sensors []string
	chart   []energy.Series
}

func newInstance(entry ConfigEntry) *Instance {
	return &Instance{entry: entry, sensors: []string{}, chart: []energy.Series{}}
}

// Entry returns the config entry the instance belongs to
func (inst *Instance) Entry() ConfigEntry {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.entry
}

// Sensors returns a copy of the last discovered sensor list
func (inst *Instance) Sensors() []string {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	out := make([]string, len(inst.sensors))
	copy(out, inst.sensors)
	return out
}

// Chart returns a copy of the last built chart config
func (inst *Instance) Chart() []energy.Series {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	out := make([]energy.Series, len(inst.chart))
	copy(out, inst.chart)
	return out
}

func (inst *Instance) setSensors(sensors []string) {
	inst.mu.Lock()
	inst.sensors = sensors
	inst.mu.Unlock()
}

func (inst *Instance) setChart(chart []energy.Series) {
	inst.mu.Lock()
	inst.chart = chart
	inst.mu.Unlock()
}

func (inst *Instance) setOptions(options map[string]interface{}) {
	inst.mu.Lock()
	inst.entry.Options = options
	inst.mu.Unlock()
}

// Integration implements Lifecycle and dispatches service calls
type Integration struct {
	snapshots  SnapshotSource
	registrar  dashboard.Registrar
	entries    *EntryStore
	publishers []Publisher
	opts       Options
	logger     *zap.Logger

	mu          sync.RWMutex
	initialized bool
	services    map[string]ServiceHandler
	instances   map[string]*Instance
	order       []string
	fallback    *Instance
	setupTimer  *time.Timer
}

var _ Lifecycle = (*Integration)(nil)

func New(cfg Config, logger *zap.Logger) *Integration {
	return &Integration{
		snapshots:  cfg.Snapshots,
		registrar:  cfg.Registrar,
		entries:    cfg.Entries,
		publishers: cfg.Publishers,
		opts:       cfg.Options,
		logger:     logger.Named("integration"),
		services:   make(map[string]ServiceHandler),
		instances:  make(map[string]*Instance),
		fallback:   newInstance(ConfigEntry{EntryID: DefaultInstanceID, Domain: Domain, Title: dashboard.DocumentTitle}),
	}
}

// Initialize installs the services, restores stored entries and, when
// configured, schedules the one-time dashboard build
func (i *Integration) Initialize(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.initialized {
		return ErrAlreadyInitialized
	}

	i.services[ServiceGetSensors] = i.handleGetSensors
	i.services[ServiceUpdateChart] = i.handleUpdateChart
	i.services[ServiceCreateDashboard] = i.handleCreateDashboard
	i.services[ServiceRemoveDashboard] = i.handleRemoveDashboard

	if i.entries != nil {
		for _, entry := range i.entries.List() {
			i.instances[entry.EntryID] = newInstance(entry)
			i.order = append(i.order, entry.EntryID)
		}
	}

	if i.opts.DashboardOnSetup && i.registrar != nil {
		i.setupTimer = time.AfterFunc(i.opts.DashboardDelay, func() {
			buildCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := i.BuildDashboard(buildCtx, i.fallback); err != nil {
				i.logger.Error("setup dashboard build failed", zap.Error(err))
			}
		})
	}

	i.initialized = true
	i.logger.Info("initialized", zap.Int("entries", len(i.instances)), zap.Int("services", len(i.services)))
	return nil
}

// Attach stores a config entry and creates its instance. An empty entry id
// is assigned.
func (i *Integration) Attach(_ context.Context, entry ConfigEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if entry.Domain == "" {
		entry.Domain = Domain
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if i.entries != nil {
		if err := i.entries.Put(entry); err != nil {
			return fmt.Errorf("store entry %s: %w", entry.EntryID, err)
		}
	}

	i.mu.Lock()
	if _, exists := i.instances[entry.EntryID]; !exists {
		i.order = append(i.order, entry.EntryID)
	}
	i.instances[entry.EntryID] = newInstance(entry)
	i.mu.Unlock()

	i.logger.Info("entry attached", zap.String("entry_id", entry.EntryID), zap.String("title", entry.Title))
	return nil
}

// Detach discards an entry and its instance. When it was the last entry and
// RemoveDashboardOnUnload is set, the dashboard is unregistered; failures
// there are discarded.
func (i *Integration) Detach(ctx context.Context, entryID string) error {
	i.mu.Lock()
	if _, ok := i.instances[entryID]; !ok {
		i.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	delete(i.instances, entryID)
	for idx, id := range i.order {
		if id == entryID {
			i.order = append(i.order[:idx], i.order[idx+1:]...)
			break
		}
	}
	remaining := len(i.instances)
	i.mu.Unlock()

	if i.entries != nil {
		if err := i.entries.Delete(entryID); err != nil {
			return fmt.Errorf("delete entry %s: %w", entryID, err)
		}
	}

	if remaining == 0 && i.opts.RemoveDashboardOnUnload && i.registrar != nil {
		if err := i.registrar.Unregister(ctx); err != nil {
			i.logger.Debug("dashboard unregister failed", zap.Error(err))
		}
	}

	i.logger.Info("entry detached", zap.String("entry_id", entryID))
	return nil
}

// UpdateOptions replaces an entry's options
func (i *Integration) UpdateOptions(_ context.Context, entryID string, options map[string]interface{}) error {
	if entryID == "" || entryID == DefaultInstanceID {
		return fmt.Errorf("%w: %q", ErrUnknownEntry, entryID)
	}
	inst, err := i.Instance(entryID)
	if err != nil {
		return err
	}

	inst.setOptions(options)
	if i.entries != nil {
		if err := i.entries.Put(inst.Entry()); err != nil {
			return fmt.Errorf("store entry %s: %w", entryID, err)
		}
	}
	return nil
}

// Shutdown cancels a pending setup build
func (i *Integration) Shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.setupTimer != nil {
		i.setupTimer.Stop()
	}
}

// Instance resolves an entry id to its instance. The empty id and
// DefaultInstanceID resolve to the default instance.
func (i *Integration) Instance(entryID string) (*Instance, error) {
	if entryID == "" || entryID == DefaultInstanceID {
		return i.fallback, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	inst, ok := i.instances[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	return inst, nil
}

// Entry returns an attached config entry
func (i *Integration) Entry(entryID string) (ConfigEntry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	inst, ok := i.instances[entryID]
	if !ok {
		return ConfigEntry{}, false
	}
	return inst.Entry(), true
}

// Entries returns the attached config entries in attach order
func (i *Integration) Entries() []ConfigEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]ConfigEntry, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.instances[id].Entry())
	}
	return out
}

// Document builds the dashboard document for an instance without
// registering it
func (i *Integration) Document(inst *Instance) dashboard.Document {
	return dashboard.Build(dashboard.Options{
		Inline:  i.opts.InlineDashboard,
		Sensors: inst.Sensors(),
		Chart:   inst.Chart(),
	})
}

// BuildDashboard builds the document for an instance and registers it
func (i *Integration) BuildDashboard(ctx context.Context, inst *Instance) error {
	if i.registrar == nil {
		return ErrNoRegistrar
	}
	doc := i.Document(inst)
	if err := i.registrar.Register(ctx, doc); err != nil {
		return fmt.Errorf("register dashboard: %w", err)
	}
	i.logger.Info("dashboard registered", zap.String("entry_id", inst.Entry().EntryID))

	for _, p := range i.publishers {
		if dp, ok := p.(DashboardPublisher); ok {
			if err := dp.PublishDashboard(ctx, doc); err != nil {
				i.logger.Warn("dashboard publish failed", zap.Error(err))
			}
		}
	}
	return nil
}

// RemoveDashboard unregisters the dashboard
func (i *Integration) RemoveDashboard(ctx context.Context) error {
	if i.registrar == nil {
		return ErrNoRegistrar
	}
	return i.registrar.Unregister(ctx)
}

func (i *Integration) publishSensors(ctx context.Context, sensors []string) error {
	var errs []error
	for _, p := range i.publishers {
		if err := p.PublishSensors(ctx, sensors); err != nil {
			i.logger.Warn("sensor list publish failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Integration) publishChart(ctx context.Context, series []energy.Series) error {
	var errs []error
	for _, p := range i.publishers {
		if err := p.PublishChart(ctx, series); err != nil {
			i.logger.Warn("chart config publish failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
