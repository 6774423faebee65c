package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"energy_dashboard/internal/energy"
	"energy_dashboard/internal/homeassistant"

	"go.uber.org/zap"
)

// Service names, addressed as energy_dashboard.<name>
const (
	ServiceGetSensors      = "get_sensors"
	ServiceUpdateChart     = "update_chart"
	ServiceCreateDashboard = "create_dashboard"
	ServiceRemoveDashboard = "remove_dashboard"

	// FieldSelectedSensors is the one field update_chart reads
	FieldSelectedSensors = "selected_sensors"
)

// ServiceCall is a named command with its payload
type ServiceCall struct {
	Service string
	EntryID string // empty targets the default instance
	Data    map[string]interface{}
}

// ServiceHandler runs one service against one instance
type ServiceHandler func(ctx context.Context, inst *Instance, data map[string]interface{}) error

// Services lists the installed service names, sorted
func (i *Integration) Services() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.services))
	for name := range i.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call dispatches a service call
func (i *Integration) Call(ctx context.Context, call ServiceCall) error {
	i.mu.RLock()
	initialized := i.initialized
	handler, ok := i.services[call.Service]
	i.mu.RUnlock()

	if !initialized {
		return ErrNotInitialized
	}
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownService, Domain, call.Service)
	}

	inst, err := i.Instance(call.EntryID)
	if err != nil {
		return err
	}

	i.logger.Debug("service call", zap.String("service", call.Service), zap.String("entry_id", inst.Entry().EntryID))
	return handler(ctx, inst, call.Data)
}

func (i *Integration) handleGetSensors(ctx context.Context, inst *Instance, _ map[string]interface{}) error {
	snapshot, err := i.snapshots.Refresh(ctx)
	if err != nil {
		return err
	}

	sensors := energy.DiscoverSensors(snapshot.Entities)
	inst.setSensors(sensors)
	i.logger.Info("sensors discovered", zap.Int("count", len(sensors)), zap.Int("entities", len(snapshot.Entities)))

	return i.publishSensors(ctx, sensors)
}

// Rediscover runs discovery over an already taken snapshot for the default
// instance and every attached entry, then publishes the list once
func (i *Integration) Rediscover(ctx context.Context, snapshot *homeassistant.Snapshot) error {
	if snapshot == nil {
		return nil
	}
	sensors := energy.DiscoverSensors(snapshot.Entities)

	i.mu.RLock()
	targets := make([]*Instance, 0, len(i.instances)+1)
	targets = append(targets, i.fallback)
	for _, id := range i.order {
		targets = append(targets, i.instances[id])
	}
	i.mu.RUnlock()

	for _, inst := range targets {
		out := make([]string, len(sensors))
		copy(out, sensors)
		inst.setSensors(out)
	}
	i.logger.Debug("sensors rediscovered", zap.Int("count", len(sensors)), zap.Int("instances", len(targets)))
	return i.publishSensors(ctx, sensors)
}

func (i *Integration) handleUpdateChart(ctx context.Context, inst *Instance, data map[string]interface{}) error {
	selected := SelectedSensors(data)

	snapshot, err := i.snapshots.Refresh(ctx)
	if err != nil {
		return err
	}

	chart := energy.BuildChartConfig(selected, snapshot.Entities)
	inst.setChart(chart)
	i.logger.Info("chart config updated", zap.Int("series", len(chart)))

	return i.publishChart(ctx, chart)
}

func (i *Integration) handleCreateDashboard(ctx context.Context, inst *Instance, _ map[string]interface{}) error {
	return i.BuildDashboard(ctx, inst)
}

// handleRemoveDashboard discards host failures like every other dashboard
// teardown; only a missing registrar is reported
func (i *Integration) handleRemoveDashboard(ctx context.Context, _ *Instance, _ map[string]interface{}) error {
	err := i.RemoveDashboard(ctx)
	if errors.Is(err, ErrNoRegistrar) {
		return err
	}
	if err != nil {
		i.logger.Debug("dashboard unregister failed", zap.Error(err))
	}
	return nil
}

// SelectedSensors reads selected_sensors from a payload. A list keeps its
// string items in order, a comma separated string is split, anything else
// (including a missing field) is the empty selection.
func SelectedSensors(data map[string]interface{}) []string {
	selected := make([]string, 0)
	switch v := data[FieldSelectedSensors].(type) {
	case []string:
		selected = append(selected, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				selected = append(selected, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				selected = append(selected, part)
			}
		}
	}
	return selected
}
