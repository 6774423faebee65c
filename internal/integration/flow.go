package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Flow result types
const (
	FlowResultForm        = "form"
	FlowResultCreateEntry = "create_entry"
)

// Flow step ids
const (
	StepUser = "user"
	StepInit = "init"
)

// FlowResult is what each wizard step answers with
type FlowResult struct {
	FlowID     string                 `json:"flow_id"`
	Handler    string                 `json:"handler"`
	Type       string                 `json:"type"`
	StepID     string                 `json:"step_id,omitempty"`
	DataSchema []interface{}          `json:"data_schema"`
	Title      string                 `json:"title,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Result     *ConfigEntry           `json:"result,omitempty"`
}

// EntryManager is the part of the integration the wizard acts on
type EntryManager interface {
	Attach(ctx context.Context, entry ConfigEntry) error
	UpdateOptions(ctx context.Context, entryID string, options map[string]interface{}) error
	Entry(entryID string) (ConfigEntry, bool)
}

type flowKind int

const (
	configFlow flowKind = iota
	optionsFlow
)

type flowState struct {
	kind    flowKind
	entryID string // options flows only
}

// FlowManager runs the two-step wizard: a confirmation step that creates an
// entry, and an options step that stores an arbitrary key/value payload
type FlowManager struct {
	entries EntryManager

	mu    sync.Mutex
	flows map[string]flowState
}

func NewFlowManager(entries EntryManager) *FlowManager {
	return &FlowManager{entries: entries, flows: make(map[string]flowState)}
}

// Start opens a config flow at the confirmation step
func (m *FlowManager) Start(_ context.Context) FlowResult {
	id := m.open(flowState{kind: configFlow})
	return form(id, StepUser)
}

// Configure submits the confirmation step. A nil input re-shows the form;
// any other input (no fields are required) creates the entry.
func (m *FlowManager) Configure(ctx context.Context, flowID string, input map[string]interface{}) (FlowResult, error) {
	if _, err := m.lookup(flowID, configFlow); err != nil {
		return FlowResult{}, err
	}

	if input == nil {
		return form(flowID, StepUser), nil
	}

	entry := ConfigEntry{
		EntryID: uuid.NewString(),
		Domain:  Domain,
		Title:   "Energy Dashboard",
		Data:    map[string]interface{}{},
		Options: map[string]interface{}{},
	}
	if err := m.entries.Attach(ctx, entry); err != nil {
		return FlowResult{}, err
	}
	m.close(flowID)

	stored, ok := m.entries.Entry(entry.EntryID)
	if !ok {
		stored = entry
	}
	return FlowResult{
		FlowID:     flowID,
		Handler:    Domain,
		Type:       FlowResultCreateEntry,
		DataSchema: []interface{}{},
		Title:      stored.Title,
		Data:       stored.Data,
		Result:     &stored,
	}, nil
}

// StartOptions opens an options flow for an attached entry
func (m *FlowManager) StartOptions(_ context.Context, entryID string) (FlowResult, error) {
	if _, ok := m.entries.Entry(entryID); !ok {
		return FlowResult{}, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	id := m.open(flowState{kind: optionsFlow, entryID: entryID})
	return form(id, StepInit), nil
}

// ConfigureOptions submits the options step. The input replaces the entry's
// options as is.
func (m *FlowManager) ConfigureOptions(ctx context.Context, flowID string, input map[string]interface{}) (FlowResult, error) {
	state, err := m.lookup(flowID, optionsFlow)
	if err != nil {
		return FlowResult{}, err
	}

	if input == nil {
		return form(flowID, StepInit), nil
	}

	if err := m.entries.UpdateOptions(ctx, state.entryID, input); err != nil {
		return FlowResult{}, err
	}
	m.close(flowID)

	return FlowResult{
		FlowID:     flowID,
		Handler:    state.entryID,
		Type:       FlowResultCreateEntry,
		DataSchema: []interface{}{},
		Data:       input,
	}, nil
}

func (m *FlowManager) open(state flowState) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.flows[id] = state
	m.mu.Unlock()
	return id
}

func (m *FlowManager) lookup(flowID string, kind flowKind) (flowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.flows[flowID]
	if !ok || state.kind != kind {
		return flowState{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	return state, nil
}

func (m *FlowManager) close(flowID string) {
	m.mu.Lock()
	delete(m.flows, flowID)
	m.mu.Unlock()
}

func form(flowID, step string) FlowResult {
	return FlowResult{
		FlowID:     flowID,
		Handler:    Domain,
		Type:       FlowResultForm,
		StepID:     step,
		DataSchema: []interface{}{},
	}
}
