package managers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/modloader"
)

// Grouping keys accepted by ProcessGroupingManager.GroupBy.
const (
	GroupByItem = "item"
	GroupByArea = "area"
)

// UnassignedProcess collects materials whose grouping column is empty.
const UnassignedProcess = "Unassigned"

// ProcessGroupingManager groups uploaded materials into named processes.
type ProcessGroupingManager struct {
	state *StateStore
	log   modloader.Logger
	// mu serializes read-modify-write cycles on the process list.
	mu sync.Mutex
}

func NewProcessGroupingManager(state *StateStore, logger *Logger) *ProcessGroupingManager {
	return &ProcessGroupingManager{state: state, log: logger.For(ProcessesName)}
}

func (m *ProcessGroupingManager) Init(ctx context.Context) error {
	m.log.Debug("Process grouping ready", "processes", len(m.state.Processes()))
	return nil
}

// GroupBy replaces the processes with one process per distinct value of
// the given material column, in order of first appearance.
func (m *ProcessGroupingManager) GroupBy(key string) ([]Process, error) {
	var field func(Material) string
	switch strings.ToLower(key) {
	case GroupByItem:
		field = func(mat Material) string { return mat.Item }
	case GroupByArea:
		field = func(mat Material) string { return mat.Area }
	default:
		return nil, fmt.Errorf("unsupported grouping key %q", key)
	}

	materials := m.state.Materials()
	if len(materials) == 0 {
		return nil, ErrNoMaterials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var processes []Process
	index := make(map[string]int)
	for _, mat := range materials {
		name := field(mat)
		if name == "" {
			name = UnassignedProcess
		}
		i, ok := index[name]
		if !ok {
			i = len(processes)
			index[name] = i
			processes = append(processes, Process{Name: name})
		}
		processes[i].MaterialIDs = append(processes[i].MaterialIDs, mat.ID)
	}
	m.state.SetProcesses(processes)
	m.log.Info("Grouped materials", "by", key, "processes", len(processes))
	return processes, nil
}

// Create adds an empty process.
func (m *ProcessGroupingManager) Create(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("process name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	processes := m.state.Processes()
	if slices.ContainsFunc(processes, func(p Process) bool { return p.Name == name }) {
		return fmt.Errorf("%w: %s", ErrDuplicateProcess, name)
	}
	m.state.SetProcesses(append(processes, Process{Name: name}))
	return nil
}

// Assign moves materials into process, removing them from any other process
// together with their placements on that process's scenes.
func (m *ProcessGroupingManager) Assign(process string, materialIDs ...string) error {
	for _, id := range materialIDs {
		if _, ok := m.state.Material(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMaterial, id)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	processes := m.state.Processes()
	target := slices.IndexFunc(processes, func(p Process) bool { return p.Name == process })
	if target < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}
	for i := range processes {
		processes[i].MaterialIDs = slices.DeleteFunc(processes[i].MaterialIDs, func(id string) bool {
			return slices.Contains(materialIDs, id)
		})
	}
	processes[target].MaterialIDs = append(processes[target].MaterialIDs, materialIDs...)
	m.state.SetProcesses(processes)
	for _, id := range materialIDs {
		m.state.RemovePlacementsFor(id, process)
	}
	return nil
}

// Remove deletes a process together with its scenes and placements.
func (m *ProcessGroupingManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	processes := m.state.Processes()
	before := len(processes)
	kept := slices.DeleteFunc(processes, func(p Process) bool { return p.Name == name })
	if len(kept) == before {
		return fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	m.state.SetProcesses(kept)
	return nil
}

// Processes returns the current processes.
func (m *ProcessGroupingManager) Processes() []Process {
	return m.state.Processes()
}

// ProcessOf returns the name of the process holding a material.
func (m *ProcessGroupingManager) ProcessOf(materialID string) (string, bool) {
	for _, p := range m.state.Processes() {
		if slices.Contains(p.MaterialIDs, materialID) {
			return p.Name, true
		}
	}
	return "", false
}

// ProcessesRegistration defines the process grouping module.
func ProcessesRegistration() modloader.Registration {
	return modloader.Registration{
		Name:         ProcessesName,
		Dependencies: []string{StateName, LoggerName},
		Factory: modloader.Provide2(func(ctx context.Context, state *StateStore, logger *Logger) (*ProcessGroupingManager, error) {
			return NewProcessGroupingManager(state, logger), nil
		}),
	}
}
