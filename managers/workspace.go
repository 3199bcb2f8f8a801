package managers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/GoCodeAlone/modloader"
)

// WorkspaceManager tracks the process being edited and registers its
// scene photographs and floor-plan minimap.
type WorkspaceManager struct {
	state     *StateStore
	log       modloader.Logger
	processes *ProcessGroupingManager

	mu     sync.RWMutex
	active string
}

func NewWorkspaceManager(state *StateStore, logger *Logger, processes *ProcessGroupingManager) *WorkspaceManager {
	return &WorkspaceManager{state: state, log: logger.For(WorkspaceName), processes: processes}
}

// Init selects the first process, if there is one.
func (w *WorkspaceManager) Init(ctx context.Context) error {
	if ps := w.processes.Processes(); len(ps) > 0 {
		return w.SetActiveProcess(ps[0].Name)
	}
	return nil
}

// Cleanup forgets the active process.
func (w *WorkspaceManager) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = ""
}

func (w *WorkspaceManager) SetActiveProcess(name string) error {
	if _, ok := w.state.Process(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	w.mu.Lock()
	w.active = name
	w.mu.Unlock()
	w.log.Debug("Active process changed", "process", name)
	return nil
}

// ActiveProcess returns the active process name, or "" if none is selected
// or the selected one has since been removed.
func (w *WorkspaceManager) ActiveProcess() string {
	w.mu.RLock()
	active := w.active
	w.mu.RUnlock()
	if _, ok := w.state.Process(active); !ok {
		return ""
	}
	return active
}

// AddScene registers a scene photograph for the active process.
func (w *WorkspaceManager) AddScene(name string, image []byte) (Scene, error) {
	active := w.ActiveProcess()
	if active == "" {
		return Scene{}, ErrNoActiveProcess
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("%s scene %d", active, len(w.state.Scenes(active))+1)
	}
	scene := w.state.AddScene(active, name, image)
	w.log.Info("Scene added", "process", active, "scene", scene.ID, "bytes", len(image))
	return scene, nil
}

// SetMinimap registers the floor-plan image for the active process.
func (w *WorkspaceManager) SetMinimap(image []byte) error {
	active := w.ActiveProcess()
	if active == "" {
		return ErrNoActiveProcess
	}
	w.state.SetMinimap(active, image)
	return nil
}

// Scenes returns the scenes of the active process.
func (w *WorkspaceManager) Scenes() []Scene {
	active := w.ActiveProcess()
	if active == "" {
		return nil
	}
	return w.state.Scenes(active)
}

// WorkspaceRegistration defines the workspace module.
func WorkspaceRegistration() modloader.Registration {
	return modloader.Registration{
		Name:         WorkspaceName,
		Dependencies: []string{StateName, LoggerName, ProcessesName},
		Factory: modloader.Provide3(func(ctx context.Context, state *StateStore, logger *Logger, processes *ProcessGroupingManager) (*WorkspaceManager, error) {
			return NewWorkspaceManager(state, logger, processes), nil
		}),
	}
}
