package managers

import (
	"context"
	"fmt"
	"slices"

	"github.com/GoCodeAlone/modloader"
)

// PlacementManager pins materials onto scene photographs.
type PlacementManager struct {
	state     *StateStore
	workspace *WorkspaceManager
}

func NewPlacementManager(state *StateStore, workspace *WorkspaceManager) *PlacementManager {
	return &PlacementManager{state: state, workspace: workspace}
}

// Place puts a material on a scene at (x, y), both in [0,1]. Placing the
// same material on the same scene again moves it.
func (p *PlacementManager) Place(materialID, sceneID string, x, y float64) error {
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return fmt.Errorf("%w: (%.3f, %.3f)", ErrOutOfBounds, x, y)
	}
	if _, ok := p.state.Material(materialID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMaterial, materialID)
	}
	scene, ok := p.state.Scene(sceneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScene, sceneID)
	}
	process, ok := p.state.Process(scene.Process)
	if !ok || !slices.Contains(process.MaterialIDs, materialID) {
		return fmt.Errorf("%w: %s on %s (%s)", ErrMaterialNotInScene, materialID, sceneID, scene.Process)
	}
	p.state.PutPlacement(Placement{MaterialID: materialID, SceneID: sceneID, X: x, Y: y})
	return nil
}

// PlaceOnActive places a material on a scene of the active process.
func (p *PlacementManager) PlaceOnActive(materialID, sceneName string, x, y float64) error {
	for _, sc := range p.workspace.Scenes() {
		if sc.Name == sceneName {
			return p.Place(materialID, sc.ID, x, y)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownScene, sceneName)
}

// Remove takes a material off a scene.
func (p *PlacementManager) Remove(materialID, sceneID string) error {
	if !p.state.RemovePlacement(materialID, sceneID) {
		return fmt.Errorf("%w: %s is not placed on %s", ErrUnknownMaterial, materialID, sceneID)
	}
	return nil
}

// Placements returns the placements on a scene.
func (p *PlacementManager) Placements(sceneID string) []Placement {
	return p.state.Placements(sceneID)
}

// Unplaced returns the materials of a process not yet placed on any of its scenes.
func (p *PlacementManager) Unplaced(process string) []string {
	proc, ok := p.state.Process(process)
	if !ok {
		return nil
	}
	placed := make(map[string]bool)
	for _, sc := range p.state.Scenes(process) {
		for _, pl := range p.state.Placements(sc.ID) {
			placed[pl.MaterialID] = true
		}
	}
	var out []string
	for _, id := range proc.MaterialIDs {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}

// PlacementRegistration defines the placement module.
func PlacementRegistration() modloader.Registration {
	return modloader.Registration{
		Name:         PlacementName,
		Dependencies: []string{StateName, WorkspaceName},
		Factory: modloader.Provide2(func(ctx context.Context, state *StateStore, workspace *WorkspaceManager) (*PlacementManager, error) {
			return NewPlacementManager(state, workspace), nil
		}),
	}
}
