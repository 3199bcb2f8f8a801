package managers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modloader"
)

// Material is one row of the uploaded materials sheet.
type Material struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Area string `json:"area"`
	Item string `json:"item"`
}

// Process is a named group of materials, presented as one section of the deck.
type Process struct {
	Name        string   `json:"name"`
	MaterialIDs []string `json:"material_ids"`
}

// Scene is a photograph belonging to a process.
type Scene struct {
	ID      string `json:"id"`
	Process string `json:"process"`
	Name    string `json:"name"`
	Image   []byte `json:"-"`
}

// Placement pins a material to a scene at normalized coordinates.
type Placement struct {
	MaterialID string  `json:"material_id"`
	SceneID    string  `json:"scene_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// StateStore holds the wizard's shared state. Every other manager reads and
// writes through it.
type StateStore struct {
	mu         sync.RWMutex
	source     string
	materials  []Material
	processes  []Process
	scenes     []Scene
	sceneSeq   int
	minimaps   map[string][]byte
	placements []Placement
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{minimaps: make(map[string][]byte)}
}

func (s *StateStore) Init(ctx context.Context) error {
	s.Reset()
	return nil
}

// Cleanup drops all state.
func (s *StateStore) Cleanup() {
	s.Reset()
}

// Reset drops all state.
func (s *StateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = ""
	s.materials = nil
	s.processes = nil
	s.scenes = nil
	s.sceneSeq = 0
	s.minimaps = make(map[string][]byte)
	s.placements = nil
}

// SetMaterials replaces the material list and everything derived from it.
func (s *StateStore) SetMaterials(source string, materials []Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	s.materials = slices.Clone(materials)
	s.processes = nil
	s.scenes = nil
	s.minimaps = make(map[string][]byte)
	s.placements = nil
}

// Source is the file the materials came from.
func (s *StateStore) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *StateStore) Materials() []Material {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.materials)
}

func (s *StateStore) Material(id string) (Material, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.materials, func(m Material) bool { return m.ID == id })
	if i < 0 {
		return Material{}, false
	}
	return s.materials[i], true
}

// SetProcesses replaces the process list. Scenes and placements of removed
// processes are dropped.
func (s *StateStore) SetProcesses(processes []Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes = make([]Process, len(processes))
	keep := make(map[string]bool, len(processes))
	for i, p := range processes {
		s.processes[i] = Process{Name: p.Name, MaterialIDs: slices.Clone(p.MaterialIDs)}
		keep[p.Name] = true
	}

	removedScenes := make(map[string]bool)
	s.scenes = slices.DeleteFunc(s.scenes, func(sc Scene) bool {
		if !keep[sc.Process] {
			removedScenes[sc.ID] = true
			return true
		}
		return false
	})
	s.placements = slices.DeleteFunc(s.placements, func(p Placement) bool { return removedScenes[p.SceneID] })
	for name := range s.minimaps {
		if !keep[name] {
			delete(s.minimaps, name)
		}
	}
}

func (s *StateStore) Processes() []Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Process, len(s.processes))
	for i, p := range s.processes {
		out[i] = Process{Name: p.Name, MaterialIDs: slices.Clone(p.MaterialIDs)}
	}
	return out
}

func (s *StateStore) Process(name string) (Process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.processes {
		if p.Name == name {
			return Process{Name: p.Name, MaterialIDs: slices.Clone(p.MaterialIDs)}, true
		}
	}
	return Process{}, false
}

// AddScene stores a scene, assigning the next free ID.
func (s *StateStore) AddScene(process, name string, image []byte) Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sceneSeq++
	scene := Scene{
		ID:      fmt.Sprintf("s%d", s.sceneSeq),
		Process: process,
		Name:    name,
		Image:   image,
	}
	s.scenes = append(s.scenes, scene)
	return scene
}

func (s *StateStore) sceneIndexLocked(id string) int {
	return slices.IndexFunc(s.scenes, func(sc Scene) bool { return sc.ID == id })
}

func (s *StateStore) Scene(id string) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.sceneIndexLocked(id)
	if i < 0 {
		return Scene{}, false
	}
	return s.scenes[i], true
}

// Scenes returns the scenes of one process, or all scenes when process is empty.
func (s *StateStore) Scenes(process string) []Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Scene
	for _, sc := range s.scenes {
		if process == "" || sc.Process == process {
			out = append(out, sc)
		}
	}
	return out
}

func (s *StateStore) SetMinimap(process string, image []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minimaps[process] = image
}

func (s *StateStore) Minimap(process string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	image, ok := s.minimaps[process]
	return image, ok
}

// PutPlacement adds or moves the placement of a material within a scene.
func (s *StateStore) PutPlacement(p Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.placements {
		if s.placements[i].MaterialID == p.MaterialID && s.placements[i].SceneID == p.SceneID {
			s.placements[i] = p
			return
		}
	}
	s.placements = append(s.placements, p)
}

// RemovePlacement reports whether a placement was removed.
func (s *StateStore) RemovePlacement(materialID, sceneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.placements)
	s.placements = slices.DeleteFunc(s.placements, func(p Placement) bool {
		return p.MaterialID == materialID && p.SceneID == sceneID
	})
	return len(s.placements) != before
}

// RemovePlacementsFor drops the placements of a material on scenes that do
// not belong to keepProcess and returns how many were removed.
func (s *StateStore) RemovePlacementsFor(materialID, keepProcess string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.placements)
	s.placements = slices.DeleteFunc(s.placements, func(p Placement) bool {
		if p.MaterialID != materialID {
			return false
		}
		i := s.sceneIndexLocked(p.SceneID)
		return i < 0 || s.scenes[i].Process != keepProcess
	})
	return before - len(s.placements)
}

// Placements returns the placements on one scene, or all placements when
// sceneID is empty.
func (s *StateStore) Placements(sceneID string) []Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Placement
	for _, p := range s.placements {
		if sceneID == "" || p.SceneID == sceneID {
			out = append(out, p)
		}
	}
	return out
}

// StateRegistration defines the state store module.
func StateRegistration() modloader.Registration {
	return modloader.Registration{
		Name: StateName,
		Factory: modloader.Provide(func(ctx context.Context) (*StateStore, error) {
			return NewStateStore(), nil
		}),
	}
}
