package managers

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/deck"
)

// TaskGenerateSlides is the dispatcher task type used for deck generation.
const TaskGenerateSlides = "slides.generate"

const labelWidth, labelHeight = 0.18, 0.05

// GenerateRequest describes the deck to build.
type GenerateRequest struct {
	Title    string
	Filename string
}

// GenerateResult summarises a saved deck.
type GenerateResult struct {
	Filename  string `json:"filename"`
	Slides    int    `json:"slides"`
	Processes int    `json:"processes"`
}

// taskRegistrar is implemented by dispatchers that accept task handlers.
type taskRegistrar interface {
	Handle(taskType string, handler deck.HandlerFunc) error
}

// SlideManager builds the slide deck: a title slide, then for each process
// an optional minimap slide and one slide per scene with the placed
// materials labelled at their positions.
type SlideManager struct {
	state      *StateStore
	processes  *ProcessGroupingManager
	placement  *PlacementManager
	log        modloader.Logger
	writer     deck.DeckWriter
	dispatcher deck.Dispatcher
	background atomic.Bool
}

func NewSlideManager(state *StateStore, processes *ProcessGroupingManager, placement *PlacementManager, logger *Logger, writer deck.DeckWriter, dispatcher deck.Dispatcher) *SlideManager {
	return &SlideManager{
		state:      state,
		processes:  processes,
		placement:  placement,
		log:        logger.For(SlidesName),
		writer:     writer,
		dispatcher: dispatcher,
	}
}

// Init registers the generation task with the dispatcher when it accepts
// handlers. Otherwise decks are generated inline.
func (s *SlideManager) Init(ctx context.Context) error {
	if s.writer == nil {
		return missing(SlidesName, "deck writer")
	}
	if reg, ok := s.dispatcher.(taskRegistrar); ok {
		if err := reg.Handle(TaskGenerateSlides, s.handleGenerate); err != nil {
			return fmt.Errorf("register %s task: %w", TaskGenerateSlides, err)
		}
		s.background.Store(true)
	}
	return nil
}

// Cleanup stops routing generation through the dispatcher.
func (s *SlideManager) Cleanup() {
	s.background.Store(false)
}

func (s *SlideManager) handleGenerate(ctx context.Context, task *deck.Task) (any, error) {
	req, ok := task.Payload.(GenerateRequest)
	if !ok {
		return nil, fmt.Errorf("task %s: unexpected payload %T", task.ID, task.Payload)
	}
	return s.build(ctx, req, task.Report)
}

// Generate builds and saves the deck, through the dispatcher when one is
// registered.
func (s *SlideManager) Generate(ctx context.Context, req GenerateRequest, progress deck.ProgressFunc) (GenerateResult, error) {
	if req.Title == "" {
		req.Title = "Material placements"
	}
	if !s.background.Load() {
		return s.build(ctx, req, progress)
	}

	value, err := s.dispatcher.Dispatch(ctx, TaskGenerateSlides, req, deck.WithProgress(progress))
	if err != nil {
		return GenerateResult{}, err
	}
	result, ok := value.(GenerateResult)
	if !ok {
		return GenerateResult{}, fmt.Errorf("%s returned %T", TaskGenerateSlides, value)
	}
	return result, nil
}

func (s *SlideManager) build(ctx context.Context, req GenerateRequest, progress deck.ProgressFunc) (GenerateResult, error) {
	processes := s.processes.Processes()
	if len(processes) == 0 {
		return GenerateResult{}, ErrNothingToGenerate
	}

	d := s.writer.NewDeck(req.Title)
	title := d.AddSlide(req.Title)
	title.AddText(req.Title, deck.Box{X: 0.1, Y: 0.35, W: 0.8, H: 0.15})
	summary := [][]string{{"Process", "Materials", "Scenes"}}
	for _, p := range processes {
		summary = append(summary, []string{
			p.Name,
			fmt.Sprint(len(p.MaterialIDs)),
			fmt.Sprint(len(s.state.Scenes(p.Name))),
		})
	}
	title.AddTable(summary, deck.Box{X: 0.1, Y: 0.55, W: 0.8, H: 0.35})

	total := int64(len(processes))
	for i, p := range processes {
		if err := ctx.Err(); err != nil {
			return GenerateResult{}, err
		}
		s.addProcessSlides(d, p)
		if progress != nil {
			progress(int64(i+1), total)
		}
	}

	if err := d.Save(ctx, req.Filename); err != nil {
		return GenerateResult{}, fmt.Errorf("save deck: %w", err)
	}
	result := GenerateResult{Filename: req.Filename, Slides: d.Slides(), Processes: len(processes)}
	s.log.Info("Deck saved", "file", result.Filename, "slides", result.Slides, "processes", result.Processes)
	return result, nil
}

func (s *SlideManager) addProcessSlides(d deck.Deck, p Process) {
	if minimap, ok := s.state.Minimap(p.Name); ok {
		slide := d.AddSlide(p.Name + " overview")
		slide.AddImage(minimap, deck.Box{W: 1, H: 1})
	}

	scenes := s.state.Scenes(p.Name)
	if len(scenes) == 0 {
		slide := d.AddSlide(p.Name)
		slide.AddTable(s.materialTable(p.MaterialIDs), deck.Box{X: 0.05, Y: 0.15, W: 0.9, H: 0.8})
		return
	}

	for _, sc := range scenes {
		slide := d.AddSlide(fmt.Sprintf("%s: %s", p.Name, sc.Name))
		slide.AddImage(sc.Image, deck.Box{W: 0.7, H: 1})
		var placed []string
		for _, pl := range s.placement.Placements(sc.ID) {
			mat, ok := s.state.Material(pl.MaterialID)
			if !ok {
				continue
			}
			slide.AddText(mat.Name, deck.Box{X: pl.X * 0.7, Y: pl.Y, W: labelWidth, H: labelHeight})
			placed = append(placed, mat.ID)
		}
		if len(placed) > 0 {
			slide.AddTable(s.materialTable(placed), deck.Box{X: 0.72, Y: 0.05, W: 0.26, H: 0.9})
		}
	}
}

func (s *SlideManager) materialTable(ids []string) [][]string {
	rows := [][]string{{"Material", "Area", "Item"}}
	for _, id := range ids {
		if mat, ok := s.state.Material(id); ok {
			rows = append(rows, []string{mat.Name, mat.Area, mat.Item})
		}
	}
	return rows
}

// SlidesRegistration defines the slide generation module.
func SlidesRegistration(writer deck.DeckWriter, dispatcher deck.Dispatcher) modloader.Registration {
	return modloader.Registration{
		Name:         SlidesName,
		Dependencies: []string{StateName, ProcessesName, PlacementName, LoggerName},
		Factory: modloader.Provide4(func(ctx context.Context, state *StateStore, processes *ProcessGroupingManager, placement *PlacementManager, logger *Logger) (*SlideManager, error) {
			return NewSlideManager(state, processes, placement, logger, writer, dispatcher), nil
		}),
	}
}
