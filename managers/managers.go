// Package managers contains the wizard's manager units. Each unit is a
// module: it exports a Registration naming its dependencies, and the
// registry constructs and initializes the units in dependency order.
//
//	state ──┬── upload ◄── logger
//	        ├── processes ◄── logger
//	        ├── workspace ◄── processes, logger
//	        ├── placement ◄── workspace
//	        └── slides ◄── processes, placement, logger
package managers

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/deck"
)

// Module names.
const (
	StateName     = "state"
	LoggerName    = "logger"
	UploadName    = "upload"
	ProcessesName = "processes"
	WorkspaceName = "workspace"
	PlacementName = "placement"
	SlidesName    = "slides"
)

var (
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrMissingColumn       = errors.New("required column not found")
	ErrNoMaterials         = errors.New("no materials uploaded")
	ErrUnknownMaterial     = errors.New("unknown material")
	ErrUnknownProcess      = errors.New("unknown process")
	ErrUnknownScene        = errors.New("unknown scene")
	ErrDuplicateProcess    = errors.New("process already exists")
	ErrNoActiveProcess     = errors.New("no active process")
	ErrOutOfBounds         = errors.New("position outside the scene")
	ErrMaterialNotInScene  = errors.New("material does not belong to the scene's process")
	ErrNothingToGenerate   = errors.New("no processes to generate slides for")
)

// Collaborators are the external capabilities the managers consume.
type Collaborators struct {
	Files      deck.FileReader
	Parser     deck.SpreadsheetParser
	Writer     deck.DeckWriter
	Dispatcher deck.Dispatcher
	Logger     modloader.Logger
}

func (c Collaborators) logger() modloader.Logger {
	if c.Logger == nil {
		return modloader.NopLogger()
	}
	return c.Logger
}

// Registrations returns every manager registration in wizard order.
func Registrations(c Collaborators) []modloader.Registration {
	return []modloader.Registration{
		StateRegistration(),
		LoggerRegistration(c.logger()),
		UploadRegistration(c.Files, c.Parser),
		ProcessesRegistration(),
		WorkspaceRegistration(),
		PlacementRegistration(),
		SlidesRegistration(c.Writer, c.Dispatcher),
	}
}

// RegisterAll defines every manager on r.
func RegisterAll(r *modloader.Registry, c Collaborators) error {
	if err := r.Register(Registrations(c)...); err != nil {
		return fmt.Errorf("register managers: %w", err)
	}
	return nil
}

func missing(module, collaborator string) error {
	return fmt.Errorf("%w: %s needs a %s", ErrMissingCollaborator, module, collaborator)
}
