// Package deck defines the collaborators the wizard managers depend on: a
// file reader with progress reporting, a spreadsheet parser, a slide deck
// writer and a background task dispatcher.
//
// Each collaborator is a narrow interface. The implementations here are
// deliberately small; they let the managers run end to end in tests and in
// the command line demo without a real office suite behind them.
package deck

import (
	"context"
	"errors"
)

var (
	ErrEmptyWorkbook     = errors.New("workbook has no sheets")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrUnknownTaskType   = errors.New("unknown task type")
	ErrNilHandler        = errors.New("task handler cannot be nil")
	ErrTaskPanicked      = errors.New("task panicked")
	ErrDeckAlreadySaved  = errors.New("deck already saved")
	ErrEmptyDeckFilename = errors.New("deck filename cannot be empty")
)

// ProgressFunc receives the amount of work done out of total. total is -1
// when it is not known up front.
type ProgressFunc func(done, total int64)

// FileReader loads a named file.
type FileReader interface {
	ReadFile(ctx context.Context, name string, progress ProgressFunc) ([]byte, error)
}

// SpreadsheetParser turns raw bytes into a Workbook.
type SpreadsheetParser interface {
	Parse(ctx context.Context, data []byte) (*Workbook, error)
}

// DeckWriter starts new slide decks.
type DeckWriter interface {
	NewDeck(title string) Deck
}

// Deck is a slide deck under construction.
type Deck interface {
	AddSlide(title string) Slide
	Slides() int
	Save(ctx context.Context, filename string) error
}

// Slide receives positioned content.
type Slide interface {
	AddText(text string, at Box)
	AddImage(data []byte, at Box)
	AddTable(rows [][]string, at Box)
}

// Box is a position on a slide in normalized [0,1] coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Dispatcher runs named tasks, in the background where it can.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType string, payload any, opts ...DispatchOption) (any, error)
}
