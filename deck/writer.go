package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ElementKind names the content placed on a slide.
type ElementKind string

const (
	ElementText  ElementKind = "text"
	ElementImage ElementKind = "image"
	ElementTable ElementKind = "table"
)

// Element is one recorded piece of slide content.
type Element struct {
	Kind      ElementKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	Rows      [][]string  `json:"rows,omitempty"`
	ImageSize int         `json:"image_size,omitempty"`
	At        Box         `json:"at"`
}

// MemorySlide records everything added to it.
type MemorySlide struct {
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
}

func (s *MemorySlide) AddText(text string, at Box) {
	s.Elements = append(s.Elements, Element{Kind: ElementText, Text: text, At: at})
}

func (s *MemorySlide) AddImage(data []byte, at Box) {
	s.Elements = append(s.Elements, Element{Kind: ElementImage, ImageSize: len(data), At: at})
}

func (s *MemorySlide) AddTable(rows [][]string, at Box) {
	s.Elements = append(s.Elements, Element{Kind: ElementTable, Rows: rows, At: at})
}

// MemoryDeck keeps slides in memory and saves them as a JSON document.
type MemoryDeck struct {
	mu      sync.Mutex
	Title   string         `json:"title"`
	Pages   []*MemorySlide `json:"slides"`
	SavedAs string         `json:"-"`
}

func (d *MemoryDeck) AddSlide(title string) Slide {
	d.mu.Lock()
	defer d.mu.Unlock()
	slide := &MemorySlide{Title: title}
	d.Pages = append(d.Pages, slide)
	return slide
}

func (d *MemoryDeck) Slides() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Pages)
}

// Save writes the deck as indented JSON. A deck can be saved once.
func (d *MemoryDeck) Save(ctx context.Context, filename string) error {
	if filename == "" {
		return ErrEmptyDeckFilename
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SavedAs != "" {
		return fmt.Errorf("%w as %s", ErrDeckAlreadySaved, d.SavedAs)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deck: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write deck %s: %w", filename, err)
	}
	d.SavedAs = filename
	return nil
}

// MemoryWriter hands out MemoryDecks and remembers them.
type MemoryWriter struct {
	mu    sync.Mutex
	decks []*MemoryDeck
}

func (w *MemoryWriter) NewDeck(title string) Deck {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := &MemoryDeck{Title: title}
	w.decks = append(w.decks, d)
	return d
}

// Decks returns every deck created so far.
func (w *MemoryWriter) Decks() []*MemoryDeck {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*MemoryDeck(nil), w.decks...)
}
