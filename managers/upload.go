package managers

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/deck"
)

// Header names recognised in the first row of the materials sheet.
var (
	materialHeaders = []string{"material", "materials", "name"}
	areaHeaders     = []string{"area", "zone", "location"}
	itemHeaders     = []string{"item", "category", "type"}
)

// UploadManager reads a spreadsheet and stores its rows as materials.
type UploadManager struct {
	state  *StateStore
	log    modloader.Logger
	files  deck.FileReader
	parser deck.SpreadsheetParser
}

// NewUploadManager creates an UploadManager. Collaborators are checked by Init.
func NewUploadManager(state *StateStore, logger *Logger, files deck.FileReader, parser deck.SpreadsheetParser) *UploadManager {
	return &UploadManager{
		state:  state,
		log:    logger.For(UploadName),
		files:  files,
		parser: parser,
	}
}

func (u *UploadManager) Init(ctx context.Context) error {
	if u.files == nil {
		return missing(UploadName, "file reader")
	}
	if u.parser == nil {
		return missing(UploadName, "spreadsheet parser")
	}
	return nil
}

// Upload reads filename, parses its first sheet and replaces the stored
// materials. It returns the number of materials imported.
func (u *UploadManager) Upload(ctx context.Context, filename string, progress deck.ProgressFunc) (int, error) {
	data, err := u.files.ReadFile(ctx, filename, func(done, total int64) {
		u.log.Debug("Reading file", "file", filename, "read", done, "total", total)
		if progress != nil {
			progress(done, total)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", filename, err)
	}
	return u.Import(ctx, filename, data)
}

// Import parses already loaded spreadsheet bytes.
func (u *UploadManager) Import(ctx context.Context, source string, data []byte) (int, error) {
	wb, err := u.parser.Parse(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", source, err)
	}
	sheet, rows, err := wb.First()
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", source, err)
	}

	materials, err := materialsFromRows(rows)
	if err != nil {
		return 0, fmt.Errorf("sheet %s of %s: %w", sheet, source, err)
	}
	u.state.SetMaterials(source, materials)
	u.log.Info("Imported materials", "source", source, "sheet", sheet, "count", len(materials))
	return len(materials), nil
}

func materialsFromRows(rows [][]string) ([]Material, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMissingColumn)
	}
	header := rows[0]
	nameCol := findColumn(header, materialHeaders)
	if nameCol < 0 {
		return nil, fmt.Errorf("%w: material", ErrMissingColumn)
	}
	areaCol := findColumn(header, areaHeaders)
	itemCol := findColumn(header, itemHeaders)

	var materials []Material
	for _, row := range rows[1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		materials = append(materials, Material{
			ID:   fmt.Sprintf("m%d", len(materials)+1),
			Name: name,
			Area: cell(row, areaCol),
			Item: cell(row, itemCol),
		})
	}
	return materials, nil
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// UploadRegistration defines the upload module.
func UploadRegistration(files deck.FileReader, parser deck.SpreadsheetParser) modloader.Registration {
	return modloader.Registration{
		Name:         UploadName,
		Dependencies: []string{StateName, LoggerName},
		Factory: modloader.Provide2(func(ctx context.Context, state *StateStore, logger *Logger) (*UploadManager, error) {
			return NewUploadManager(state, logger, files, parser), nil
		}),
	}
}
