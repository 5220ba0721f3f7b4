package explorer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"solutionhub/internal/domain"
)

const diagramExt = ".bpmn"

var (
	ErrNotOpened       = errors.New("solution not opened")
	ErrDiagramNotFound = errors.New("diagram not found")
)

// FileSystem serves a directory of .bpmn files as a solution. Like
// ManagementAPI it is opened once and then shared read-only.
type FileSystem struct {
	root string
}

func (f *FileSystem) OpenSolution(ctx context.Context, uri string, _ *domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(uri)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", uri)
	}
	f.root = uri
	return nil
}

func (f *FileSystem) LoadSolution(ctx context.Context) (domain.Solution, error) {
	if f.root == "" {
		return domain.Solution{}, ErrNotOpened
	}
	if err := ctx.Err(); err != nil {
		return domain.Solution{}, err
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return domain.Solution{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), diagramExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	solution := domain.Solution{
		Name:     filepath.Base(f.root),
		URI:      f.root,
		Diagrams: make([]domain.OpenDiagram, 0, len(names)),
	}
	for _, n := range names {
		d, err := f.readDiagram(filepath.Join(f.root, n))
		if err != nil {
			return domain.Solution{}, err
		}
		solution.Diagrams = append(solution.Diagrams, d)
	}
	return solution, nil
}

func (f *FileSystem) LoadDiagram(ctx context.Context, name string) (domain.OpenDiagram, error) {
	if f.root == "" {
		return domain.OpenDiagram{}, ErrNotOpened
	}
	if err := ctx.Err(); err != nil {
		return domain.OpenDiagram{}, err
	}
	d, err := f.readDiagram(f.pathFor(name))
	if errors.Is(err, os.ErrNotExist) {
		return domain.OpenDiagram{}, fmt.Errorf("%w: %s", ErrDiagramNotFound, name)
	}
	return d, err
}

func (f *FileSystem) SaveDiagram(ctx context.Context, diagram domain.OpenDiagram) error {
	if f.root == "" {
		return ErrNotOpened
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := diagram.URI
	if path == "" {
		path = f.pathFor(diagram.Name)
	}
	return os.WriteFile(path, []byte(diagram.XML), 0o644)
}

func (f *FileSystem) DeleteDiagram(ctx context.Context, diagram domain.OpenDiagram) error {
	if f.root == "" {
		return ErrNotOpened
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := diagram.URI
	if path == "" {
		path = f.pathFor(diagram.Name)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDiagramNotFound, diagram.Name)
		}
		return err
	}
	return nil
}

func (f *FileSystem) pathFor(name string) string {
	name = filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(name), diagramExt) {
		name += diagramExt
	}
	return filepath.Join(f.root, name)
}

func (f *FileSystem) readDiagram(path string) (domain.OpenDiagram, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.OpenDiagram{}, err
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return domain.OpenDiagram{
		ID:   name,
		Name: name,
		URI:  path,
		XML:  string(raw),
	}, nil
}
