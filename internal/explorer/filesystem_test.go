package explorer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"solutionhub/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFileSystem_LoadSolutionListsBPMNFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.bpmn"), "<b/>")
	writeFile(t, filepath.Join(dir, "a.bpmn"), "<a/>")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.bpmn"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fs := &FileSystem{}
	if err := fs.OpenSolution(context.Background(), dir, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	solution, err := fs.LoadSolution(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(solution.Diagrams) != 2 {
		t.Fatalf("expected 2 diagrams, got %+v", solution.Diagrams)
	}
	if solution.Diagrams[0].Name != "a" || solution.Diagrams[1].Name != "b" {
		t.Fatalf("expected sorted a,b got %s,%s", solution.Diagrams[0].Name, solution.Diagrams[1].Name)
	}
	if solution.Diagrams[0].XML != "<a/>" {
		t.Fatalf("unexpected xml %q", solution.Diagrams[0].XML)
	}
}

func TestFileSystem_OpenRejectsMissingAndFiles(t *testing.T) {
	dir := t.TempDir()
	fs := &FileSystem{}
	if err := fs.OpenSolution(context.Background(), filepath.Join(dir, "missing"), nil); err == nil {
		t.Fatal("expected error for missing folder")
	}
	file := filepath.Join(dir, "x.bpmn")
	writeFile(t, file, "<x/>")
	if err := fs.OpenSolution(context.Background(), file, nil); err == nil {
		t.Fatal("expected error for non-directory")
	}
}

func TestFileSystem_SaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	fs := &FileSystem{}
	ctx := context.Background()
	if err := fs.OpenSolution(ctx, dir, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := fs.SaveDiagram(ctx, domain.OpenDiagram{Name: "order", XML: "<order/>"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	d, err := fs.LoadDiagram(ctx, "order")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.XML != "<order/>" || d.URI != filepath.Join(dir, "order.bpmn") {
		t.Fatalf("unexpected diagram %+v", d)
	}
	if err := fs.DeleteDiagram(ctx, d); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.LoadDiagram(ctx, "order"); !errors.Is(err, ErrDiagramNotFound) {
		t.Fatalf("expected ErrDiagramNotFound, got %v", err)
	}
}

func TestFileSystem_RequiresOpen(t *testing.T) {
	fs := &FileSystem{}
	if _, err := fs.LoadSolution(context.Background()); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("expected ErrNotOpened, got %v", err)
	}
}
