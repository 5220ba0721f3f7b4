package diagram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"solutionhub/internal/domain"
	"solutionhub/internal/explorer"
	"solutionhub/internal/persist"
	"solutionhub/internal/store/memory"
)

func newTestRegistry(st *memory.Store) *Registry {
	r := NewRegistry(persist.NewAdapter(st, nil, nil), Options{})
	r.Load()
	return r
}

func TestAddOpenDiagram_UpsertKeepsPosition(t *testing.T) {
	r := newTestRegistry(memory.NewStore())
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "d1", XML: "<v1/>"}); err != nil {
		t.Fatalf("add d1: %v", err)
	}
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "d2", XML: "<d2/>"}); err != nil {
		t.Fatalf("add d2: %v", err)
	}
	first := r.GetOpenDiagrams()[0]
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "d1", XML: "<v2/>"}); err != nil {
		t.Fatalf("update d1: %v", err)
	}

	got := r.GetOpenDiagrams()
	if len(got) != 2 {
		t.Fatalf("expected 2 diagrams, got %d", len(got))
	}
	if got[0].URI != "d1" || got[0].XML != "<v2/>" {
		t.Fatalf("expected updated d1 at position 0, got %+v", got[0])
	}
	if got[0].ID != first.ID {
		t.Fatalf("upsert changed id from %s to %s", first.ID, got[0].ID)
	}
	if got[1].URI != "d2" {
		t.Fatalf("expected d2 at position 1, got %+v", got[1])
	}
}

func TestAddOpenDiagram_RejectsEmptyURI(t *testing.T) {
	r := newTestRegistry(memory.NewStore())
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{XML: "<x/>"}); !errors.Is(err, ErrInvalidDiagram) {
		t.Fatalf("expected ErrInvalidDiagram, got %v", err)
	}
}

func TestAddOpenDiagram_DerivesName(t *testing.T) {
	r := newTestRegistry(memory.NewStore())
	d, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "/work/order.bpmn"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if d.Name != "order" || d.ID == "" {
		t.Fatalf("unexpected diagram %+v", d)
	}
}

func TestRemoveOpenDiagramByURI_MissingIsNoop(t *testing.T) {
	st := memory.NewStore()
	r := newTestRegistry(st)
	_, _ = r.AddOpenDiagram(domain.OpenDiagram{URI: "a"})
	_, _ = r.AddOpenDiagram(domain.OpenDiagram{URI: "b"})

	r.RemoveOpenDiagramByURI("missing")
	if got := r.GetOpenDiagrams(); len(got) != 2 || got[0].URI != "a" || got[1].URI != "b" {
		t.Fatalf("missing removal altered the list: %+v", got)
	}

	r.RemoveOpenDiagramByURI("a")
	if got := r.GetOpenDiagrams(); len(got) != 1 || got[0].URI != "b" {
		t.Fatalf("unexpected list after removal: %+v", got)
	}
}

func TestMutationsRoundTripThroughStorage(t *testing.T) {
	st := memory.NewStore()
	r := newTestRegistry(st)
	_, _ = r.AddOpenDiagram(domain.OpenDiagram{URI: "a", XML: "<a/>"})
	_, _ = r.AddOpenDiagram(domain.OpenDiagram{URI: "b", XML: "<b/>"})
	r.RemoveOpenDiagramByURI("a")

	reloaded := newTestRegistry(st)
	got := reloaded.GetOpenDiagrams()
	if len(got) != 1 || got[0].URI != "b" || got[0].XML != "<b/>" {
		t.Fatalf("unexpected reload: %+v", got)
	}
}

func TestOpenFileAndSaveDiagram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.bpmn")
	if err := os.WriteFile(path, []byte("<invoice/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := newTestRegistry(memory.NewStore())
	ctx := context.Background()

	d, err := r.OpenFile(ctx, path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if d.Name != "invoice" || d.XML != "<invoice/>" {
		t.Fatalf("unexpected diagram %+v", d)
	}

	d.XML = "<invoice v2/>"
	if err := r.SaveDiagram(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "<invoice v2/>" {
		t.Fatalf("file not written, got %q", raw)
	}
	if got := r.GetOpenDiagrams(); len(got) != 1 || got[0].XML != "<invoice v2/>" {
		t.Fatalf("registry not updated: %+v", got)
	}

	if _, err := r.OpenFile(ctx, filepath.Join(dir, "missing.bpmn")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRegistryServesOpenDiagramsSolution(t *testing.T) {
	r := newTestRegistry(memory.NewStore())
	ctx := context.Background()
	var conn domain.Connector = r
	if err := conn.OpenSolution(ctx, domain.OpenDiagramsURI, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = r.AddOpenDiagram(domain.OpenDiagram{URI: "mem://x", Name: "x"})

	solution, err := conn.LoadSolution(ctx)
	if err != nil || solution.URI != domain.OpenDiagramsURI || len(solution.Diagrams) != 1 {
		t.Fatalf("unexpected solution %+v err=%v", solution, err)
	}
	if _, err := conn.LoadDiagram(ctx, "x"); err != nil {
		t.Fatalf("load by name: %v", err)
	}
	if _, err := conn.LoadDiagram(ctx, "nope"); !errors.Is(err, explorer.ErrDiagramNotFound) {
		t.Fatalf("expected ErrDiagramNotFound, got %v", err)
	}
	if err := conn.DeleteDiagram(ctx, domain.OpenDiagram{URI: "mem://x"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(r.GetOpenDiagrams()) != 0 {
		t.Fatal("expected diagram closed")
	}
}

type deadlinePublisher struct {
	deadlines chan time.Duration
}

func (p deadlinePublisher) Publish(ctx context.Context, _ domain.Event) error {
	deadline, _ := ctx.Deadline()
	p.deadlines <- time.Until(deadline)
	return nil
}

func TestPublishUsesConfiguredTimeout(t *testing.T) {
	pub := deadlinePublisher{deadlines: make(chan time.Duration, 1)}
	r := NewRegistry(persist.NewAdapter(memory.NewStore(), nil, nil), Options{
		Publisher:      pub,
		PublishTimeout: 300 * time.Millisecond,
	})
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "d1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	select {
	case left := <-pub.deadlines:
		if left <= 0 || left > 300*time.Millisecond {
			t.Fatalf("publish deadline %v outside configured timeout", left)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}

	if d := NewRegistry(nil, Options{}).publishTimeout; d != defaultPublishTimeout {
		t.Fatalf("default publish timeout = %v", d)
	}
}

func TestGetOpenDiagrams_ReturnsIndependentTimestamps(t *testing.T) {
	r := newTestRegistry(memory.NewStore())
	if _, err := r.AddOpenDiagram(domain.OpenDiagram{URI: "d1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	got := r.GetOpenDiagrams()
	if got[0].UpdatedAt == nil {
		t.Fatal("expected a timestamp on added diagram")
	}
	want := *got[0].UpdatedAt
	*got[0].UpdatedAt = time.Time{}
	if again := r.GetOpenDiagrams(); !again[0].UpdatedAt.Equal(want) {
		t.Fatalf("registry timestamp changed through a returned copy: %v", again[0].UpdatedAt)
	}
}
