package file

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetItemPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := NewStore(path).SetItem("openedSolutions", `[{"uri":"/tmp/a"}]`); err != nil {
		t.Fatalf("set item: %v", err)
	}

	v, ok, err := NewStore(path).GetItem("openedSolutions")
	if err != nil || !ok {
		t.Fatalf("expected item after reopen, ok=%v err=%v", ok, err)
	}
	if v != `[{"uri":"/tmp/a"}]` {
		t.Fatalf("unexpected value %q", v)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	_, ok, err := store.GetItem("OpenDiagrams")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no item in missing file")
	}
}

func TestCorruptFileIsEmptyAndRecoverable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	store := NewStore(path)
	if _, ok, err := store.GetItem("k"); err != nil || ok {
		t.Fatalf("expected empty read, ok=%v err=%v", ok, err)
	}
	if err := store.SetItem("k", "v"); err != nil {
		t.Fatalf("set item over corrupt file: %v", err)
	}
	if v, ok, _ := store.GetItem("k"); !ok || v != "v" {
		t.Fatalf("expected k=v, got %q ok=%v", v, ok)
	}
}

func TestSetItemKeepsOtherKeys(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	_ = store.SetItem("a", "1")
	_ = store.SetItem("b", "2")
	if v, ok, _ := store.GetItem("a"); !ok || v != "1" {
		t.Fatalf("expected a=1, got %q ok=%v", v, ok)
	}
}
