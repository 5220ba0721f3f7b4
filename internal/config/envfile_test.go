package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadDotEnv_SetsMissingVariables(t *testing.T) {
	path := writeEnvFile(t, "STORE_MODE=memory\nEMPTY=\nQUOTED=\"hello # world\"\nSINGLE='x y'\nexport STATE_FILE=/tmp/state.json # desktop\n=novalue\nnoequals\n")

	for _, key := range []string{"STORE_MODE", "EMPTY", "QUOTED", "SINGLE", "STATE_FILE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}

	want := map[string]string{
		"STORE_MODE": "memory",
		"EMPTY":      "",
		"QUOTED":     "hello # world",
		"SINGLE":     "x y",
		"STATE_FILE": "/tmp/state.json",
	}
	for key, v := range want {
		if got := os.Getenv(key); got != v {
			t.Fatalf("%s = %q, want %q", key, got, v)
		}
	}
}

func TestLoadDotEnv_DoesNotOverrideExisting(t *testing.T) {
	path := writeEnvFile(t, "STORE_MODE=from_file\n")

	t.Setenv("STORE_MODE", "from_env")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("STORE_MODE"); got != "from_env" {
		t.Fatalf("STORE_MODE = %q, want %q", got, "from_env")
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected nil for missing file, got %v", err)
	}
}
