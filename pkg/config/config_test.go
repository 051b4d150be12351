package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Compare.PreviewRows != 5 {
		t.Errorf("Expected preview rows 5, got %d", c.Compare.PreviewRows)
	}
	if c.LLM.HistorySize != 10 {
		t.Errorf("Expected history size 10, got %d", c.LLM.HistorySize)
	}
	if c.Session.Backend != "memory" {
		t.Errorf("Expected memory backend, got %q", c.Session.Backend)
	}
}

func TestManager_LayersOverride(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.yaml")
	project := filepath.Join(dir, "project.yaml")

	os.WriteFile(system, []byte("llm:\n  history_size: 4\n  cache_ttl: 10m\nserver:\n  port: 9000\n"), 0644)
	os.WriteFile(project, []byte("server:\n  port: 9100\nsession:\n  backend: redis\n"), 0644)

	m := NewManagerWithPaths(system, filepath.Join(dir, "missing.yaml"), project)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := m.Get()

	if c.LLM.HistorySize != 4 {
		t.Errorf("Expected history size 4, got %d", c.LLM.HistorySize)
	}
	if c.LLM.CacheTTL != 10*time.Minute {
		t.Errorf("Expected cache ttl 10m, got %s", c.LLM.CacheTTL)
	}
	if c.Server.Port != 9100 {
		t.Errorf("Later file must win, got port %d", c.Server.Port)
	}
	if c.Session.Backend != "redis" {
		t.Errorf("Expected redis backend, got %q", c.Session.Backend)
	}
	if c.Compare.PreviewRows != 5 {
		t.Errorf("Unset values keep defaults, got %d", c.Compare.PreviewRows)
	}
	if got := m.GetPaths(); len(got) != 2 {
		t.Errorf("Expected 2 loaded paths, got %v", got)
	}
}

func TestManager_EnvWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "c.yaml")
	os.WriteFile(file, []byte("server:\n  port: 9000\nllm:\n  model: from-file\n"), 0644)

	t.Setenv("DOCDIFF_PORT", "7000")
	t.Setenv("GEMINI_MODEL", "from-env")
	t.Setenv("GEMINI_API_KEY", "k")

	m := NewManagerWithPaths(file)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := m.Get()
	if c.Server.Port != 7000 {
		t.Errorf("Expected env port 7000, got %d", c.Server.Port)
	}
	if c.LLM.Model != "from-env" {
		t.Errorf("Expected env model, got %q", c.LLM.Model)
	}
	if c.LLM.APIKey != "k" {
		t.Error("API key must come from the environment")
	}
}

func TestManager_InvalidYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(file, []byte("server: [unclosed"), 0644)
	if err := NewManagerWithPaths(file).Load(); err == nil {
		t.Error("Expected an error for invalid YAML")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"100MB", 100 << 20},
		{"1GB", 1 << 30},
		{"512KB", 512 << 10},
		{"42", 42},
		{"10B", 10},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseSize("lots"); err == nil {
		t.Error("Expected error for invalid size")
	}
}
