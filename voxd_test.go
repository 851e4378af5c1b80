package voxd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxkit/voxd/internal/migrate"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// End-to-end through the public facade: load a config, run the migration and
// verify the runtime landed in the user data root.
func TestFacadeMigration(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "bundle")
	data := filepath.Join(root, "data")
	writeTree(t, bundle, map[string]string{
		"python-runtime/bin/python3": "#!/bin/sh\n",
		"requirements.txt":           "faster-whisper==1.0\n",
	})

	cfgPath := filepath.Join(root, "voxd.toml")
	content := `
app_version = "1.0.0"

[paths]
bundle_dir = "` + bundle + `"
user_data_dir = "` + data + `"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	mig := NewMigrator(cfg, NewLogger(cfg))
	outcome, err := mig.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != migrate.OutcomeMigrated {
		t.Fatalf("outcome = %s", outcome)
	}
	if _, err := os.Stat(filepath.Join(data, "python-runtime", "bin", "python3")); err != nil {
		t.Fatalf("runtime not migrated: %v", err)
	}
}

func TestJoinIfRelative(t *testing.T) {
	if got := joinIfRelative("/base", "sub"); got != filepath.Join("/base", "sub") {
		t.Fatalf("got %q", got)
	}
	if got := joinIfRelative("/base", "/abs"); got != "/abs" {
		t.Fatalf("got %q", got)
	}
	if got := joinIfRelative("/base", ""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitEnv(t *testing.T) {
	k, v, ok := splitEnv("HF_HOME=/cache")
	if !ok || k != "HF_HOME" || v != "/cache" {
		t.Fatalf("got %q %q %v", k, v, ok)
	}
	if _, _, ok := splitEnv("MALFORMED"); ok {
		t.Fatalf("malformed entry accepted")
	}
}
