package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func trackerFixture(t *testing.T, manifests map[string]string) Tracker {
	t.Helper()
	root := t.TempDir()
	bundle := filepath.Join(root, "bundle")
	data := filepath.Join(root, "data")
	for name, content := range manifests {
		path := filepath.Join(bundle, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return Tracker{
		BundleDir:   bundle,
		UserDataDir: data,
		Manifests:   []string{"requirements.txt", "requirements-extra.txt"},
		AppVersion:  "2.0.0",
	}
}

func TestComputeDepsHashDeterministic(t *testing.T) {
	tr := trackerFixture(t, map[string]string{"requirements.txt": "torch==2.1.0\n"})
	a, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	b, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	if a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if len(a) != depsHashLen {
		t.Fatalf("hash length = %d, want %d", len(a), depsHashLen)
	}
}

func TestComputeDepsHashSensitiveToManifestContent(t *testing.T) {
	tr := trackerFixture(t, map[string]string{"requirements.txt": "torch==2.1.0\n"})
	before, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tr.BundleDir, "requirements.txt"), []byte("torch==2.2.0\n"), 0o644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
	after, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	if before == after {
		t.Fatalf("hash did not change with manifest content")
	}
}

func TestComputeDepsHashSkipsMissingManifests(t *testing.T) {
	tr := trackerFixture(t, map[string]string{"requirements.txt": "torch==2.1.0\n"})
	// requirements-extra.txt does not exist; the hash must cover only what is
	// present rather than erroring.
	if _, err := tr.ComputeDepsHash(); err != nil {
		t.Fatalf("ComputeDepsHash with a missing manifest: %v", err)
	}
}

func TestComputeDepsHashFallsBackToAppVersion(t *testing.T) {
	tr := trackerFixture(t, nil)
	a, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	tr.AppVersion = "2.0.1"
	b, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	if a == b {
		t.Fatalf("fallback hash should track the app version")
	}
}

func TestMarkersRoundTrip(t *testing.T) {
	tr := trackerFixture(t, map[string]string{"requirements.txt": "x\n"})

	if _, ok := tr.StoredHash(); ok {
		t.Fatalf("StoredHash should miss before any migration")
	}
	current, err := tr.Current()
	if err != nil || current {
		t.Fatalf("Current before markers = %v, %v", current, err)
	}

	hash, err := tr.ComputeDepsHash()
	if err != nil {
		t.Fatalf("ComputeDepsHash: %v", err)
	}
	if err := tr.WriteMarkers(hash); err != nil {
		t.Fatalf("WriteMarkers: %v", err)
	}

	stored, ok := tr.StoredHash()
	if !ok || stored != hash {
		t.Fatalf("StoredHash = %q, %v", stored, ok)
	}
	current, err = tr.Current()
	if err != nil || !current {
		t.Fatalf("Current after markers = %v, %v", current, err)
	}
	b, err := os.ReadFile(filepath.Join(tr.UserDataDir, appVersionMarker))
	if err != nil {
		t.Fatalf("read app-version marker: %v", err)
	}
	if string(b) != "2.0.0\n" {
		t.Fatalf("app-version marker = %q", string(b))
	}
}
