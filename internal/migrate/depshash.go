package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Marker file names written to the user data root after a successful
// primary migration.
const (
	appVersionMarker = "app-version"
	depsHashMarker   = "deps-hash"
)

// depsHashLen is the hex prefix length of the fingerprint (64 bits).
const depsHashLen = 16

// Tracker computes the dependency-manifest fingerprint of the bundled
// runtime and persists it (with the application version) into the user data
// root. A changed fingerprint on a later launch signals that the migrated
// runtime is stale.
type Tracker struct {
	BundleDir   string
	UserDataDir string
	Manifests   []string // manifest paths relative to BundleDir
	AppVersion  string
}

// ComputeDepsHash concatenates the contents of whichever manifest files
// exist in the bundle into a sha256 digest and returns a fixed-length hex
// prefix. Stripped updates ship no manifests; the application version string
// is hashed instead so the fingerprint stays stable within a release and
// changes across releases.
func (t Tracker) ComputeDepsHash() (string, error) {
	h := sha256.New()
	found := false
	for _, m := range t.Manifests {
		b, err := os.ReadFile(filepath.Join(t.BundleDir, m))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("read manifest %s: %w", m, err)
		}
		h.Write(b)
		found = true
	}
	if !found {
		h.Write([]byte(t.AppVersion))
	}
	return hex.EncodeToString(h.Sum(nil))[:depsHashLen], nil
}

// StoredHash returns the persisted deps-hash from a prior migration, or
// ok=false when no marker exists.
func (t Tracker) StoredHash() (string, bool) {
	b, err := os.ReadFile(filepath.Join(t.UserDataDir, depsHashMarker))
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(b))
	return s, s != ""
}

// WriteMarkers persists the application version and the given deps hash.
// Called only after a fully successful primary migration.
func (t Tracker) WriteMarkers(hash string) error {
	if err := os.MkdirAll(t.UserDataDir, 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(t.UserDataDir, appVersionMarker), []byte(t.AppVersion+"\n"), 0o644); err != nil {
		return fmt.Errorf("write app-version marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(t.UserDataDir, depsHashMarker), []byte(hash+"\n"), 0o644); err != nil {
		return fmt.Errorf("write deps-hash marker: %w", err)
	}
	return nil
}

// Current reports whether the persisted fingerprint matches the bundle's
// current one. It performs no copying.
func (t Tracker) Current() (bool, error) {
	stored, ok := t.StoredHash()
	if !ok {
		return false, nil
	}
	computed, err := t.ComputeDepsHash()
	if err != nil {
		return false, err
	}
	return stored == computed, nil
}
